package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/courierchat/courier/internal/model"
)

// AuthEventRepository provides database access for the audit trail.
type AuthEventRepository struct {
	repo *Repository
}

// NewAuthEventRepository creates a new AuthEventRepository.
func NewAuthEventRepository(repo *Repository) *AuthEventRepository {
	return &AuthEventRepository{repo: repo}
}

// BulkInsert inserts multiple auth events with idempotency via ON CONFLICT DO NOTHING.
// The event_id is the Redis stream entry ID, so redelivered entries are no-ops.
func (r *AuthEventRepository) BulkInsert(ctx context.Context, events []*model.AuthEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO auth_events (
			id, event_id, kind, email, reason, request_id, remote_addr, occurred_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (event_id) DO NOTHING
	`

	for _, event := range events {
		batch.Queue(query,
			event.ID,
			event.EventID,
			string(event.Kind),
			event.Email,
			nullableString(event.Reason),
			nullableString(event.RequestID),
			nullableString(event.RemoteAddr),
			event.OccurredAt,
		)
	}

	results := r.repo.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(events); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert event %d: %w", i, err)
		}
	}

	return nil
}

// UpdateDailyStats recalculates the daily_auth_stats rows touched by the
// given batch of events.
func (r *AuthEventRepository) UpdateDailyStats(ctx context.Context, events []*model.AuthEvent) error {
	if len(events) == 0 {
		return nil
	}

	for _, day := range uniqueDays(events) {
		acc, err := r.recalculateDailyStat(ctx, day)
		if err != nil {
			return fmt.Errorf("recalculate daily stat %s: %w", day.Format("2006-01-02"), err)
		}
		if err := r.upsertDailyStat(ctx, acc); err != nil {
			return fmt.Errorf("upsert daily stat %s: %w", day.Format("2006-01-02"), err)
		}
	}

	return nil
}

// dailyStatsAccumulator accumulates audit stats for a single day.
type dailyStatsAccumulator struct {
	date         time.Time
	totalEvents  int64
	uniqueEmails int64
	kinds        map[string]int64
	emailSeen    map[string]bool
}

func uniqueDays(events []*model.AuthEvent) []time.Time {
	seen := make(map[string]time.Time)
	for _, event := range events {
		day := event.OccurredAt.UTC().Truncate(24 * time.Hour)
		seen[day.Format("2006-01-02")] = day
	}

	days := make([]time.Time, 0, len(seen))
	for _, day := range seen {
		days = append(days, day)
	}
	return days
}

func (r *AuthEventRepository) recalculateDailyStat(ctx context.Context, date time.Time) (*dailyStatsAccumulator, error) {
	start := date.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	query := `
		SELECT kind, email
		FROM auth_events
		WHERE occurred_at >= $1 AND occurred_at < $2
	`

	rows, err := r.repo.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query auth events: %w", err)
	}
	defer rows.Close()

	acc := &dailyStatsAccumulator{
		date:      start,
		kinds:     make(map[string]int64),
		emailSeen: make(map[string]bool),
	}
	for rows.Next() {
		var kind, email string
		if err := rows.Scan(&kind, &email); err != nil {
			return nil, fmt.Errorf("scan auth event: %w", err)
		}

		acc.totalEvents++
		acc.kinds[kind]++
		if email != "" && !acc.emailSeen[email] {
			acc.emailSeen[email] = true
			acc.uniqueEmails++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate auth events: %w", err)
	}

	return acc, nil
}

// upsertDailyStat inserts or updates a daily_auth_stats row.
func (r *AuthEventRepository) upsertDailyStat(ctx context.Context, acc *dailyStatsAccumulator) error {
	kindJSON, _ := json.Marshal(acc.kinds)
	id := acc.date.Format("2006-01-02")

	query := `
		INSERT INTO daily_auth_stats (
			id, date, total_events, unique_emails, kind_breakdown, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (date) DO UPDATE SET
			total_events = EXCLUDED.total_events,
			unique_emails = EXCLUDED.unique_emails,
			kind_breakdown = EXCLUDED.kind_breakdown,
			updated_at = NOW()
	`

	_, err := r.repo.pool.Exec(ctx, query,
		id,
		acc.date,
		acc.totalEvents,
		acc.uniqueEmails,
		kindJSON,
	)

	return err
}

// GetDailyStats retrieves audit stats within a date range.
func (r *AuthEventRepository) GetDailyStats(ctx context.Context, from, to time.Time) ([]*model.DailyAuthStats, error) {
	query := `
		SELECT id, date, total_events, unique_emails, kind_breakdown, created_at, updated_at
		FROM daily_auth_stats
		WHERE date >= $1 AND date <= $2
		ORDER BY date DESC
	`

	rows, err := r.repo.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()

	var stats []*model.DailyAuthStats
	for rows.Next() {
		var stat model.DailyAuthStats
		var kindJSON []byte
		err := rows.Scan(
			&stat.ID,
			&stat.Date,
			&stat.TotalEvents,
			&stat.UniqueEmails,
			&kindJSON,
			&stat.CreatedAt,
			&stat.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}
		if len(kindJSON) > 0 {
			_ = json.Unmarshal(kindJSON, &stat.KindBreakdown)
		}
		stats = append(stats, &stat)
	}

	return stats, rows.Err()
}

// nullableString returns nil for empty strings.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
