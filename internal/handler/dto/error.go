package dto

// ErrorResponse is the error shape of the /api/v1 management surface.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
