package remote

// Wire payloads shared by Client and the reference server.

// UpdateCodeRequest is the body of PATCH /api/barcodes/{id}.
type UpdateCodeRequest struct {
	Code string `json:"code"`
}

// DailyCount is the body of GET and PUT /api/stats/daily/{userID}/{date}.
type DailyCount struct {
	UserID string `json:"user_id"`
	Date   string `json:"date"`
	Count  int    `json:"count"`
	Exists bool   `json:"exists"`
}

// UserTotal is the response of POST /api/stats/users/{userID}/recompute.
type UserTotal struct {
	UserID string `json:"user_id"`
	Total  int    `json:"total"`
}

// Record-level error codes. A 404 or 409 only counts as a conflict when the
// server names one of these; anything else in the path (proxies, portals,
// a wrong base URL) stays a remote failure.
const (
	CodeDuplicate = "duplicate"
	CodeNotFound  = "not_found"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
