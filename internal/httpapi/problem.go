package httpapi

import (
	"encoding/json"
	"net/http"
)

// Problem types for RFC 7807 Problem Details responses (spec §7 "HTTP
// 4xx/5xx"), grounded on the teacher's internal/server/problem.go.
const (
	ProblemTypeNotFound     = "https://coolgrid.dev/problems/not-found"
	ProblemTypeBadRequest   = "https://coolgrid.dev/problems/bad-request"
	ProblemTypeInternal     = "https://coolgrid.dev/problems/internal-error"
	ProblemTypeRateLimited  = "https://coolgrid.dev/problems/rate-limited"
	ProblemTypeUnavailable  = "https://coolgrid.dev/problems/unavailable"
)

// Problem is an RFC 7807 Problem Details response. Every user-visible
// failure carries a human-readable Detail alongside the machine Type, per
// spec §7 ("always include a short human-readable message field alongside
// the machine error code").
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// WriteProblem writes p as an application/problem+json response.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NotFound writes a 404 problem response.
func NotFound(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{Type: ProblemTypeNotFound, Title: "Not Found", Status: http.StatusNotFound, Detail: detail, Instance: instance})
}

// BadRequest writes a 400 problem response.
func BadRequest(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{Type: ProblemTypeBadRequest, Title: "Bad Request", Status: http.StatusBadRequest, Detail: detail, Instance: instance})
}

// InternalError writes a 500 problem response.
func InternalError(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{Type: ProblemTypeInternal, Title: "Internal Server Error", Status: http.StatusInternalServerError, Detail: detail, Instance: instance})
}

// Unavailable writes a 503 problem response (spec §7 "simulator unreachable -> 503").
func Unavailable(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{Type: ProblemTypeUnavailable, Title: "Service Unavailable", Status: http.StatusServiceUnavailable, Detail: detail, Instance: instance})
}

// RateLimited writes a 429 problem response.
func RateLimited(w http.ResponseWriter, detail, instance string) {
	WriteProblem(w, Problem{Type: ProblemTypeRateLimited, Title: "Too Many Requests", Status: http.StatusTooManyRequests, Detail: detail, Instance: instance})
}
