package gateway

import (
	"net/http"
	"strings"

	"github.com/lms-cloud/gateway/internal/errors"
)

// fallbackNames maps a fallback area to the display name used in the
// degraded-mode response.
var fallbackNames = map[string]string{
	"auth":       "Authentication",
	"user":       "User",
	"course":     "Course",
	"content":    "Content",
	"assignment": "Assignment",
	"quiz":       "Quiz",
	"attendance": "Attendance",
	"messaging":  "Messaging",
	"analytics":  "Analytics",
	"search":     "Search",
}

// Fallback serves the degraded-mode response for /fallback/<area>.
// It is dispatched in-process when a route's breaker is open, and is
// also reachable directly for probing.
type Fallback struct{}

// NewFallback creates the fallback handler.
func NewFallback() *Fallback {
	return &Fallback{}
}

// ServeHTTP answers any /fallback/<area> request.
func (f *Fallback) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.Serve(w, r.URL.Path)
}

// Serve writes the degraded response for the given fallback path.
func (f *Fallback) Serve(w http.ResponseWriter, path string) {
	area := strings.TrimPrefix(path, "/fallback/")
	area = strings.Trim(area, "/")

	name, ok := fallbackNames[area]
	if !ok {
		name = "Requested"
	}

	errors.ErrServiceUnavailable.
		WithMessage(name + " service is currently unavailable").
		WithDetails("The requested service is temporarily unavailable. Please try again later.").
		WriteJSON(w)
}
