package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/lms-cloud/gateway/internal/router"
)

// routeInfo is the admin view of one route table entry.
type routeInfo struct {
	ID            string   `json:"id"`
	Paths         []string `json:"paths"`
	Methods       []string `json:"methods,omitempty"`
	Service       string   `json:"service"`
	Profile       string   `json:"rate_limit_profile,omitempty"`
	StripSegments int      `json:"strip_segments,omitempty"`
	Fallback      string   `json:"fallback,omitempty"`
}

// adminMux builds the operational surface: metrics scrape, the
// effective route table, and live breaker snapshots.
func (s *Server) adminMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.collector.Handler())

	mux.HandleFunc("/admin/routes", func(w http.ResponseWriter, r *http.Request) {
		routes := s.routes.Routes()
		out := make([]routeInfo, 0, len(routes))
		for _, rt := range routes {
			out = append(out, routeInfo{
				ID:            rt.ID,
				Paths:         rt.Patterns,
				Methods:       methodList(rt),
				Service:       rt.Service,
				Profile:       rt.Profile,
				StripSegments: rt.StripSegments,
				Fallback:      rt.FallbackPath,
			})
		}
		writeAdminJSON(w, out)
	})

	mux.HandleFunc("/admin/breakers", func(w http.ResponseWriter, r *http.Request) {
		writeAdminJSON(w, s.breakers.Snapshots())
	})

	mux.HandleFunc("/health", Health)
	return mux
}

func methodList(rt *router.Route) []string {
	if rt.Methods == nil {
		return nil
	}
	out := make([]string, 0, len(rt.Methods))
	for m := range rt.Methods {
		out = append(out, m)
	}
	return out
}

func writeAdminJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
