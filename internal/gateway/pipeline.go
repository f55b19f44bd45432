package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/lms-cloud/gateway/internal/auth"
	"github.com/lms-cloud/gateway/internal/circuitbreaker"
	"github.com/lms-cloud/gateway/internal/errors"
	"github.com/lms-cloud/gateway/internal/logging"
	"github.com/lms-cloud/gateway/internal/metrics"
	"github.com/lms-cloud/gateway/internal/middleware"
	"github.com/lms-cloud/gateway/internal/proxy"
	"github.com/lms-cloud/gateway/internal/ratelimit"
	"github.com/lms-cloud/gateway/internal/router"
	"go.uber.org/zap"
)

// Pipeline is the ordered dispatch path every API request walks:
// route match, public check, authentication, authorization, rate
// limit, circuit breaker, forward. The first stage that rejects ends
// the request; later stages never run.
type Pipeline struct {
	routes        *router.Table
	authenticator *auth.Authenticator
	rules         *auth.Rules
	limiter       *ratelimit.Limiter
	breakers      *circuitbreaker.Manager
	proxy         *proxy.Proxy
	fallback      *Fallback
	collector     *metrics.Collector
}

// statusClientClosedRequest is nginx's non-standard code for a client
// that went away before the response was written. It only ever appears
// in logs and metrics; nothing is written to the dead connection.
const statusClientClosedRequest = 499

// statusRecorder captures the status the upstream answered with so the
// request counter carries real codes, not assumptions.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// ServeHTTP dispatches one request through the pipeline.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	route := p.routes.Match(r.Method, r.URL.Path)
	if route == nil {
		p.reject(w, r, "", start, errors.ErrNotFound.WithDetails("No route matches "+r.URL.Path))
		return
	}

	// CORS preflights carry no credentials by design; they are
	// answered at the edge before this point or forwarded as-is.
	var principal *auth.Principal
	if !p.rules.IsPublic(r.Method, r.URL.Path) && r.Method != http.MethodOptions {
		var err error
		principal, err = p.authenticator.Authenticate(r)
		if err != nil {
			p.reject(w, r, route.ID, start, err)
			return
		}
		if err := p.rules.Authorize(principal, r.Method, r.URL.Path); err != nil {
			p.reject(w, r, route.ID, start, err)
			return
		}
	}

	decision, err := p.limiter.Check(r.Context(), route.Profile, ratelimit.KeyFor(principal, r))
	if err != nil {
		// Fail open: an unreachable limiter store must not take the
		// platform down with it.
		logging.Warn("Rate limit store unavailable, failing open",
			zap.String("route", route.ID), zap.Error(err))
	} else {
		setRateLimitHeaders(w, decision)
		if !decision.Allowed {
			p.collector.RecordRateLimited(route.ID, p.limiter.Profile(route.Profile).Name)
			p.reject(w, r, route.ID, start,
				errors.ErrRateLimited.WithDetails("Request rate exceeded for this endpoint"))
			return
		}
	}

	breaker := p.breakers.For(route.ID)
	if !breaker.Allow() {
		logging.Warn("Circuit open, serving fallback",
			zap.String("route", route.ID),
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())))
		middleware.SetDisposition(r, "circuit_open")
		p.serveFallback(w, r, route, start)
		return
	}

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	if err := p.proxy.Forward(rec, r, route, principal); err != nil {
		if r.Context().Err() != nil {
			// The caller hung up; the upstream may be perfectly
			// healthy, so this must not count against the breaker.
			middleware.SetDisposition(r, "client_cancelled")
			logging.Info("Client closed request before upstream answered",
				zap.String("route", route.ID),
				zap.String("request_id", middleware.RequestIDFromContext(r.Context())))
			p.collector.RecordRequest(route.ID, r.Method, statusClientClosedRequest, time.Since(start))
			return
		}
		breaker.RecordFailure()
		p.collector.RecordUpstreamFailure(route.ID)
		logging.Error("Upstream request failed",
			zap.String("route", route.ID),
			zap.String("service", route.Service),
			zap.Bool("timeout", proxy.IsTimeout(err)),
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
			zap.Error(err))
		middleware.SetDisposition(r, "upstream_failure")
		p.serveFallback(w, r, route, start)
		return
	}

	// Reaching the upstream is success regardless of its status; a 500
	// from a living service must not open the circuit.
	breaker.RecordSuccess()
	middleware.SetDisposition(r, "forwarded")
	p.collector.RecordRequest(route.ID, r.Method, rec.status, time.Since(start))
}

// serveFallback answers a failed or short-circuited request from the
// route's fallback, in-process and without touching the network.
func (p *Pipeline) serveFallback(w http.ResponseWriter, r *http.Request, route *router.Route, start time.Time) {
	path := route.FallbackPath
	if path == "" {
		path = "/fallback/" + route.ID
	}
	p.fallback.Serve(w, path)
	p.collector.RecordRequest(route.ID, r.Method, http.StatusServiceUnavailable, time.Since(start))
}

// reject writes the error envelope and records the outcome.
func (p *Pipeline) reject(w http.ResponseWriter, r *http.Request, routeID string, start time.Time, err error) {
	ge, ok := errors.IsGatewayError(err)
	if !ok {
		ge = errors.ErrInternal
	}
	if routeID == "" {
		routeID = "unmatched"
	}
	middleware.SetDisposition(r, dispositionFor(ge.Code))
	ge.WriteJSON(w)
	p.collector.RecordRequest(routeID, r.Method, ge.Status, time.Since(start))
}

func dispositionFor(code string) string {
	switch code {
	case "NOT_FOUND":
		return "not_found"
	case "AUTHENTICATION_FAILED":
		return "unauthenticated"
	case "FORBIDDEN":
		return "unauthorized"
	case "RATE_LIMITED":
		return "rate_limited"
	default:
		return "rejected"
	}
}

func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.Allowed {
		secs := int(d.RetryAfter / time.Second)
		if secs < 1 {
			secs = 1
		}
		h.Set("Retry-After", strconv.Itoa(secs))
	}
}
