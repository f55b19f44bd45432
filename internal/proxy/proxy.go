package proxy

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lms-cloud/gateway/internal/auth"
	"github.com/lms-cloud/gateway/internal/logging"
	"github.com/lms-cloud/gateway/internal/registry"
	"github.com/lms-cloud/gateway/internal/router"
	"go.uber.org/zap"
)

// Proxy forwards matched requests to the upstream service resolved
// through the registry. It reports transport-level failures to the
// caller; upstream responses of any status are relayed untouched.
type Proxy struct {
	transport      http.RoundTripper
	resolver       registry.Resolver
	defaultTimeout time.Duration
}

// Config holds proxy settings.
type Config struct {
	Transport      http.RoundTripper
	Resolver       registry.Resolver
	DefaultTimeout time.Duration
}

// New creates a proxy.
func New(cfg Config) *Proxy {
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			MaxIdleConns:        256,
			MaxIdleConnsPerHost: 32,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		}
	}
	timeout := cfg.DefaultTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Proxy{
		transport:      transport,
		resolver:       cfg.Resolver,
		defaultTimeout: timeout,
	}
}

// Forward sends the request to the route's upstream and relays the
// response. The returned error is transport-level only (resolve
// failure, connect error, deadline); a non-2xx upstream status is not
// an error here.
func (p *Proxy) Forward(w http.ResponseWriter, r *http.Request, route *router.Route, principal *auth.Principal) error {
	target, err := p.resolver.Resolve(route.Service)
	if err != nil {
		return err
	}

	ctx := r.Context()
	timeout := p.defaultTimeout
	if route.Timeout > 0 {
		timeout = route.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	proxyReq := p.buildRequest(ctx, r, route, target, principal)

	resp, err := p.transport.RoundTrip(proxyReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		// Headers are already on the wire, so the response cannot be
		// salvaged; the truncation still has to show up in the logs.
		logging.Warn("Relaying upstream body failed mid-stream",
			zap.String("route", route.ID),
			zap.String("service", route.Service),
			zap.Error(err))
	}
	return nil
}

// buildRequest constructs the outbound request without a URL round
// trip through String()/Parse().
func (p *Proxy) buildRequest(ctx context.Context, r *http.Request, route *router.Route, target *url.URL, principal *auth.Principal) *http.Request {
	targetURL := *target
	targetURL.Path = singleJoiningSlash(target.Path, route.RewritePath(r.URL.Path))
	targetURL.RawQuery = r.URL.RawQuery

	proxyReq := (&http.Request{
		Method:        r.Method,
		URL:           &targetURL,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          r.Body,
		ContentLength: r.ContentLength,
		Host:          target.Host,
	}).WithContext(ctx)

	proxyReq.Header = make(http.Header, len(r.Header)+7)
	for k, vv := range r.Header {
		proxyReq.Header[k] = vv
	}

	// Identity headers are gateway-asserted. Whatever the client sent
	// under these names is dropped before injection so an upstream can
	// trust them unconditionally.
	for _, h := range auth.IdentityHeaderNames {
		proxyReq.Header.Del(h)
	}
	if principal != nil {
		for k, v := range principal.IdentityHeaders() {
			if v != "" {
				proxyReq.Header.Set(k, v)
			}
		}
	}

	if clientIP := extractClientIP(r); clientIP != "" {
		if prior := proxyReq.Header.Get("X-Forwarded-For"); prior != "" {
			proxyReq.Header.Set("X-Forwarded-For", prior+", "+clientIP)
		} else {
			proxyReq.Header.Set("X-Forwarded-For", clientIP)
		}
	}
	if r.TLS != nil {
		proxyReq.Header.Set("X-Forwarded-Proto", "https")
	} else {
		proxyReq.Header.Set("X-Forwarded-Proto", "http")
	}
	proxyReq.Header.Set("X-Forwarded-Host", r.Host)

	removeHopHeaders(proxyReq.Header)
	return proxyReq
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		dst[k] = append(dst[k][:0:0], vv...)
	}
	removeHopHeaders(dst)
}

// Hop-by-hop headers that must not cross the proxy.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopHeaders(header http.Header) {
	for _, h := range hopHeaders {
		header.Del(h)
	}
}

// singleJoiningSlash joins two URL paths with a single slash.
func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

func extractClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
