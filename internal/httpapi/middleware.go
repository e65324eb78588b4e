package httpapi

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"syslink-agent/internal/observability/metrics"
)

// publicPaths bypass bearer authentication.
var publicPaths = map[string]struct{}{
	"/api/auth/pair":         {},
	"/api/auth/pairing-code": {},
	"/ws/stream":             {},
	"/health":                {},
}

func (a *api) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := a.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := a.Now().Sub(start)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.ObserveHTTP(route, r.Method, status, elapsed)
		a.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", elapsed,
			"request_id", middleware.GetReqID(r.Context()),
			"remote", r.RemoteAddr,
		)
	})
}

// ipFilter rejects clients outside Security.AllowedIPAddresses when the list is set.
func (a *api) ipFilter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed := a.Config.Get().Security.AllowedIPAddresses
		if len(allowed) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		ip := clientIP(r)
		for _, entry := range allowed {
			if ipMatches(strings.TrimSpace(entry), ip) {
				next.ServeHTTP(w, r)
				return
			}
		}
		a.logger.Warn("request from disallowed address", "remote", ip, "path", r.URL.Path)
		writeError(w, http.StatusForbidden, "Forbidden")
	})
}

func (a *api) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := publicPaths[strings.TrimSuffix(strings.ToLower(r.URL.Path), "/")]; ok || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if !a.Config.Get().Security.RequireAuthentication {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r)
		ok := token != "" && a.Auth.ValidateToken(r.Context(), token)
		metrics.ObserveAuth("request", ok)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ipMatches accepts a literal address or a CIDR block.
func ipMatches(entry, ip string) bool {
	if entry == "" {
		return false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	if strings.Contains(entry, "/") {
		_, block, err := net.ParseCIDR(entry)
		return err == nil && block.Contains(parsed)
	}
	other := net.ParseIP(entry)
	return other != nil && other.Equal(parsed)
}
