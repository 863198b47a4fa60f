package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	corsAllowMethods  = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders  = "Accept, Content-Type, Authorization"
	corsExposeHeaders = "Content-Disposition"
	corsMaxAge        = "86400"
)

// originPolicy decides which browser origins may call the API.
// Patterns are exact origins, "*.domain" wildcards or "*" for any origin.
type originPolicy struct {
	any      bool
	exact    map[string]struct{}
	suffixes []string // ".domain" for each "*.domain" pattern
}

func newOriginPolicy(patterns []string) *originPolicy {
	p := &originPolicy{exact: make(map[string]struct{}, len(patterns))}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		switch {
		case pattern == "*":
			p.any = true
		case strings.HasPrefix(pattern, "*."):
			p.suffixes = append(p.suffixes, strings.ToLower(pattern[1:]))
		case pattern != "":
			p.exact[strings.TrimSuffix(pattern, "/")] = struct{}{}
		}
	}
	return p
}

func (p *originPolicy) allows(origin string) bool {
	if p.any {
		return true
	}
	if _, ok := p.exact[origin]; ok {
		return true
	}
	host := strings.ToLower(extractHost(origin))
	for _, suffix := range p.suffixes {
		// "*.example.com" matches subdomains only, never the apex
		if strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
			return true
		}
	}
	return false
}

// corsMiddleware answers preflight requests and decorates responses for
// allowed origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	policy := newOriginPolicy(s.config.CORS.AllowedOrigins)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && policy.allows(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
			h.Set("Access-Control-Max-Age", corsMaxAge)
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// matchOrigin reports whether origin matches a single pattern.
func matchOrigin(origin, pattern string) bool {
	return newOriginPolicy([]string{pattern}).allows(origin)
}

// extractHost returns the host of an origin without scheme, port or path.
// Example: "https://example.com:8080" returns "example.com".
func extractHost(origin string) string {
	if !strings.Contains(origin, "://") {
		origin = "//" + origin
	}
	u, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
