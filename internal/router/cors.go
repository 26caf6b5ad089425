package router

import (
	"net/http"
	"strings"
)

// corsPolicy is the parsed CORS_ALLOW_ORIGIN setting.
type corsPolicy struct {
	anyOrigin   bool
	origins     map[string]bool
	credentials bool
}

// newCORSPolicy accepts "*", a single origin or a comma separated list.
// An empty setting allows any origin.
func newCORSPolicy(allowOrigin string, allowCredentials bool) corsPolicy {
	p := corsPolicy{origins: map[string]bool{}, credentials: allowCredentials}
	for _, o := range strings.Split(allowOrigin, ",") {
		switch o = strings.TrimSpace(o); o {
		case "":
		case "*":
			p.anyOrigin = true
		default:
			p.origins[o] = true
		}
	}
	if len(p.origins) == 0 {
		p.anyOrigin = true
	}
	return p
}

// allowOrigin returns the Access-Control-Allow-Origin value for the request
// origin and whether that value varies by origin. Credentials never pair
// with a literal "*".
func (p corsPolicy) allowOrigin(requestOrigin string) (value string, varyOrigin bool) {
	if p.anyOrigin {
		if p.credentials && requestOrigin != "" {
			return requestOrigin, true
		}
		return "*", false
	}
	if p.origins[requestOrigin] {
		return requestOrigin, true
	}
	return "", true
}

// middleware sets CORS headers and answers preflight requests with 204.
func (p corsPolicy) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		value, vary := p.allowOrigin(r.Header.Get("Origin"))
		if value != "" {
			h.Set("Access-Control-Allow-Origin", value)
		}
		if vary {
			h.Add("Vary", "Origin")
		}
		if p.credentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		h.Set("Access-Control-Allow-Methods", "GET, PUT, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+requestIDHeader)
		h.Set("Access-Control-Expose-Headers", requestIDHeader)
		h.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
