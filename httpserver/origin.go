package httpserver

import (
	"net/http"
	"net/url"
	"strings"
)

// originAllowed applies the origin policy: requests without an Origin header
// pass, "*" allows everything, an explicit list matches scheme://host[:port]
// and an empty list means same host only.
func originAllowed(r *http.Request, allowed []string) bool {
	originHeader := strings.TrimSpace(r.Header.Get("Origin"))
	if originHeader == "" {
		return true
	}

	u, err := url.Parse(originHeader)
	if err != nil || u.Host == "" {
		return false
	}
	normalized := strings.ToLower(u.Scheme + "://" + u.Host)

	if len(allowed) == 0 {
		return strings.EqualFold(u.Host, r.Host)
	}
	for _, a := range allowed {
		a = strings.TrimRight(strings.TrimSpace(a), "/")
		if a == "*" || strings.EqualFold(a, normalized) {
			return true
		}
	}
	return false
}

func (s *Server) withOriginPolicy(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		originHeader := strings.TrimSpace(r.Header.Get("Origin"))
		if originHeader == "" {
			next(w, r)
			return
		}
		if !originAllowed(r, s.cfg.AllowedOrigins) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", originHeader)
		w.Header().Add("Vary", "Origin")
		next(w, r)
	}
}
