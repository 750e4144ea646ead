package middleware

import (
	"net/http"
	"strings"
)

// CORS allows the configured origins. origins is "*" or a comma-separated
// list; an entry like "https://*.vercel.app" matches any subdomain.
func CORS(origins string) func(http.Handler) http.Handler {
	allowedList := splitOrigins(origins)
	fallback := "*"
	if len(allowedList) > 0 && allowedList[0] != "*" {
		fallback = allowedList[0]
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqOrigin := r.Header.Get("Origin")
			allowed := fallback

			if reqOrigin != "" && isAllowed(reqOrigin, allowedList) {
				allowed = reqOrigin
			}

			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, strings.TrimRight(o, "/"))
		}
	}
	return out
}

func isAllowed(reqOrigin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || a == reqOrigin {
			return true
		}
		scheme, host, ok := strings.Cut(a, "://*.")
		if ok && strings.HasPrefix(reqOrigin, scheme+"://") && strings.HasSuffix(reqOrigin, "."+host) {
			return true
		}
	}
	return false
}
