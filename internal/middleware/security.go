// internal/middleware/security.go
//
// Security-header middleware.
//
// Injects standard headers on every response:
//
//   • Strict-Transport-Security  forces HTTPS (2 years + preload)
//   • Content-Security-Policy    self-only policy, plus the Google frames
//                                the tour pages embed
//   • X-Frame-Options            click-jacking defence
//   • X-Content-Type-Options     MIME-sniffing defence
//   • Referrer-Policy            drops path/query from Referer
//   • Permissions-Policy         disables powerful features by default
//
// Notes
// -----
// • Headers are set before next.ServeHTTP, because net/http ignores header
//   changes once the handler has written the status line.  A handler may
//   still override any of them.

package middleware

import "net/http"

const (
	hsts = "max-age=63072000; includeSubDomains; preload"
	csp  = "default-src 'self'; img-src 'self' data: https:; " +
		"frame-src 'self' https://www.google.com https://my.matterport.com; " +
		"connect-src 'self'; object-src 'none'; base-uri 'self'; frame-ancestors 'none'"
	xfo   = "DENY"
	nosn  = "nosniff"
	refer = "strict-origin-when-cross-origin"
	perm  = "geolocation=(), microphone=(), camera=()"
)

// Security sets security headers for every response.
func Security(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Strict-Transport-Security", hsts)
		h.Set("Content-Security-Policy", csp)
		h.Set("X-Frame-Options", xfo)
		h.Set("X-Content-Type-Options", nosn)
		h.Set("Referrer-Policy", refer)
		h.Set("Permissions-Policy", perm)

		next.ServeHTTP(w, r)
	})
}
