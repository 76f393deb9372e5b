package middleware

import (
	"net"
	"net/http"
)

// HTTPSRedirectHandler redirects cleartext requests to the HTTPS listener.
// Runs as its own server on :80 next to the TLS server. Webhook deliveries
// are POSTs, so non-GET methods get 308, which providers follow without
// downgrading the method or dropping the body; the port is stripped so the
// redirect lands on the default TLS port.
func HTTPSRedirectHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		target := "https://" + host + r.URL.RequestURI()

		code := http.StatusMovedPermanently
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			code = http.StatusPermanentRedirect
		}
		http.Redirect(w, r, target, code)
	})
}
