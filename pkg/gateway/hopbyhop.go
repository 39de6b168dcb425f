package gateway

import (
	"net/http"
	"strings"
)

// hopByHopHeaders are the headers RFC 7230 §6.1 says a proxy element must
// not forward unchanged; spec.md §6's Gateway HTTP surface says the
// server "removes only hop-by-hop headers during 401 interception".
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// stripHopByHop removes the RFC 7230 §6.1 hop-by-hop headers from h,
// including any header the Connection header itself names.
func stripHopByHop(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			h.Del(strings.TrimSpace(name))
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}
