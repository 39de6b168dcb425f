package gateway

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripHopByHopRemovesListedHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Connection", "Keep-Alive, X-Custom")
	h.Set("Keep-Alive", "timeout=5")
	h.Set("X-Custom", "foo")
	h.Set("Proxy-Authorization", "Basic abc")
	h.Set("Content-Type", "text/plain")

	stripHopByHop(h)

	require.Empty(t, h.Get("Connection"))
	require.Empty(t, h.Get("Keep-Alive"))
	require.Empty(t, h.Get("X-Custom"))
	require.Empty(t, h.Get("Proxy-Authorization"))
	require.Equal(t, "text/plain", h.Get("Content-Type"))
}
