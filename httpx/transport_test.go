package httpx

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransport(t *testing.T) {
	tr, err := NewTransport(TransportConfig{
		ProxyURL:              "http://proxy.internal:3128",
		DialTimeout:           time.Second,
		ResponseHeaderTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, tr.ResponseHeaderTimeout)

	req, err := http.NewRequest(http.MethodGet, "https://api.example.com/x", nil)
	require.NoError(t, err)
	proxy, err := tr.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "proxy.internal:3128", proxy.Host)

	_, err = NewTransport(TransportConfig{ProxyURL: "http://[::1"})
	assert.True(t, IsConfigError(err))
}

func TestDefaultTransport_IsIndependentClone(t *testing.T) {
	a, b := DefaultTransport(), DefaultTransport()
	assert.NotSame(t, a, b)
	a.MaxIdleConnsPerHost = 1
	assert.Equal(t, 16, b.MaxIdleConnsPerHost)
}
