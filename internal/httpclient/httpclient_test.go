package httpclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, defaultTimeout, c.Timeout)

	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, defaultTimeout, tr.ResponseHeaderTimeout)
}

func TestHeaderTimeoutCappedByTimeout(t *testing.T) {
	c := New(Options{Timeout: 10 * time.Second, ResponseHeaderTimeout: time.Minute})
	tr := c.Transport.(*http.Transport)
	assert.Equal(t, 10*time.Second, tr.ResponseHeaderTimeout)

	c = New(Options{Timeout: time.Minute, ResponseHeaderTimeout: 5 * time.Second})
	tr = c.Transport.(*http.Transport)
	assert.Equal(t, 5*time.Second, tr.ResponseHeaderTimeout)
}

func TestPreferIPv4DialsLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	resp, err := New(Options{PreferIPv4: true, Timeout: 5 * time.Second}).Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}
