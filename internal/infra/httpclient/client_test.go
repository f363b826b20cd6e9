package httpclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/payflow/server/internal/shared/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	client := New(config.HTTPClientConfig{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		MaxConnsPerHost:     7,
		IdleConnTimeout:     time.Minute,
		ResponseTimeout:     3 * time.Second,
	})

	assert.Equal(t, 3*time.Second, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 10, transport.MaxIdleConns)
	assert.Equal(t, 5, transport.MaxIdleConnsPerHost)
	assert.Equal(t, 7, transport.MaxConnsPerHost)
	assert.Equal(t, time.Minute, transport.IdleConnTimeout)
}
