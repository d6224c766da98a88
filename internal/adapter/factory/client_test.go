package factory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewUpstreamTransport(t *testing.T) {
	tr := NewUpstreamTransport(15 * time.Second)

	assert.Equal(t, 15*time.Second, tr.ResponseHeaderTimeout)
	assert.Equal(t, DefaultMaxIdleConnsPerHost, tr.MaxIdleConnsPerHost)
	assert.True(t, tr.ForceAttemptHTTP2)

	assert.Zero(t, NewUpstreamTransport(0).ResponseHeaderTimeout, "zero means no header timeout")
}
