package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{
			name:      "nil error",
			err:       nil,
			transient: false,
		},
		{
			name:      "rate-limited geocode call",
			err:       NewTransientError(errors.New("nominatim returned status 429"), 429),
			transient: true,
		},
		{
			name:      "wrapped transient download failure",
			err:       fmt.Errorf("download tl_2022_08_tract.zip: %w", NewTransientError(errors.New("census returned status 503"), 503)),
			transient: true,
		},
		{
			name:      "missing state archive",
			err:       errors.New("census returned status 404"),
			transient: false,
		},
		{
			name:      "corrupt shapefile archive",
			err:       errors.New("tracts: open zip: not a valid zip file"),
			transient: false,
		},
		{
			name:      "connection reset mid-download",
			err:       fmt.Errorf("read tcp: %w", syscall.ECONNRESET),
			transient: true,
		},
		{
			name:      "census server refusing connections",
			err:       fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED),
			transient: true,
		},
		{
			name:      "dns timeout",
			err:       &net.DNSError{IsTimeout: true, Err: "timeout"},
			transient: true,
		},
		{
			name:      "dns lookup failure surfaced as string",
			err:       errors.New("dial tcp: lookup www2.census.gov: no such host"),
			transient: true,
		},
		{
			name:      "tls handshake timeout surfaced as string",
			err:       errors.New("net/http: TLS handshake timeout"),
			transient: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "HTTP %d", code)
	}
	for _, code := range []int{200, 301, 400, 403, 404, 410} {
		assert.False(t, IsTransientHTTPStatus(code), "HTTP %d", code)
	}
}

func TestTransientErrorUnwrap(t *testing.T) {
	inner := errors.New("census returned status 502")
	te := NewTransientError(inner, 502)

	assert.ErrorIs(t, te, inner)
	assert.Equal(t, 502, te.StatusCode)
	assert.Equal(t, inner.Error(), te.Error())
}
