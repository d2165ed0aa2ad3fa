package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_UserIDWins(t *testing.T) {
	key := Resolve("42", "203.0.113.9", "Mozilla/5.0", "en-US")
	assert.Equal(t, "user:42", key)
}

func TestResolve_Anonymous(t *testing.T) {
	key := Resolve("", "203.0.113.9", "Mozilla/5.0", "en-US")

	assert.True(t, len(key) > len("ip:203.0.113.9:"))
	assert.Contains(t, key, "ip:203.0.113.9:")
	// Fingerprint is an 8 hex char suffix
	assert.Len(t, key[len("ip:203.0.113.9:"):], 8)
}

func TestResolve_Stable(t *testing.T) {
	a := Resolve("", "203.0.113.9", "Mozilla/5.0", "en-US")
	b := Resolve("", "203.0.113.9", "Mozilla/5.0", "en-US")
	assert.Equal(t, a, b)
}

func TestResolve_DistinctBrowsersSameIP(t *testing.T) {
	a := Resolve("", "203.0.113.9", "Mozilla/5.0", "en-US")
	b := Resolve("", "203.0.113.9", "curl/8.0", "")
	assert.NotEqual(t, a, b)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name         string
		forwardedFor string
		realIP       string
		remoteAddr   string
		want         string
	}{
		{"forwarded-for first entry", "198.51.100.7, 10.0.0.1", "203.0.113.2", "10.0.0.2:4431", "198.51.100.7"},
		{"forwarded-for trims spaces", "  198.51.100.7 ,10.0.0.1", "", "", "198.51.100.7"},
		{"real-ip fallback", "", "203.0.113.2", "10.0.0.2:4431", "203.0.113.2"},
		{"remote addr strips port", "", "", "10.0.0.2:4431", "10.0.0.2"},
		{"remote addr without port", "", "", "10.0.0.2", "10.0.0.2"},
		{"nothing available", "", "", "", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClientIP(tt.forwardedFor, tt.realIP, tt.remoteAddr)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsRegistered(t *testing.T) {
	assert.True(t, IsRegistered("user:42"))
	assert.False(t, IsRegistered("ip:203.0.113.9:a1b2c3d4"))
}
