package identity

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// Resolves the key that rate limiting is scoped to.
// Priority: user id > IP address + browser fingerprint.
func Resolve(userID, ip, userAgent, acceptLanguage string) string {
	if userID != "" {
		return "user:" + userID
	}

	return fmt.Sprintf("ip:%s:%s", ip, Fingerprint(ip, userAgent, acceptLanguage))
}

// Computes a coarse browser fingerprint. This only reduces collisions
// between distinct browsers behind one IP - it is not a security boundary.
func Fingerprint(ip, userAgent, acceptLanguage string) string {
	sum := md5.Sum([]byte(ip + ":" + userAgent + ":" + acceptLanguage))
	return hex.EncodeToString(sum[:])[:8]
}

// Extracts the client IP, preferring proxy headers over the peer address.
func ClientIP(forwardedFor, realIP, remoteAddr string) string {
	if forwardedFor != "" {
		first := strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
		if first != "" {
			return first
		}
	}

	if realIP != "" {
		return realIP
	}

	if remoteAddr != "" {
		// Strip the port if present
		if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
			return host
		}
		return remoteAddr
	}

	return "unknown"
}

// Resolves the rate-limit key for an incoming gin request.
// userID is empty for anonymous callers.
func FromRequest(c *gin.Context, userID string) string {
	ip := ClientIP(
		c.GetHeader("X-Forwarded-For"),
		c.GetHeader("X-Real-IP"),
		c.Request.RemoteAddr,
	)

	return Resolve(userID, ip, c.GetHeader("User-Agent"), c.GetHeader("Accept-Language"))
}

// Reports whether the key belongs to a registered user.
func IsRegistered(key string) bool {
	return strings.HasPrefix(key, "user:")
}
