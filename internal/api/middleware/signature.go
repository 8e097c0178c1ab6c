package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	TimestampHeader = "X-Frameio-Request-Timestamp"
	SignatureHeader = "X-Frameio-Signature"

	signatureVersion = "v0"
	maxClockSkew     = 5 * time.Minute
	maxBodyBytes     = 1 << 20
)

// VerifySignature rejects webhook calls whose HMAC signature does not match
// the shared secret or whose timestamp is outside the allowed skew.
func VerifySignature(secret string, now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	key := []byte(secret)

	return func(c *gin.Context) {
		ts := c.GetHeader(TimestampHeader)
		sig := c.GetHeader(SignatureHeader)
		if ts == "" || sig == "" {
			reject(c, "missing signature headers")
			return
		}

		unix, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			reject(c, "invalid request timestamp")
			return
		}
		if skew := now().Sub(time.Unix(unix, 0)); skew > maxClockSkew || skew < -maxClockSkew {
			reject(c, "request timestamp outside allowed window")
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
		if err != nil {
			reject(c, "unreadable request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if !hmac.Equal([]byte(sig), []byte(Sign(key, ts, body))) {
			reject(c, "signature mismatch")
			return
		}
		c.Next()
	}
}

// Sign computes the signature header value for a timestamp and body.
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(signatureVersion + ":" + timestamp + ":"))
	mac.Write(body)
	return signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}

func reject(c *gin.Context, reason string) {
	log.Warn().Str("path", c.Request.URL.Path).Str("ip", c.ClientIP()).Msg("webhook rejected: " + reason)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
}
