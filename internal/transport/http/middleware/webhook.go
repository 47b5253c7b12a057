package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"fulfillment-service/internal/transport/http/dto"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const SignatureHeader = "X-Signature"

const maxWebhookBody = 1 << 20

// WebhookSignature verifies the hex HMAC-SHA256 of the raw body against X-Signature
// and restores the body for the handler.
func WebhookSignature(secret string, log *zap.Logger) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewValidationError("unreadable body", nil))
			return
		}
		got, err := hex.DecodeString(c.GetHeader(SignatureHeader))
		if err != nil || !hmac.Equal(got, Sign(key, body)) {
			log.Warn("webhook signature mismatch", zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewUnauthorizedError("invalid signature"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}

func Sign(key, body []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return mac.Sum(nil)
}
