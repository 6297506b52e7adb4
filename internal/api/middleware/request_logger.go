package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	HeaderRequestID = "X-Request-Id"
	CtxRequestID    = "request_id"
)

// RequestLogger emits one structured line per request. Conversation text,
// queries and export payloads never reach the log: only ids, route and
// timing. Health checks are logged at debug.
func RequestLogger(l *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		rid := c.GetHeader(HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(CtxRequestID, rid)
		c.Header(HeaderRequestID, rid)

		c.Next()

		fields := logrus.Fields{
			"component":   "http",
			"request_id":  rid,
			"route":       c.Request.Method + " " + c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(began).Milliseconds(),
			"bytes_out":   c.Writer.Size(),
		}
		if uid := c.GetString(CtxUserID); uid != "" {
			fields["user_id"] = uid
		}
		if sid := c.Param("session_id"); sid != "" {
			fields["session_id"] = sid
		}
		if ct := c.Param("consent_type"); ct != "" {
			fields["consent_type"] = ct
		}
		entry := l.WithFields(fields)
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			entry = entry.WithError(errs.Last())
		}

		st := c.Writer.Status()
		switch {
		case c.FullPath() == "/ping":
			entry.Debug("health check")
		case st >= 500:
			entry.Error("request failed")
		case st >= 400:
			entry.Warn("request rejected")
		default:
			entry.Info("request served")
		}
	}
}
