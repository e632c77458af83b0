package server

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"

	logx "outreachbot/pkg/logx"
	"outreachbot/pkg/metrics"
)

func Observability(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		lat := time.Since(start)
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(lat.Seconds())

		if !log.IsZero() {
			log.Debug("http access",
				logx.String("method", c.Request.Method),
				logx.String("path", path),
				logx.Int("status", status),
				logx.Duration("duration", lat),
				logx.String("client_ip", c.ClientIP()),
			)
		}
	}
}

// VerifySlackSignature rejects requests whose X-Slack-Signature does not
// match the signing secret. The body is restored for downstream handlers.
func VerifySlackSignature(secret string, log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		sv, err := slack.NewSecretsVerifier(c.Request.Header, secret)
		if err != nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		if _, err := sv.Write(body); err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		if err := sv.Ensure(); err != nil {
			if !log.IsZero() {
				log.Warn("slack signature rejected", logx.String("client_ip", c.ClientIP()))
			}
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
