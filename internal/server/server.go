// Package server exposes the operator command surface over HTTP: a Slack
// slash-command endpoint plus health and metrics routes.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	logx "outreachbot/pkg/logx"
	"outreachbot/pkg/metrics"
)

type Config struct {
	Addr string

	// SigningSecret verifies Slack request signatures. Empty skips
	// verification (local development only).
	SigningSecret string
}

func New(cfg Config, h *Handlers, log logx.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), Observability(log))

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.POST("/slack/command", VerifySlackSignature(cfg.SigningSecret, log), h.SlashCommand)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
