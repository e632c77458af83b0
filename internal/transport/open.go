package transport

import (
	"fmt"
	"strings"

	slackadapter "outreachbot/internal/transport/slack"
	tgadapter "outreachbot/internal/transport/telegram"
	logx "outreachbot/pkg/logx"
)

// Open builds the configured delivery adapter.
func Open(cfg Config, log logx.Logger) (Adapter, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "slack"
	}
	switch driver {
	case "slack":
		return slackadapter.New(slackadapter.Config{Token: cfg.SlackToken}, log)
	case "telegram":
		return tgadapter.New(tgadapter.Config{Token: cfg.TelegramToken}, log)
	default:
		return nil, fmt.Errorf("unknown transport driver: %s", driver)
	}
}
