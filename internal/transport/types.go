package transport

import "context"

// Adapter is the outbound delivery surface. An address is an opaque,
// driver-specific identifier (Slack user/channel ID, Telegram chat ID).
//
// Errors are returned as-is; callers decide whether a failed send aborts
// anything (for campaign dispatch it never does).
type Adapter interface {
	// Name reports the driver name ("slack", "telegram").
	Name() string

	SendText(ctx context.Context, address string, text string) error

	Close(ctx context.Context) error
}

type Config struct {
	// Driver selects the delivery platform: "slack" (default) or "telegram".
	Driver string

	SlackToken    string
	TelegramToken string
}
