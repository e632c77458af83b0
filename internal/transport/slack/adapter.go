package slack

import (
	"context"
	"errors"
	"strings"

	"github.com/slack-go/slack"

	logx "outreachbot/pkg/logx"
)

type Config struct {
	Token string
}

// Adapter delivers messages through the Slack Web API (chat.postMessage).
type Adapter struct {
	cfg Config
	log logx.Logger

	api *slack.Client
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("slack token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{cfg: cfg, log: log, api: slack.New(cfg.Token)}, nil
}

func (a *Adapter) Name() string { return "slack" }

func (a *Adapter) SendText(ctx context.Context, address string, text string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return errors.New("empty slack address")
	}
	_, _, err := a.api.PostMessageContext(ctx, address,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		a.log.Debug("slack send failed", logx.String("address", address), logx.Err(err))
	}
	return err
}

func (a *Adapter) Close(ctx context.Context) error { return nil }
