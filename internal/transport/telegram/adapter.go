package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	logx "outreachbot/pkg/logx"
)

type Config struct {
	Token string
}

// Adapter delivers messages through the Telegram Bot API. It is send-only:
// the bot never polls for updates, all triggering happens over HTTP.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

func (a *Adapter) Name() string { return "telegram" }

func (a *Adapter) SendText(ctx context.Context, address string, text string) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(address), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram address must be a chat id: %q", address)
	}
	// telebot has no context-aware send; bound the call so a stuck request
	// can't stall the dispatch loop past the caller's deadline.
	done := make(chan error, 1)
	go func() {
		_, err := a.bot.Send(&tele.Chat{ID: chatID}, text, tele.NoPreview)
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			a.log.Debug("telegram send failed", logx.Int64("chat_id", chatID), logx.Err(err))
		}
		return err
	}
}

func (a *Adapter) Close(ctx context.Context) error {
	return nil
}
