// Package notify delivers operator-facing status messages ("sending",
// "scheduled for ...", completion summaries). Notification failures are
// logged and swallowed: they must never fail the operation that produced
// them.
package notify

import (
	"context"
	"strings"
	"time"

	"outreachbot/internal/transport"
	logx "outreachbot/pkg/logx"
)

type Service struct {
	adapter transport.Adapter
	target  string
	log     logx.Logger
}

// New creates the sink. target is the transport address of the operator's
// notification channel; when empty, notifications are log-only.
func New(adapter transport.Adapter, target string, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{adapter: adapter, target: strings.TrimSpace(target), log: log}
}

func (n *Service) Notify(ctx context.Context, text string) {
	if n == nil || n.target == "" || n.adapter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := n.adapter.SendText(ctx, n.target, text); err != nil {
		n.log.Warn("operator notification failed", logx.Err(err))
		return
	}
	n.log.Debug("operator notified", logx.String("text", text))
}
