package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"outreachbot/internal/campaign"
	"outreachbot/internal/dispatch"
	"outreachbot/internal/message"
	"outreachbot/internal/schedule"
	logx "outreachbot/pkg/logx"
)

const helpText = `Campaign commands:
  send                      dispatch to the current selection now
  schedule <when>           dispatch later ("+30m", "2026-01-02 15:04", or RFC3339)
  cancel                    disarm a scheduled dispatch
  select all|none|id,id...  choose recipients
  template <text>           set the message ({name} and {company} placeholders)
  status                    show current campaign state
  reset                     restore defaults and disarm the schedule`

type Handlers struct {
	engine *campaign.Engine
	log    logx.Logger
}

func NewHandlers(engine *campaign.Engine, log logx.Logger) *Handlers {
	return &Handlers{engine: engine, log: log}
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// SlashCommand handles the Slack slash-command form POST. Every reply is an
// ephemeral message; errors are reported as text rather than HTTP status so
// Slack shows them to the operator.
func (h *Handlers) SlashCommand(c *gin.Context) {
	actor := strings.TrimSpace(c.PostForm("user_id"))
	text := strings.TrimSpace(c.PostForm("text"))

	sub, rest := splitCommand(text)
	var reply string
	var err error

	switch sub {
	case "send":
		err = h.engine.SendNow(actor)
		reply = "Dispatch started."
	case "schedule":
		var at time.Time
		at, err = parseWhen(rest, h.engine.Location())
		if err == nil {
			err = h.engine.Schedule(actor, at)
			reply = "Campaign scheduled for " + at.In(h.engine.Location()).Format("2006-01-02 15:04 MST") + "."
		}
	case "cancel":
		var disarmed bool
		disarmed, err = h.engine.Cancel(actor)
		if disarmed {
			reply = "Scheduled campaign cancelled."
		} else {
			reply = "Nothing was scheduled."
		}
	case "select":
		err = h.handleSelect(actor, rest)
		reply = "Selection updated."
	case "template":
		if rest == "" {
			reply = "Usage: template <text>"
			break
		}
		err = h.engine.UpdateTemplate(actor, rest)
		reply = "Template updated."
	case "status":
		var info campaign.StatusInfo
		info, err = h.engine.Status(actor)
		if err == nil {
			reply = renderStatus(info, h.engine.Location())
		}
	case "reset":
		err = h.engine.Reset(actor)
		reply = "Campaign reset to defaults."
	case "", "help":
		reply = helpText
	default:
		reply = fmt.Sprintf("Unknown command %q.\n%s", sub, helpText)
	}

	if err != nil {
		reply = describeError(err)
		if !h.log.IsZero() && !errors.Is(err, campaign.ErrUnauthorized) {
			h.log.Warn("command failed",
				logx.String("actor", actor),
				logx.String("command", sub),
				logx.Err(err))
		}
	}
	ephemeral(c, reply)
}

func (h *Handlers) handleSelect(actor, rest string) error {
	switch strings.ToLower(rest) {
	case "":
		return fmt.Errorf("usage: select all|none|id,id,...")
	case "all":
		return h.engine.UpdateSelection(actor, nil)
	case "none":
		return h.engine.UpdateSelection(actor, map[string]struct{}{})
	}
	ids := make(map[string]struct{})
	for _, id := range strings.Split(rest, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	return h.engine.UpdateSelection(actor, ids)
}

func splitCommand(text string) (sub, rest string) {
	sub, rest, _ = strings.Cut(text, " ")
	return strings.ToLower(strings.TrimSpace(sub)), strings.TrimSpace(rest)
}

// parseWhen accepts a relative offset ("+30m"), a local wall-clock time
// ("2026-01-02 15:04" in the display timezone), or RFC3339.
func parseWhen(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("schedule needs a time, e.g. \"+30m\" or \"2026-01-02 15:04\"")
	}
	if strings.HasPrefix(s, "+") {
		d, err := time.ParseDuration(s[1:])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid offset %q: %w", s, err)
		}
		return time.Now().Add(d), nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("could not parse time %q", s)
}

func describeError(err error) string {
	switch {
	case errors.Is(err, campaign.ErrUnauthorized):
		return "You are not allowed to run campaign commands."
	case errors.Is(err, dispatch.ErrBusy):
		return "A dispatch is already in progress; try again when it finishes."
	case errors.Is(err, dispatch.ErrNotRunning):
		return "The dispatcher is not running."
	case errors.Is(err, schedule.ErrScheduleInPast):
		return "The scheduled time is in the past."
	case errors.Is(err, message.ErrInvalidTemplate):
		return "Invalid template: " + err.Error()
	case errors.Is(err, campaign.ErrUnknownRecipient):
		return "Unknown recipient: " + err.Error()
	default:
		return "Error: " + err.Error()
	}
}

func renderStatus(info campaign.StatusInfo, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Roster: %d recipients\n", info.RosterSize)
	if info.SelectionAll {
		b.WriteString("Selection: everyone\n")
	} else {
		fmt.Fprintf(&b, "Selection: %d recipients\n", info.SelectionCount)
	}
	fmt.Fprintf(&b, "Template: %s\n", info.Template)
	if info.ScheduledAt != nil {
		fmt.Fprintf(&b, "Scheduled: %s\n", info.ScheduledAt.In(loc).Format("2006-01-02 15:04 MST"))
	} else {
		b.WriteString("Scheduled: nothing\n")
	}
	if lr := info.LastRun; lr != nil {
		fmt.Fprintf(&b, "Last run (%s, %s): %d sent, %d failed, %d skipped",
			lr.Origin, lr.StartedAt.In(loc).Format("2006-01-02 15:04"),
			lr.Sent, lr.Failed, lr.Skipped)
		if lr.Aborted {
			b.WriteString(" (aborted)")
		}
	} else {
		b.WriteString("Last run: none")
	}
	return b.String()
}

func ephemeral(c *gin.Context, text string) {
	c.JSON(http.StatusOK, gin.H{
		"response_type": "ephemeral",
		"text":          text,
	})
}
