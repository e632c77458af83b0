package campaign

import (
	"context"
	"fmt"
	"time"

	"outreachbot/internal/dispatch"
	"outreachbot/internal/notify"
	"outreachbot/internal/roster"
	"outreachbot/internal/schedule"
	logx "outreachbot/pkg/logx"
)

// Engine is the single entry point for operator actions. Every operation
// authorizes the actor first; validation errors surface immediately while
// the actual delivery work always runs off the caller's path.
type Engine struct {
	guard *Guard
	store *Store
	ros   *roster.Roster
	sched *schedule.Service
	disp  *dispatch.Service
	notif *notify.Service
	log   logx.Logger
	loc   *time.Location
}

func NewEngine(guard *Guard, store *Store, ros *roster.Roster, sched *schedule.Service, disp *dispatch.Service, notif *notify.Service, loc *time.Location, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Engine{
		guard: guard,
		store: store,
		ros:   ros,
		sched: sched,
		disp:  disp,
		notif: notif,
		log:   log,
		loc:   loc,
	}
}

// SendNow starts a dispatch run with the current campaign config. The run
// executes on the dispatcher's worker; this returns as soon as the hand-off
// succeeds (or fails with dispatch.ErrBusy).
func (e *Engine) SendNow(actor string) error {
	if !e.guard.Authorize(actor) {
		return ErrUnauthorized
	}
	cfg := e.store.Get()
	err := e.disp.TryRun(dispatch.Request{
		Origin:   dispatch.OriginManual,
		Filter:   cfg.Selection,
		Template: cfg.Template,
		OnDone:   e.completionNotice,
	})
	if err != nil {
		return err
	}
	e.log.Info("manual dispatch requested", logx.String("actor", actor))
	go e.notif.Notify(context.Background(), "Sending campaign messages...")
	return nil
}

// Schedule arms a one-shot dispatch at the given time, replacing any
// previously armed job. The selection and template are captured now, so
// later edits don't change what the armed job will send.
func (e *Engine) Schedule(actor string, at time.Time) error {
	if !e.guard.Authorize(actor) {
		return ErrUnauthorized
	}
	cfg := e.store.Get()
	job := func() {
		// the timer is already cleared; drop the display bookkeeping too
		e.store.SetScheduledAt(nil)
		err := e.disp.TryRun(dispatch.Request{
			Origin:   dispatch.OriginScheduled,
			Filter:   cfg.Selection,
			Template: cfg.Template,
			OnDone:   e.completionNotice,
		})
		if err != nil {
			e.log.Warn("scheduled dispatch rejected", logx.Err(err))
			e.notif.Notify(context.Background(), "Scheduled dispatch skipped: another run is in flight.")
		}
	}
	if err := e.sched.Arm(at, job); err != nil {
		return err
	}
	e.store.SetScheduledAt(&at)
	e.log.Info("dispatch scheduled", logx.String("actor", actor), logx.Time("fire_at", at))
	go e.notif.Notify(context.Background(), "Campaign scheduled for "+e.formatTime(at)+".")
	return nil
}

// Cancel disarms a pending scheduled dispatch. Cancelling when nothing is
// armed is a no-op, not an error. A run that already started cannot be
// cancelled.
func (e *Engine) Cancel(actor string) (bool, error) {
	if !e.guard.Authorize(actor) {
		return false, ErrUnauthorized
	}
	disarmed := e.sched.Cancel()
	e.store.SetScheduledAt(nil)
	if disarmed {
		go e.notif.Notify(context.Background(), "Scheduled campaign cancelled.")
	}
	return disarmed, nil
}

// UpdateSelection replaces the recipient selection. nil means everyone, an
// empty set means nobody. Every id must belong to the roster.
func (e *Engine) UpdateSelection(actor string, ids map[string]struct{}) error {
	if !e.guard.Authorize(actor) {
		return ErrUnauthorized
	}
	for id := range ids {
		if !e.ros.Has(id) {
			return fmt.Errorf("%w: %q", ErrUnknownRecipient, id)
		}
	}
	e.store.SetSelection(ids)
	return nil
}

// UpdateTemplate validates and replaces the message template; on failure
// the previous template stays in place.
func (e *Engine) UpdateTemplate(actor string, text string) error {
	if !e.guard.Authorize(actor) {
		return ErrUnauthorized
	}
	return e.store.SetTemplate(text)
}

// Reset restores the default config and disarms any scheduled dispatch.
func (e *Engine) Reset(actor string) error {
	if !e.guard.Authorize(actor) {
		return ErrUnauthorized
	}
	e.sched.Cancel()
	e.store.Reset()
	e.log.Info("campaign reset", logx.String("actor", actor))
	return nil
}

// StatusInfo is a read snapshot for the operator's status view.
type StatusInfo struct {
	RosterSize     int
	SelectionAll   bool
	SelectionCount int
	Template       string
	ScheduledAt    *time.Time
	LastRun        *dispatch.Summary
}

func (e *Engine) Status(actor string) (StatusInfo, error) {
	if !e.guard.Authorize(actor) {
		return StatusInfo{}, ErrUnauthorized
	}
	cfg := e.store.Get()
	info := StatusInfo{
		RosterSize:   e.ros.Len(),
		SelectionAll: cfg.SelectionAll(),
		Template:     cfg.Template,
		ScheduledAt:  cfg.ScheduledAt,
	}
	if !info.SelectionAll {
		info.SelectionCount = len(cfg.Selection)
	}
	if last, ok := e.disp.Last(); ok {
		info.LastRun = &last
	}
	return info, nil
}

// FormatTime renders t in the engine's display timezone.
func (e *Engine) formatTime(t time.Time) string {
	return t.In(e.loc).Format("2006-01-02 15:04 MST")
}

func (e *Engine) completionNotice(sum dispatch.Summary) {
	e.notif.Notify(context.Background(), fmt.Sprintf(
		"Campaign done: %d sent, %d failed, %d skipped.",
		sum.Sent, sum.Failed, sum.Skipped))
}

// Location returns the display timezone (used by the command surface to
// parse operator-supplied times).
func (e *Engine) Location() *time.Location { return e.loc }
