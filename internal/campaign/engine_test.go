package campaign

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"outreachbot/internal/dispatch"
	"outreachbot/internal/eventbus"
	"outreachbot/internal/message"
	"outreachbot/internal/notify"
	"outreachbot/internal/roster"
	"outreachbot/internal/schedule"
	logx "outreachbot/pkg/logx"
)

type recordingAdapter struct {
	mu   sync.Mutex
	sent []string // "address|text"
}

func (r *recordingAdapter) Name() string { return "fake" }

func (r *recordingAdapter) SendText(ctx context.Context, address, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, address+"|"+text)
	return nil
}

func (r *recordingAdapter) Close(ctx context.Context) error { return nil }

func (r *recordingAdapter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

const operator = "U_OPERATOR"

func newTestEngine(t *testing.T) (*Engine, *recordingAdapter, *dispatch.Service) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.csv")
	csv := "id,name,company,address\na,Alice,Acme,U1\nb,Bob,Binco,U2\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	ros, err := roster.Load(path, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}

	ad := &recordingAdapter{}
	disp := dispatch.New(dispatch.Config{Pace: time.Millisecond}, ros, ad, eventbus.New(), logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	disp.Start(ctx)
	t.Cleanup(func() {
		disp.Stop(context.Background())
		cancel()
	})

	eng := NewEngine(
		NewGuard(operator),
		NewStore(""),
		ros,
		schedule.New(logx.Nop()),
		disp,
		notify.New(nil, "", logx.Nop()),
		time.UTC,
		logx.Nop(),
	)
	return eng, ad, disp
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestUnauthorizedActorIsRejectedEverywhere(t *testing.T) {
	t.Parallel()
	eng, ad, _ := newTestEngine(t)
	const mallory = "U_OTHER"

	checks := []struct {
		name string
		call func() error
	}{
		{"SendNow", func() error { return eng.SendNow(mallory) }},
		{"Schedule", func() error { return eng.Schedule(mallory, time.Now().Add(time.Hour)) }},
		{"Cancel", func() error { _, err := eng.Cancel(mallory); return err }},
		{"UpdateSelection", func() error { return eng.UpdateSelection(mallory, nil) }},
		{"UpdateTemplate", func() error { return eng.UpdateTemplate(mallory, "hi") }},
		{"Reset", func() error { return eng.Reset(mallory) }},
		{"Status", func() error { _, err := eng.Status(mallory); return err }},
	}
	for _, c := range checks {
		if err := c.call(); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: err = %v, want ErrUnauthorized", c.name, err)
		}
	}
	time.Sleep(50 * time.Millisecond)
	if ad.count() != 0 {
		t.Fatalf("unauthorized calls caused %d sends", ad.count())
	}
}

func TestSendNowDeliversToSelection(t *testing.T) {
	t.Parallel()
	eng, ad, disp := newTestEngine(t)

	if err := eng.UpdateSelection(operator, map[string]struct{}{"b": {}}); err != nil {
		t.Fatalf("UpdateSelection: %v", err)
	}
	if err := eng.SendNow(operator); err != nil {
		t.Fatalf("SendNow: %v", err)
	}
	waitFor(t, func() bool { _, ok := disp.Last(); return ok })

	last, _ := disp.Last()
	if last.Sent != 1 || last.Total() != 1 {
		t.Fatalf("summary = %+v", last)
	}
	if ad.count() != 1 {
		t.Fatalf("sends = %d", ad.count())
	}
}

func TestUpdateSelectionRejectsUnknownID(t *testing.T) {
	t.Parallel()
	eng, _, _ := newTestEngine(t)
	err := eng.UpdateSelection(operator, map[string]struct{}{"nope": {}})
	if !errors.Is(err, ErrUnknownRecipient) {
		t.Fatalf("err = %v, want ErrUnknownRecipient", err)
	}
}

func TestUpdateTemplateSurfacesValidation(t *testing.T) {
	t.Parallel()
	eng, _, _ := newTestEngine(t)
	if err := eng.UpdateTemplate(operator, "  "); !errors.Is(err, message.ErrInvalidTemplate) {
		t.Fatalf("err = %v, want ErrInvalidTemplate", err)
	}
	st, err := eng.Status(operator)
	if err != nil {
		t.Fatal(err)
	}
	if st.Template != message.DefaultTemplate {
		t.Fatalf("template changed: %q", st.Template)
	}
}

func TestScheduleRejectsPast(t *testing.T) {
	t.Parallel()
	eng, _, _ := newTestEngine(t)
	err := eng.Schedule(operator, time.Now().Add(-time.Minute))
	if !errors.Is(err, schedule.ErrScheduleInPast) {
		t.Fatalf("err = %v, want ErrScheduleInPast", err)
	}
	st, _ := eng.Status(operator)
	if st.ScheduledAt != nil {
		t.Fatal("rejected schedule left bookkeeping behind")
	}
}

func TestScheduleUsesConfigSnapshot(t *testing.T) {
	t.Parallel()
	eng, ad, disp := newTestEngine(t)

	if err := eng.UpdateTemplate(operator, "snapshot for {name}"); err != nil {
		t.Fatal(err)
	}
	if err := eng.Schedule(operator, time.Now().Add(60*time.Millisecond)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	// edits after arming must not change the armed payload
	if err := eng.UpdateTemplate(operator, "edited later"); err != nil {
		t.Fatal(err)
	}
	if err := eng.UpdateSelection(operator, map[string]struct{}{}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { _, ok := disp.Last(); return ok })
	last, _ := disp.Last()
	if last.Origin != dispatch.OriginScheduled || last.Sent != 2 {
		t.Fatalf("summary = %+v", last)
	}
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if ad.sent[0] != "U1|snapshot for Alice" {
		t.Fatalf("sent[0] = %q", ad.sent[0])
	}

	st, _ := eng.Status(operator)
	if st.ScheduledAt != nil {
		t.Fatal("fired schedule left bookkeeping behind")
	}
}

func TestCancelPreventsScheduledDispatch(t *testing.T) {
	t.Parallel()
	eng, ad, _ := newTestEngine(t)

	if err := eng.Schedule(operator, time.Now().Add(80*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	disarmed, err := eng.Cancel(operator)
	if err != nil || !disarmed {
		t.Fatalf("Cancel = %v, %v", disarmed, err)
	}
	time.Sleep(200 * time.Millisecond)
	if ad.count() != 0 {
		t.Fatalf("cancelled schedule still sent %d messages", ad.count())
	}

	// idempotent
	disarmed, err = eng.Cancel(operator)
	if err != nil || disarmed {
		t.Fatalf("second Cancel = %v, %v", disarmed, err)
	}
}

func TestResetCancelsScheduleAndRestoresDefaults(t *testing.T) {
	t.Parallel()
	eng, ad, _ := newTestEngine(t)

	if err := eng.UpdateSelection(operator, map[string]struct{}{}); err != nil {
		t.Fatal(err)
	}
	if err := eng.Schedule(operator, time.Now().Add(80*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if err := eng.Reset(operator); err != nil {
		t.Fatal(err)
	}

	st, _ := eng.Status(operator)
	if !st.SelectionAll || st.ScheduledAt != nil || st.Template != message.DefaultTemplate {
		t.Fatalf("after reset: %+v", st)
	}
	time.Sleep(200 * time.Millisecond)
	if ad.count() != 0 {
		t.Fatalf("reset did not cancel the schedule; %d sends", ad.count())
	}
}
