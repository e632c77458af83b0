package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"outreachbot/internal/campaign"
	"outreachbot/internal/dispatch"
	"outreachbot/internal/eventbus"
	"outreachbot/internal/notify"
	"outreachbot/internal/roster"
	"outreachbot/internal/schedule"
	logx "outreachbot/pkg/logx"
)

const operator = "U_OPERATOR"

type recordingAdapter struct {
	mu   sync.Mutex
	sent []string
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

func newTestServer(t *testing.T, secret string) (http.Handler, *recordingAdapter) {
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

	eng := campaign.NewEngine(
		campaign.NewGuard(operator),
		campaign.NewStore(""),
		ros,
		schedule.New(logx.Nop()),
		disp,
		notify.New(nil, "", logx.Nop()),
		time.UTC,
		logx.Nop(),
	)
	srv := New(Config{Addr: ":0", SigningSecret: secret}, NewHandlers(eng, logx.Nop()), logx.Nop())
	return srv.Handler, ad
}

func slashCommand(t *testing.T, h http.Handler, user, text string) (int, string) {
	t.Helper()
	form := url.Values{"user_id": {user}, "text": {text}}
	req := httptest.NewRequest(http.MethodPost, "/slack/command", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		return w.Code, w.Body.String()
	}
	var resp struct {
		ResponseType string `json:"response_type"`
		Text         string `json:"text"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response %q: %v", w.Body.String(), err)
	}
	if resp.ResponseType != "ephemeral" {
		t.Fatalf("response_type = %q", resp.ResponseType)
	}
	return w.Code, resp.Text
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", w.Code, w.Body.String())
	}
}

func TestHelpAndUnknownCommand(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t, "")

	_, text := slashCommand(t, h, operator, "")
	if !strings.Contains(text, "Campaign commands") {
		t.Errorf("empty command should show help, got %q", text)
	}
	_, text = slashCommand(t, h, operator, "frobnicate")
	if !strings.Contains(text, `Unknown command "frobnicate"`) {
		t.Errorf("unknown command reply = %q", text)
	}
}

func TestUnauthorizedUser(t *testing.T) {
	t.Parallel()
	h, ad := newTestServer(t, "")

	code, text := slashCommand(t, h, "U_MALLORY", "send")
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if !strings.Contains(text, "not allowed") {
		t.Errorf("reply = %q", text)
	}
	time.Sleep(50 * time.Millisecond)
	if ad.count() != 0 {
		t.Errorf("unauthorized send delivered %d messages", ad.count())
	}
}

func TestSendCommandDispatches(t *testing.T) {
	t.Parallel()
	h, ad := newTestServer(t, "")

	_, text := slashCommand(t, h, operator, "send")
	if text != "Dispatch started." {
		t.Fatalf("reply = %q", text)
	}
	deadline := time.Now().Add(5 * time.Second)
	for ad.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if ad.count() != 2 {
		t.Fatalf("sent = %d, want 2", ad.count())
	}
}

func TestScheduleCommand(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t, "")

	_, text := slashCommand(t, h, operator, "schedule +30m")
	if !strings.Contains(text, "Campaign scheduled for") {
		t.Errorf("reply = %q", text)
	}
	_, text = slashCommand(t, h, operator, "schedule soonish")
	if !strings.Contains(text, "could not parse time") {
		t.Errorf("reply = %q", text)
	}
	_, text = slashCommand(t, h, operator, "schedule 2000-01-01T00:00:00Z")
	if !strings.Contains(text, "in the past") {
		t.Errorf("reply = %q", text)
	}
	_, text = slashCommand(t, h, operator, "cancel")
	if text != "Scheduled campaign cancelled." {
		t.Errorf("reply = %q", text)
	}
	_, text = slashCommand(t, h, operator, "cancel")
	if text != "Nothing was scheduled." {
		t.Errorf("reply = %q", text)
	}
}

func TestSelectAndTemplateCommands(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t, "")

	_, text := slashCommand(t, h, operator, "select a, b")
	if text != "Selection updated." {
		t.Errorf("reply = %q", text)
	}
	_, text = slashCommand(t, h, operator, "select ghost")
	if !strings.Contains(text, "Unknown recipient") {
		t.Errorf("reply = %q", text)
	}
	_, text = slashCommand(t, h, operator, "template Hello {name} from {company}!")
	if text != "Template updated." {
		t.Errorf("reply = %q", text)
	}
	_, text = slashCommand(t, h, operator, "template Hello {planet}")
	if !strings.Contains(text, "Invalid template") {
		t.Errorf("reply = %q", text)
	}
}

func TestStatusCommand(t *testing.T) {
	t.Parallel()
	h, _ := newTestServer(t, "")

	if _, text := slashCommand(t, h, operator, "select a"); text != "Selection updated." {
		t.Fatalf("select reply = %q", text)
	}
	_, text := slashCommand(t, h, operator, "status")
	for _, want := range []string{"Roster: 2 recipients", "Selection: 1 recipients", "Scheduled: nothing", "Last run: none"} {
		if !strings.Contains(text, want) {
			t.Errorf("status missing %q in %q", want, text)
		}
	}
}

func TestSignatureVerification(t *testing.T) {
	t.Parallel()
	const secret = "8f742231b10e8888abcd99yyyzzz85a5"
	h, _ := newTestServer(t, secret)

	body := url.Values{"user_id": {operator}, "text": {"status"}}.Encode()

	// unsigned request is rejected
	req := httptest.NewRequest(http.MethodPost, "/slack/command", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unsigned request: code = %d, want 401", w.Code)
	}

	// correctly signed request passes
	ts := fmt.Sprint(time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:%s", ts, body)
	sig := "v0=" + hex.EncodeToString(mac.Sum(nil))

	req = httptest.NewRequest(http.MethodPost, "/slack/command", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Slack-Request-Timestamp", ts)
	req.Header.Set("X-Slack-Signature", sig)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("signed request: code = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestParseWhen(t *testing.T) {
	t.Parallel()

	if _, err := parseWhen("", time.UTC); err == nil {
		t.Error("empty input should fail")
	}
	got, err := parseWhen("2026-09-01 15:04", time.UTC)
	if err != nil {
		t.Fatalf("parseWhen: %v", err)
	}
	want := time.Date(2026, 9, 1, 15, 4, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	got, err = parseWhen("+90m", time.UTC)
	if err != nil {
		t.Fatalf("parseWhen: %v", err)
	}
	if d := time.Until(got); d < 89*time.Minute || d > 91*time.Minute {
		t.Errorf("offset time %v off by %v", got, d)
	}
}
