package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/doridoridoriand/connwatch/internal/autostart"
	"github.com/doridoridoriand/connwatch/internal/config"
	"github.com/doridoridoriand/connwatch/internal/scheduler"
	"github.com/doridoridoriand/connwatch/internal/state"
)

type fakeController struct {
	mu     sync.Mutex
	status scheduler.Status
	cfg    config.Monitor
	subs   int
}

func (f *fakeController) State() scheduler.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeController) Config() config.Monitor {
	return f.cfg
}

func (f *fakeController) Subscribe(sub scheduler.Subscriber) func() {
	f.mu.Lock()
	f.subs++
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.subs--
		f.mu.Unlock()
	}
}

func (f *fakeController) Pause() {
	f.mu.Lock()
	f.status.RunState = scheduler.Paused
	f.mu.Unlock()
}

func (f *fakeController) Resume() {
	f.mu.Lock()
	f.status.RunState = scheduler.Running
	f.mu.Unlock()
}

func (f *fakeController) SetTarget(host string) error {
	if strings.TrimSpace(host) == "" {
		return config.ErrEmptyTarget
	}
	f.mu.Lock()
	f.status.Target = host
	f.status.History = nil
	f.mu.Unlock()
	return nil
}

type fakeClipboard struct {
	content string
	err     error
}

func (f *fakeClipboard) Read(ctx context.Context) (string, error) { return f.content, f.err }

func (f *fakeClipboard) Write(ctx context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.content = text
	return nil
}

type fakeAutostart struct {
	enabled bool
	err     error
}

func (f *fakeAutostart) Enabled(ctx context.Context) (bool, error) { return f.enabled, f.err }

func (f *fakeAutostart) SetEnabled(ctx context.Context, enabled bool) error {
	if f.err != nil {
		return f.err
	}
	f.enabled = enabled
	return nil
}

func newController() *fakeController {
	return &fakeController{
		status: scheduler.Status{
			Target:   "example.com",
			RunState: scheduler.Running,
			Health:   state.HealthGood,
			Summary:  state.Summary{AverageMs: 42, HasAverage: true, Samples: 2},
			History:  []state.Outcome{state.Succeeded(40), state.Succeeded(44)},
		},
		cfg: config.Monitor{
			Target:      "example.com",
			Interval:    5 * time.Second,
			Timeout:     2 * time.Second,
			HistorySize: 20,
			Thresholds:  config.Thresholds{GoodLatencyMs: 100, QuestionableLatencyMs: 500, BadDropRatePercent: 11},
		},
	}
}

func newSimScreen(t *testing.T, w, h int) tcell.SimulationScreen {
	t.Helper()
	s := tcell.NewSimulationScreen("")
	if err := s.Init(); err != nil {
		t.Fatalf("init screen: %v", err)
	}
	s.SetSize(w, h)
	t.Cleanup(s.Fini)
	return s
}

func screenText(s tcell.SimulationScreen) string {
	cells, w, h := s.GetContents()
	var b strings.Builder
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := cells[y*w+x]
			if len(c.Runes) > 0 {
				b.WriteRune(c.Runes[0])
			} else {
				b.WriteByte(' ')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func styledRunesToString(parts []styledRune) string {
	var b strings.Builder
	for _, part := range parts {
		b.WriteString(string(part.r))
	}
	return b.String()
}

func keyRune(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestRenderShowsStatus(t *testing.T) {
	screen := newSimScreen(t, 80, 24)
	u := New(newController())
	u.render(screen)

	text := screenText(screen)
	for _, want := range []string{
		"target=example.com  interval=5.0s  timeout=2.0s  history=20",
		"Health: GOOD [RUNNING]",
		"Average Latency: 42 ms",
		"Drop Rate: 0% (2 samples)",
		"Start on login: unknown",
		"History (oldest first)",
		"40            ####",
		"44            ####",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("screen missing %q:\n%s", want, text)
		}
	}
}

func TestRenderUnknownAndPaused(t *testing.T) {
	screen := newSimScreen(t, 80, 24)
	c := newController()
	c.status = scheduler.Status{Target: "example.com", RunState: scheduler.Paused, Health: state.HealthUnknown}
	u := New(c)
	u.render(screen)

	text := screenText(screen)
	for _, want := range []string{
		"Health: -- [PAUSED]",
		"Average Latency: No Returned Pings",
		"waiting for the first probe",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("screen missing %q:\n%s", want, text)
		}
	}
}

func TestRenderShowsNewestHistoryWhenShort(t *testing.T) {
	screen := newSimScreen(t, 60, 14)
	c := newController()
	var history []state.Outcome
	for i := 1; i <= 20; i++ {
		history = append(history, state.Succeeded(i))
	}
	history[19] = state.Failed()
	c.status.History = history
	u := New(c)
	u.render(screen)

	text := screenText(screen)
	if !strings.Contains(text, "Not Returned") {
		t.Fatalf("newest entry not visible:\n%s", text)
	}
	if strings.Contains(text, "|1  ") {
		t.Fatalf("oldest entry should be scrolled off:\n%s", text)
	}
}

func TestRenderTinyScreen(t *testing.T) {
	screen := newSimScreen(t, 10, 3)
	u := New(newController())
	u.render(screen)
	if strings.TrimSpace(screenText(screen)) != "" {
		t.Fatalf("expected blank screen when too small")
	}
}

func TestHandleKeyPauseToggle(t *testing.T) {
	c := newController()
	u := New(c)
	ctx := context.Background()

	if quit := u.handleKey(ctx, keyRune('p')); quit {
		t.Fatalf("p must not quit")
	}
	if c.State().RunState != scheduler.Paused || u.message != "Polling paused" {
		t.Fatalf("expected paused, got %s %q", c.State().RunState, u.message)
	}
	u.handleKey(ctx, keyRune('p'))
	if c.State().RunState != scheduler.Running || u.message != "Polling resumed" {
		t.Fatalf("expected running, got %s %q", c.State().RunState, u.message)
	}
}

func TestHandleKeyQuit(t *testing.T) {
	u := New(newController())
	ctx := context.Background()
	if !u.handleKey(ctx, keyRune('q')) {
		t.Fatalf("q should quit")
	}
	if !u.handleKey(ctx, tcell.NewEventKey(tcell.KeyCtrlC, 0, tcell.ModCtrl)) {
		t.Fatalf("ctrl-c should quit")
	}
	if u.handleKey(ctx, tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone)) {
		t.Fatalf("enter should not quit")
	}
}

func TestCopyHistory(t *testing.T) {
	c := newController()
	c.status.History = []state.Outcome{state.Succeeded(42), state.Failed()}
	clip := &fakeClipboard{}
	u := New(c, WithClipboard(clip))

	if msg := u.copyHistory(context.Background()); msg != "History copied to clipboard" {
		t.Fatalf("unexpected message %q", msg)
	}
	if clip.content != "42\nNot Returned\n" {
		t.Fatalf("unexpected clipboard %q", clip.content)
	}

	u = New(c, WithClipboard(&fakeClipboard{err: errors.New("no display")}))
	if msg := u.copyHistory(context.Background()); !strings.HasPrefix(msg, "Copy failed") {
		t.Fatalf("unexpected message %q", msg)
	}
	if msg := New(c).copyHistory(context.Background()); msg != "Clipboard unavailable" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestSwitchToClipboardHost(t *testing.T) {
	c := newController()
	u := New(c, WithClipboard(&fakeClipboard{content: "  example.org\n"}))

	if msg := u.switchToClipboardHost(context.Background()); msg != "Now monitoring example.org" {
		t.Fatalf("unexpected message %q", msg)
	}
	if c.State().Target != "example.org" {
		t.Fatalf("target not switched: %q", c.State().Target)
	}

	u = New(c, WithClipboard(&fakeClipboard{content: " \n"}))
	if msg := u.switchToClipboardHost(context.Background()); msg != "Clipboard does not hold a host name" {
		t.Fatalf("unexpected message %q", msg)
	}
	if c.State().Target != "example.org" {
		t.Fatalf("empty clipboard changed target")
	}
}

func TestToggleAutostart(t *testing.T) {
	a := &fakeAutostart{}
	u := New(newController(), WithAutostart(a))

	if msg := u.toggleAutostart(context.Background()); msg != "Start on login enabled" {
		t.Fatalf("unexpected message %q", msg)
	}
	if on := <-u.autostart; !on || !a.enabled {
		t.Fatalf("expected enabled")
	}

	u = New(newController(), WithAutostart(&fakeAutostart{err: autostart.ErrUnsupported}))
	if msg := u.toggleAutostart(context.Background()); !strings.HasPrefix(msg, "Start on login failed") {
		t.Fatalf("unexpected message %q", msg)
	}
	if msg := New(newController()).toggleAutostart(context.Background()); msg != "Start on login unavailable" {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestMessageExpires(t *testing.T) {
	screen := newSimScreen(t, 80, 24)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	u := New(newController())
	u.now = func() time.Time { return now }

	u.setMessage("hello there")
	u.render(screen)
	if !strings.Contains(screenText(screen), "hello there") {
		t.Fatalf("message not shown")
	}
	now = now.Add(messageTTL + time.Second)
	u.render(screen)
	if strings.Contains(screenText(screen), "hello there") {
		t.Fatalf("message not expired")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	c := newController()
	screen := tcell.NewSimulationScreen("")
	u := New(c, WithScreen(screen), WithAutostart(&fakeAutostart{enabled: true}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := u.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	c.mu.Lock()
	subs := c.subs
	c.mu.Unlock()
	if subs != 0 {
		t.Fatalf("expected unsubscribe on exit, %d subscriptions left", subs)
	}
}

func TestOnStatusChangedDoesNotBlock(t *testing.T) {
	u := New(newController())
	for i := 0; i < 10; i++ {
		u.OnStatusChanged(scheduler.Status{})
	}
	if len(u.dirty) != 1 {
		t.Fatalf("expected a single pending redraw, got %d", len(u.dirty))
	}
}

func TestFormatHistoryLine(t *testing.T) {
	th := state.Thresholds{GoodLatencyMs: 100, QuestionableLatencyMs: 500, BadDropRatePercent: 11}

	line := styledRunesToString(formatHistoryLine(30, state.Succeeded(55), th))
	if want := "55            " + "######" + strings.Repeat(" ", 10); line != want {
		t.Fatalf("expected %q, got %q", want, line)
	}
	line = styledRunesToString(formatHistoryLine(20, state.Failed(), th))
	if want := "Not Returned  xxxxxx"; line != want {
		t.Fatalf("expected %q, got %q", want, line)
	}
}

func TestOutcomeStyle(t *testing.T) {
	th := state.Thresholds{GoodLatencyMs: 100, QuestionableLatencyMs: 500}
	tests := []struct {
		outcome state.Outcome
		want    state.Health
	}{
		{state.Succeeded(10), state.HealthGood},
		{state.Succeeded(100), state.HealthQuestionable},
		{state.Succeeded(499), state.HealthQuestionable},
		{state.Succeeded(500), state.HealthBad},
		{state.Failed(), state.HealthBad},
	}
	for _, tt := range tests {
		if got := outcomeStyle(tt.outcome, th); got != healthStyle(tt.want) {
			t.Fatalf("%s: expected %s style", tt.outcome.Label(), tt.want)
		}
	}
}

func TestHealthLabelAndStyle(t *testing.T) {
	if healthLabel(state.HealthUnknown) != "--" || healthLabel(state.HealthBad) != "BAD" {
		t.Fatalf("unexpected labels")
	}
	if healthStyle(state.HealthUnknown) != healthStyle(state.HealthQuestionable) {
		t.Fatalf("unknown should share the questionable colour")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Microsecond, "500us"},
		{250 * time.Millisecond, "250ms"},
		{5 * time.Second, "5.0s"},
		{90 * time.Second, "1.5m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Fatalf("%v: expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestRunQuitsOnKey(t *testing.T) {
	c := newController()
	screen := tcell.NewSimulationScreen("")
	u := New(c, WithScreen(screen))

	go func() {
		time.Sleep(20 * time.Millisecond)
		screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := u.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled on quit, got %v", err)
	}
}
