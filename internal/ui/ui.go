package ui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/doridoridoriand/connwatch/internal/autostart"
	"github.com/doridoridoriand/connwatch/internal/clipboard"
	"github.com/doridoridoriand/connwatch/internal/config"
	"github.com/doridoridoriand/connwatch/internal/log"
	"github.com/doridoridoriand/connwatch/internal/scheduler"
	"github.com/doridoridoriand/connwatch/internal/state"
)

const (
	uiRefreshInterval = 500 * time.Millisecond
	messageTTL        = 4 * time.Second
	actionTimeout     = 5 * time.Second
	barScaleMs        = 10
	labelWidth        = 13
	minBoxHeight      = 4
)

// Controller is the part of the scheduler the terminal surface drives.
type Controller interface {
	State() scheduler.Status
	Config() config.Monitor
	Subscribe(sub scheduler.Subscriber) func()
	Pause()
	Resume()
	SetTarget(host string) error
}

// UI renders the monitored connection and maps keys to menu actions.
type UI struct {
	ctrl   Controller
	clip   clipboard.Clipboard
	auto   autostart.Manager
	logger *log.Logger
	screen tcell.Screen

	dirty     chan struct{}
	messages  chan string
	autostart chan bool

	message      string
	messageUntil time.Time
	autostartOn  *bool
	now          func() time.Time
}

// Option customises a UI.
type Option func(*UI)

func WithClipboard(c clipboard.Clipboard) Option {
	return func(u *UI) { u.clip = c }
}

func WithAutostart(m autostart.Manager) Option {
	return func(u *UI) { u.auto = m }
}

func WithLogger(l *log.Logger) Option {
	return func(u *UI) {
		if l != nil {
			u.logger = l
		}
	}
}

// WithScreen renders to s instead of the terminal.
func WithScreen(s tcell.Screen) Option {
	return func(u *UI) { u.screen = s }
}

// New returns a UI instance.
func New(ctrl Controller, opts ...Option) *UI {
	u := &UI{
		ctrl:      ctrl,
		logger:    log.Nop(),
		dirty:     make(chan struct{}, 1),
		messages:  make(chan string, 8),
		autostart: make(chan bool, 1),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// OnStatusChanged marks the view for redraw.
func (u *UI) OnStatusChanged(scheduler.Status) {
	select {
	case u.dirty <- struct{}{}:
	default:
	}
}

// Run blocks until the context is cancelled or the user quits.
func (u *UI) Run(ctx context.Context) error {
	screen := u.screen
	if screen == nil {
		var err error
		if screen, err = tcell.NewScreen(); err != nil {
			return err
		}
	}
	if err := screen.Init(); err != nil {
		return err
	}
	screen.HideCursor()
	defer screen.Fini()

	unsubscribe := u.ctrl.Subscribe(u)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eventCh := make(chan tcell.Event, 1)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case eventCh <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	if u.auto != nil {
		go u.fetchAutostart(ctx)
	}

	ticker := time.NewTicker(uiRefreshInterval)
	defer ticker.Stop()

	u.render(screen)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-eventCh:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if quit := u.handleKey(ctx, ev); quit {
					return context.Canceled
				}
			case *tcell.EventResize:
				screen.Sync()
			}
		case on := <-u.autostart:
			u.autostartOn = &on
		case msg := <-u.messages:
			u.setMessage(msg)
		case <-u.dirty:
		case <-ticker.C:
		}
		u.render(screen)
	}
}

func (u *UI) fetchAutostart(ctx context.Context) {
	actx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	on, err := u.auto.Enabled(actx)
	if err != nil {
		if !errors.Is(err, autostart.ErrUnsupported) {
			u.logger.LogError("autostart", err)
		}
		return
	}
	u.publishAutostart(ctx, on)
}

func (u *UI) publishAutostart(ctx context.Context, on bool) {
	select {
	case u.autostart <- on:
	case <-ctx.Done():
	}
}

// handleKey applies a key press and reports whether the UI should exit.
func (u *UI) handleKey(ctx context.Context, ev *tcell.EventKey) bool {
	if ev.Key() == tcell.KeyCtrlC {
		return true
	}
	if ev.Key() != tcell.KeyRune {
		return false
	}
	switch ev.Rune() {
	case 'q', 'Q':
		return true
	case 'p', 'P':
		u.togglePause()
	case 'c', 'C':
		u.async(ctx, u.copyHistory)
	case 's', 'S':
		u.async(ctx, u.switchToClipboardHost)
	case 'l', 'L':
		u.async(ctx, u.toggleAutostart)
	}
	return false
}

func (u *UI) togglePause() {
	if u.ctrl.State().RunState == scheduler.Paused {
		u.ctrl.Resume()
		u.setMessage("Polling resumed")
		return
	}
	u.ctrl.Pause()
	u.setMessage("Polling paused")
}

// async runs a blocking action off the event loop and posts its message.
func (u *UI) async(ctx context.Context, action func(context.Context) string) {
	go func() {
		actx, cancel := context.WithTimeout(ctx, actionTimeout)
		defer cancel()
		msg := action(actx)
		select {
		case u.messages <- msg:
		case <-ctx.Done():
		}
	}()
}

func (u *UI) copyHistory(ctx context.Context) string {
	if u.clip == nil {
		return "Clipboard unavailable"
	}
	text := state.FormatHistory(u.ctrl.State().History)
	if err := u.clip.Write(ctx, text); err != nil {
		u.logger.LogError("clipboard", err)
		return "Copy failed: " + err.Error()
	}
	return "History copied to clipboard"
}

func (u *UI) switchToClipboardHost(ctx context.Context) string {
	if u.clip == nil {
		return "Clipboard unavailable"
	}
	text, err := u.clip.Read(ctx)
	if err != nil {
		u.logger.LogError("clipboard", err)
		return "Paste failed: " + err.Error()
	}
	host := strings.TrimSpace(text)
	if err := u.ctrl.SetTarget(host); err != nil {
		return "Clipboard does not hold a host name"
	}
	u.logger.Info("target_switched", zap.String("target", host))
	return "Now monitoring " + host
}

func (u *UI) toggleAutostart(ctx context.Context) string {
	if u.auto == nil {
		return "Start on login unavailable"
	}
	on, err := autostart.Toggle(ctx, u.auto)
	if err != nil {
		if !errors.Is(err, autostart.ErrUnsupported) {
			u.logger.LogError("autostart", err)
		}
		return "Start on login failed: " + err.Error()
	}
	u.publishAutostart(ctx, on)
	if on {
		return "Start on login enabled"
	}
	return "Start on login disabled"
}

func (u *UI) setMessage(msg string) {
	u.message = msg
	u.messageUntil = u.now().Add(messageTTL)
}

func (u *UI) render(screen tcell.Screen) {
	screen.Clear()
	width, height := screen.Size()
	if width < 20 || height < 5 {
		screen.Show()
		return
	}

	st := u.ctrl.State()
	cfg := u.ctrl.Config()
	th := cfg.Thresholds.State()

	now := u.now()
	header := fmt.Sprintf(" connwatch  %s  (p pause  c copy  s switch  l login  q quit)", now.Format("2006-01-02 15:04:05"))
	drawText(screen, 0, 0, width, header, tcell.StyleDefault.Bold(true))
	drawText(screen, 0, 1, width, formatConfigInfo(st.Target, cfg), tcell.StyleDefault.Foreground(tcell.ColorGray))

	y := 2
	statusLines := u.statusLines(width-2, st)
	boxHeight := min(len(statusLines)+2, height-y-1)
	drawBox(screen, 0, y, width, boxHeight)
	drawText(screen, 2, y, width-4, " Status ", tcell.StyleDefault.Bold(true))
	for i := 0; i < len(statusLines) && i < boxHeight-2; i++ {
		drawStyledText(screen, 1, y+1+i, width-2, statusLines[i])
	}
	y += boxHeight

	if remaining := height - y - 1; remaining >= minBoxHeight {
		rows := max(len(st.History), 1)
		boxHeight = min(rows+2, remaining)
		drawBox(screen, 0, y, width, boxHeight)
		drawText(screen, 2, y, width-4, " History (oldest first) ", tcell.StyleDefault.Bold(true))
		// Show the newest entries when the box cannot hold them all.
		visible := st.History
		if len(visible) > boxHeight-2 {
			visible = visible[len(visible)-(boxHeight-2):]
		}
		if len(visible) == 0 {
			drawText(screen, 1, y+1, width-2, " waiting for the first probe", tcell.StyleDefault.Foreground(tcell.ColorGray))
		}
		for i, o := range visible {
			drawStyledText(screen, 1, y+1+i, width-2, formatHistoryLine(width-2, o, th))
		}
	}

	if u.message != "" && now.Before(u.messageUntil) {
		drawText(screen, 0, height-1, width, " "+u.message, tcell.StyleDefault.Foreground(tcell.ColorAqua))
	}

	screen.Show()
}

func (u *UI) statusLines(width int, st scheduler.Status) [][]styledRune {
	hs := healthStyle(st.Health)
	runState := " [RUNNING]"
	runStyle := tcell.StyleDefault.Foreground(tcell.ColorGreen)
	if st.RunState == scheduler.Paused {
		runState = " [PAUSED]"
		runStyle = tcell.StyleDefault.Foreground(tcell.ColorGray)
	}

	return [][]styledRune{
		flattenStyledText([]styledText{
			{text: " Health: ", style: tcell.StyleDefault},
			{text: healthLabel(st.Health), style: hs.Bold(true)},
			{text: runState, style: runStyle},
		}, width),
		flattenStyledText([]styledText{{text: " " + st.Summary.AverageText(), style: tcell.StyleDefault}}, width),
		flattenStyledText([]styledText{{text: " " + dropRateText(st.Summary), style: hs}}, width),
		flattenStyledText([]styledText{{text: " " + autostartText(u.autostartOn), style: tcell.StyleDefault}}, width),
	}
}

func formatHistoryLine(width int, o state.Outcome, th state.Thresholds) []styledRune {
	style := outcomeStyle(o, th)
	label := padOrTrim(o.Label(), min(labelWidth, width))
	parts := []styledText{
		{text: label, style: style},
		{text: " ", style: tcell.StyleDefault},
	}
	if barWidth := width - labelWidth - 1; barWidth > 0 {
		parts = append(parts, styledText{text: buildBar(o, barScaleMs, barWidth), style: style})
	}
	return flattenStyledText(parts, width)
}

// buildBar draws one '#' per scale milliseconds. Dropped probes fill the
// bar with 'x'.
func buildBar(o state.Outcome, scale int, width int) string {
	if width <= 0 {
		return ""
	}
	if scale <= 0 {
		scale = barScaleMs
	}
	ms, ok := o.Latency()
	if !ok {
		return strings.Repeat("x", width)
	}
	units := int(math.Round(float64(ms) / float64(scale)))
	units = max(0, min(units, width))
	return strings.Repeat("#", units) + strings.Repeat(" ", width-units)
}

func healthLabel(h state.Health) string {
	if h == state.HealthUnknown {
		return "--"
	}
	return string(h)
}

func healthStyle(h state.Health) tcell.Style {
	switch h.Display() {
	case state.HealthGood:
		return tcell.StyleDefault.Foreground(tcell.ColorGreen)
	case state.HealthBad:
		return tcell.StyleDefault.Foreground(tcell.ColorRed)
	default:
		return tcell.StyleDefault.Foreground(tcell.ColorYellow)
	}
}

func outcomeStyle(o state.Outcome, th state.Thresholds) tcell.Style {
	ms, ok := o.Latency()
	switch {
	case !ok || ms >= th.QuestionableLatencyMs:
		return healthStyle(state.HealthBad)
	case ms < th.GoodLatencyMs:
		return healthStyle(state.HealthGood)
	default:
		return healthStyle(state.HealthQuestionable)
	}
}

func dropRateText(s state.Summary) string {
	return fmt.Sprintf("Drop Rate: %d%% (%d samples)", s.DropRatePercent, s.Samples)
}

func autostartText(on *bool) string {
	switch {
	case on == nil:
		return "Start on login: unknown"
	case *on:
		return "Start on login: on"
	default:
		return "Start on login: off"
	}
}

func formatConfigInfo(target string, cfg config.Monitor) string {
	return fmt.Sprintf(" target=%s  interval=%s  timeout=%s  history=%d",
		target, formatDuration(cfg.Interval), formatDuration(cfg.Timeout), cfg.HistorySize)
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dus", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}
