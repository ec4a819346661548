package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/doridoridoriand/connwatch/internal/log"
	"github.com/doridoridoriand/connwatch/internal/scheduler"
	"github.com/doridoridoriand/connwatch/internal/state"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// ErrDisabled is returned by a nil or closed journal.
var ErrDisabled = errors.New("journal disabled")

const (
	DefaultLimit = 50
	MaxLimit     = 1000
	queueSize    = 256
	writeTimeout = 2 * time.Second
)

// Entry is one journal row. Latency and average are nil when absent.
type Entry struct {
	ID              int64        `json:"id"`
	RunID           string       `json:"run_id"`
	At              time.Time    `json:"at"`
	Event           string       `json:"event"`
	Target          string       `json:"target"`
	LatencyMs       *int         `json:"latency_ms"`
	Health          state.Health `json:"health"`
	AverageMs       *int         `json:"avg_ms"`
	DropRatePercent int          `json:"drop_rate"`
}

// Journal records status changes to sqlite. Writes happen on a background
// goroutine so subscribers never block the scheduler.
type Journal struct {
	db     *sql.DB
	runID  string
	logger *log.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan Entry
	done   chan struct{}
}

// Open creates or opens the journal database at path.
func Open(path string, logger *log.Logger) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal path is required")
	}
	if logger == nil {
		logger = log.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	j := &Journal{
		db:     db,
		runID:  uuid.NewString(),
		logger: logger,
		now:    time.Now,
		queue:  make(chan Entry, queueSize),
		done:   make(chan struct{}),
	}
	if err := j.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	go j.writer()
	return j, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = j.db.ExecContext(ctx, string(b))
	return err
}

// RunID identifies this process in the journal.
func (j *Journal) RunID() string {
	if j == nil {
		return ""
	}
	return j.runID
}

// OnStatusChanged queues a row for probe results and lifecycle events.
// Rows are dropped with a warning when the queue is full.
func (j *Journal) OnStatusChanged(st scheduler.Status) {
	if j == nil {
		return
	}
	e, ok := j.entryFor(st)
	if !ok {
		return
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- e:
	default:
		j.logger.Warn("journal_queue_full", zap.String("event", e.Event))
	}
}

func (j *Journal) entryFor(st scheduler.Status) (Entry, bool) {
	e := Entry{
		RunID:           j.runID,
		At:              j.now(),
		Event:           string(st.Reason),
		Target:          st.Target,
		Health:          st.Health,
		DropRatePercent: st.Summary.DropRatePercent,
	}
	if st.Summary.HasAverage {
		avg := st.Summary.AverageMs
		e.AverageMs = &avg
	}

	switch st.Reason {
	case scheduler.ReasonProbe:
		last, ok := st.Last()
		if !ok {
			return Entry{}, false
		}
		if ms, returned := last.Latency(); returned {
			e.LatencyMs = &ms
		}
	case scheduler.ReasonTarget, scheduler.ReasonPause, scheduler.ReasonResume:
	default:
		return Entry{}, false
	}
	return e, true
}

func (j *Journal) writer() {
	defer close(j.done)
	for e := range j.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := j.Append(ctx, e); err != nil {
			j.logger.LogError("journal", err, zap.String("event", e.Event))
		}
		cancel()
	}
}

// Append writes one entry synchronously.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	if j == nil || j.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = j.now()
	}
	if e.RunID == "" {
		e.RunID = j.runID
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO entries(run_id, at, event, target, latency_ms, health, avg_ms, drop_rate)
		 VALUES(?,?,?,?,?,?,?,?)`,
		e.RunID, e.At.UTC().Format(time.RFC3339Nano), e.Event, e.Target,
		nullInt(e.LatencyMs), strings.ToLower(string(e.Health)), nullInt(e.AverageMs), e.DropRatePercent,
	)
	return err
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, run_id, at, event, target, latency_ms, health, avg_ms, drop_rate
		 FROM entries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			at      string
			health  string
			latency sql.NullInt64
			avg     sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &at, &e.Event, &e.Target, &latency, &health, &avg, &e.DropRatePercent); err != nil {
			return nil, err
		}
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("entry %d: bad timestamp %q: %w", e.ID, at, err)
		}
		e.Health = state.Health(strings.ToUpper(health))
		e.LatencyMs = intPtr(latency)
		e.AverageMs = intPtr(avg)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close flushes queued rows and closes the database.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	<-j.done
	return j.db.Close()
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
