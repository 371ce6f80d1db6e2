package inbox

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-discovery/internal/discovery"
)

// writeTimeout bounds a single recorder write.
const writeTimeout = 5 * time.Second

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Listener is told about every result the recorder stores.
type Listener func(entry Entry)

// Recorder writes discovery results and scan sessions into the inbox. It
// implements discovery.Sink and discovery.Observer.
//
// Thread Safety: All methods are safe for concurrent use.
type Recorder struct {
	db     *sql.DB
	logger Logger

	// Prepared statements (created by Start, reused)
	resultStmt  *sql.Stmt
	sessionStmt *sql.Stmt
	stmtMu      sync.Mutex

	listeners   []Listener
	listenersMu sync.RWMutex

	closed bool
	mu     sync.RWMutex
}

var (
	_ discovery.Sink     = (*Recorder)(nil)
	_ discovery.Observer = (*Recorder)(nil)
)

// NewRecorder creates a recorder. Call Start before wiring it into a Machine.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// OnRecorded registers a listener called after each stored result.
func (r *Recorder) OnRecorded(l Listener) {
	r.listenersMu.Lock()
	r.listeners = append(r.listeners, l)
	r.listenersMu.Unlock()
}

// Start prepares the upsert statements. Calling it again is a no-op.
func (r *Recorder) Start() error {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return ErrRecorderClosed
	}

	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.resultStmt != nil {
		return nil
	}

	resultStmt, err := r.db.Prepare(upsertResultSQL)
	if err != nil {
		return fmt.Errorf("preparing result upsert statement: %w", err)
	}
	sessionStmt, err := r.db.Prepare(upsertSessionSQL)
	if err != nil {
		resultStmt.Close()
		return fmt.Errorf("preparing session upsert statement: %w", err)
	}

	r.resultStmt = resultStmt
	r.sessionStmt = sessionStmt
	r.logInfo("discovery recorder started")
	return nil
}

// Stop releases the prepared statements. Later writes are dropped.
func (r *Recorder) Stop() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.resultStmt != nil {
		r.resultStmt.Close()
		r.resultStmt = nil
	}
	if r.sessionStmt != nil {
		r.sessionStmt.Close()
		r.sessionStmt = nil
	}
	r.logInfo("discovery recorder stopped")
}

// OnDiscovered implements discovery.Sink.
func (r *Recorder) OnDiscovered(result discovery.Result) {
	stmt := r.stmt(func() *sql.Stmt { return r.resultStmt })
	if stmt == nil {
		return
	}

	args, err := resultArgs(result)
	if err != nil {
		r.logError("invalid discovery result", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if _, err := stmt.ExecContext(ctx, args...); err != nil {
		r.logError("recording discovery result", err, "uid", result.UID)
		return
	}
	r.logDebug("recorded discovery result", "uid", result.UID)

	r.notify(ctx, result.UID)
}

// ScanStarted implements discovery.Observer.
func (r *Recorder) ScanStarted(info discovery.ScanInfo) {
	if info.SessionID == "" {
		return
	}
	r.execSession(startArgs(info), info.SessionID)
}

// ScanEnded implements discovery.Observer.
func (r *Recorder) ScanEnded(outcome discovery.ScanOutcome) {
	if outcome.SessionID == "" {
		return
	}
	r.execSession(outcomeArgs(outcome), outcome.SessionID)
}

func (r *Recorder) execSession(args []any, id string) {
	stmt := r.stmt(func() *sql.Stmt { return r.sessionStmt })
	if stmt == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if _, err := stmt.ExecContext(ctx, args...); err != nil {
		r.logError("recording scan session", err, "session_id", id)
	}
}

// stmt returns the selected statement, or nil when the recorder is not
// running.
func (r *Recorder) stmt(pick func() *sql.Stmt) *sql.Stmt {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil
	}

	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()
	return pick()
}

// notify reads back the stored entry so listeners see first_seen and
// seen_count.
func (r *Recorder) notify(ctx context.Context, uid string) {
	r.listenersMu.RLock()
	listeners := append([]Listener(nil), r.listeners...)
	r.listenersMu.RUnlock()
	if len(listeners) == 0 {
		return
	}

	entry, err := NewSQLiteRepository(r.db).Get(ctx, uid)
	if err != nil {
		r.logError("reading recorded result", err, "uid", uid)
		return
	}
	for _, l := range listeners {
		l(*entry)
	}
}

func (r *Recorder) logInfo(msg string, keysAndValues ...any) {
	if r.logger != nil {
		r.logger.Info(msg, keysAndValues...)
	}
}

func (r *Recorder) logDebug(msg string, keysAndValues ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, keysAndValues...)
	}
}

func (r *Recorder) logError(msg string, err error, keysAndValues ...any) {
	if r.logger != nil {
		r.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
