// Package sessionstore is the transactional local store of sessions,
// messages and phase. It is the sole owner of durable conversation state.
package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/desktop-core/internal/domain"
	"github.com/ashureev/desktop-core/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultDBName is the file name the database lives under in the per-app
// data directory.
const DefaultDBName = "desktop_sessions.sqlite3"

// ReplayDepth is the default number of prior messages rehydrated before a
// new streaming run.
const ReplayDepth = 20

// Store is a SQLite-backed Session Store. Every exported method opens and
// closes its own use of the pooled connection; there is no in-memory
// shared state beyond database/sql's own connection pool.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open creates (or reuses) the database file at dbPath, applies the
// required pragmas and ensures the schema exists.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sessionstore: create data directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open database: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("sessionstore: ping database: %w", err)
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("sessionstore: initialize schema: %w", err)
	}
	return store, nil
}

// DBPath returns the on-disk path of the backing database file.
func (s *Store) DBPath() string {
	return s.dbPath
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		app_name TEXT NOT NULL,
		user_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		read_only INTEGER NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_listing ON sessions(app_name, user_id, updated_at_ms DESC);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		created_at_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_ordering ON messages(session_id, created_at_ms ASC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateSession inserts a new session with default phase idea_input. If
// sessionID is supplied and already exists, the insert is a no-op and the
// existing row is returned (idempotent create).
func (s *Store) CreateSession(ctx context.Context, appName, userID string, sessionID *string) (domain.Session, error) {
	id := "desktop-" + uuid.NewString()
	if sessionID != nil && strings.TrimSpace(*sessionID) != "" {
		id = strings.TrimSpace(*sessionID)
	}

	now := domain.NowMs()
	_, err := s.exec(ctx, `
		INSERT OR IGNORE INTO sessions (id, title, app_name, user_id, phase, read_only, created_at_ms, updated_at_ms)
		VALUES (?, '', ?, ?, ?, 0, ?, ?)`,
		id, appName, userID, string(domain.PhaseIdeaInput), now, now)
	if err != nil {
		return domain.Session{}, fmt.Errorf("sessionstore: create session: %w", err)
	}

	return s.getSession(ctx, id)
}

// ListSessions returns sessions for (app, user) ordered by
// updated_at_ms desc, created_at_ms desc.
func (s *Store) ListSessions(ctx context.Context, appName, userID string) ([]domain.Session, error) {
	rows, err := s.query(ctx, `
		SELECT id, title, app_name, user_id, phase, read_only, created_at_ms, updated_at_ms
		FROM sessions WHERE app_name = ? AND user_id = ?
		ORDER BY updated_at_ms DESC, created_at_ms DESC`, appName, userID)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: list sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sessionstore: scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and, via ON DELETE CASCADE, its
// messages. It reports whether a row was actually removed.
func (s *Store) DeleteSession(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("sessionstore: delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sessionstore: delete session rows affected: %w", err)
	}
	return n > 0, nil
}

// MessagesGet returns a session's messages in (created_at_ms asc, rowid
// asc) order.
func (s *Store) MessagesGet(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.query(ctx, `
		SELECT id, session_id, role, text, status, created_at_ms
		FROM messages WHERE session_id = ?
		ORDER BY created_at_ms ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: get messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("sessionstore: scan message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// MessageAppend verifies the parent session exists, writes the message,
// bumps updated_at_ms, and — when the session still has no title and this
// is a non-blank user message — derives a title from it.
func (s *Store) MessageAppend(ctx context.Context, sessionID, role, text, status string) (domain.Message, error) {
	existing, err := s.getSession(ctx, sessionID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("sessionstore: session %q was not found: %w", sessionID, err)
	}

	now := domain.NowMs()
	msg := domain.Message{
		ID:          "msg-" + uuid.NewString(),
		SessionID:   sessionID,
		Role:        role,
		Text:        text,
		Status:      status,
		CreatedAtMs: now,
	}

	_, err = s.exec(ctx, `
		INSERT INTO messages (id, session_id, role, text, status, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Role, msg.Text, msg.Status, msg.CreatedAtMs)
	if err != nil {
		return domain.Message{}, fmt.Errorf("sessionstore: append message: %w", err)
	}

	newTitle := existing.Title
	if strings.TrimSpace(existing.Title) == "" && normalizeRole(role) == "user" {
		if inferred, ok := inferTitleFromMessage(text); ok {
			newTitle = inferred
		}
	}

	_, err = s.exec(ctx, `UPDATE sessions SET title = ?, updated_at_ms = ? WHERE id = ?`, newTitle, now, sessionID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("sessionstore: touch session after append: %w", err)
	}
	return msg, nil
}

// PhaseGet returns a session's current phase and read_only flag.
func (s *Store) PhaseGet(ctx context.Context, id string) (domain.SessionPhase, bool, error) {
	sess, err := s.getSession(ctx, id)
	if err != nil {
		return "", false, err
	}
	return sess.Phase, sess.ReadOnly, nil
}

// PhaseSet updates a session's phase and read_only flag, bumping
// updated_at_ms. It fails when no row matched.
func (s *Store) PhaseSet(ctx context.Context, id string, phase domain.SessionPhase, readOnly bool) error {
	res, err := s.exec(ctx, `
		UPDATE sessions SET phase = ?, read_only = ?, updated_at_ms = ? WHERE id = ?`,
		string(phase), boolToInt(readOnly), domain.NowMs(), id)
	if err != nil {
		return fmt.Errorf("sessionstore: set phase: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sessionstore: set phase rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sessionstore: session %q was not found", id)
	}
	return nil
}

// ValidateRunMode fetches the session's phase and fails if the session is
// read-only or (phase, mode) is not an allowed pair.
func (s *Store) ValidateRunMode(ctx context.Context, id string, mode domain.RunMode) error {
	phase, readOnly, err := s.PhaseGet(ctx, id)
	if err != nil {
		return err
	}
	if readOnly {
		return fmt.Errorf("sessionstore: session %q is read-only", id)
	}
	if !domain.IsRunModeAllowed(phase, mode) {
		return fmt.Errorf("sessionstore: run mode %q is not allowed from phase %q", mode, phase)
	}
	return nil
}

// ReplayMessages returns the replay window: messages with status
// normalized to "done" and non-empty trimmed text, dropping a trailing
// entry that duplicates the about-to-be-sent current_text from the user,
// then keeping at most the last max messages.
func (s *Store) ReplayMessages(ctx context.Context, id, currentText string, max int) ([]domain.Message, error) {
	all, err := s.MessagesGet(ctx, id)
	if err != nil {
		return nil, err
	}

	var done []domain.Message
	for _, m := range all {
		if normalizeText(m.Status) != "done" {
			continue
		}
		if normalizeText(m.Text) == "" {
			continue
		}
		done = append(done, m)
	}

	if n := len(done); n > 0 {
		last := done[n-1]
		if normalizeRole(last.Role) == "user" && normalizeText(last.Text) == normalizeText(currentText) {
			done = done[:n-1]
		}
	}

	if max >= 0 && len(done) > max {
		done = done[len(done)-max:]
	}
	return done, nil
}

func (s *Store) getSession(ctx context.Context, id string) (domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, app_name, user_id, phase, read_only, created_at_ms, updated_at_ms
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

// execMaxRetries and execBaseDelay bound the exponential backoff applied
// to writes that fail with a SQLite busy/locked error, mirroring the
// teacher's DeleteAgentSession retry loop.
const (
	execMaxRetries = 3
	execBaseDelay  = 50 * time.Millisecond
)

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var lastErr error
	for attempt := 0; attempt < execMaxRetries; attempt++ {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !shared.IsSQLiteConflictError(err) {
			return nil, err
		}
		if attempt < execMaxRetries-1 {
			time.Sleep(execBaseDelay * time.Duration(1<<attempt))
		}
	}
	return nil, fmt.Errorf("exceeded %d retries: %w", execMaxRetries, lastErr)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var sess domain.Session
	var readOnly int
	err := row.Scan(&sess.ID, &sess.Title, &sess.AppName, &sess.UserID, &sess.Phase, &readOnly, &sess.CreatedAtMs, &sess.UpdatedAtMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Session{}, fmt.Errorf("session not found")
		}
		return domain.Session{}, err
	}
	sess.ReadOnly = readOnly != 0
	return sess, nil
}

func scanMessage(row rowScanner) (domain.Message, error) {
	var msg domain.Message
	err := row.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Text, &msg.Status, &msg.CreatedAtMs)
	return msg, err
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

// inferTitleFromMessage derives a session title from an appended user
// message: whitespace-normalized (but case-preserved) and truncated to 56
// code points with a "..." suffix when longer. Returns ok=false when the
// trimmed text is empty.
func inferTitleFromMessage(text string) (string, bool) {
	collapsed := strings.Join(strings.Fields(text), " ")
	if collapsed == "" {
		return "", false
	}
	runes := []rune(collapsed)
	if len(runes) <= 56 {
		return collapsed, true
	}
	return string(runes[:56]) + "...", true
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
