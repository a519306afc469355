package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/domain"
	"github.com/gaiaaiagent/regen-registry-review-mcp-sub006/internal/core/ports/driven"
)

// Store is the SQLite database behind the ledger and the session index.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewStore opens (creating if needed) the database at dbPath and applies
// pending migrations.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("%w: empty database path", domain.ErrInvalidInput)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
		now:  time.Now,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// CostLedger returns a CostLedger backed by this store.
func (s *Store) CostLedger() *CostLedger {
	return &CostLedger{store: s}
}

// SessionIndex returns a SessionIndex backed by this store.
func (s *Store) SessionIndex() *SessionIndex {
	return &SessionIndex{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_cost_ledger.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := s.apply(version, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

func (s *Store) apply(version int, script string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(script); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return err
	}
	return tx.Commit()
}

// ==================== Cost Ledger ====================

// CostLedger implements driven.CostLedger.
type CostLedger struct {
	store *Store
}

var _ driven.CostLedger = (*CostLedger)(nil)

// Record appends an entry. Missing ids and timestamps are filled in.
func (l *CostLedger) Record(ctx context.Context, entry domain.CostEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = l.store.now()
	}
	if entry.Operation == "" {
		return fmt.Errorf("%w: cost entry without operation", domain.ErrInvalidInput)
	}

	_, err := l.store.db.ExecContext(ctx, `
		INSERT INTO cost_entries (id, session_id, model, operation, input_tokens, output_tokens,
			cost_usd, duration_ms, cache_hit, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.SessionID, entry.Model, entry.Operation,
		entry.Usage.InputTokens, entry.Usage.OutputTokens, entry.CostUSD,
		entry.Duration.Milliseconds(), boolToInt(entry.CacheHit), entry.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("recording cost entry: %w", err)
	}
	return nil
}

// Entries lists entries for a session, oldest first. An empty id lists all.
func (l *CostLedger) Entries(ctx context.Context, sessionID string) ([]domain.CostEntry, error) {
	query := `
		SELECT id, session_id, model, operation, input_tokens, output_tokens,
			cost_usd, duration_ms, cache_hit, recorded_at
		FROM cost_entries`
	var args []any
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY recorded_at, rowid"

	rows, err := l.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying cost entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.CostEntry //nolint:prealloc // size unknown from query
	for rows.Next() {
		var e domain.CostEntry
		var durationMS int64
		var cacheHit int
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Model, &e.Operation,
			&e.Usage.InputTokens, &e.Usage.OutputTokens, &e.CostUSD,
			&durationMS, &cacheHit, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning cost entry: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.CacheHit = cacheHit != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cost entries: %w", err)
	}

	return entries, nil
}

// Summary aggregates entries for a session. An empty id aggregates everything.
func (l *CostLedger) Summary(ctx context.Context, sessionID string) (*domain.CostSummary, error) {
	query := `
		SELECT operation, COUNT(*), COALESCE(SUM(cache_hit), 0),
			COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(cost_usd), 0)
		FROM cost_entries`
	var args []any
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " GROUP BY operation ORDER BY operation"

	rows, err := l.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying cost summary: %w", err)
	}
	defer rows.Close()

	sum := &domain.CostSummary{ByOperation: []domain.OperationCost{}}
	for rows.Next() {
		var op domain.OperationCost
		var in, out int
		if err := rows.Scan(&op.Operation, &op.Calls, &op.CacheHits, &in, &out, &op.CostUSD); err != nil {
			return nil, fmt.Errorf("scanning cost summary: %w", err)
		}
		op.Tokens = in + out
		sum.ByOperation = append(sum.ByOperation, op)
		sum.TotalCalls += op.Calls
		sum.CacheHits += op.CacheHits
		sum.InputTokens += in
		sum.OutputTokens += out
		sum.TotalCostUSD += op.CostUSD
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cost summary: %w", err)
	}

	if sum.TotalCalls > 0 {
		sum.CacheHitRatio = float64(sum.CacheHits) / float64(sum.TotalCalls)
	}
	return sum, nil
}

// ==================== Session Index ====================

// SessionIndex implements driven.SessionIndex.
type SessionIndex struct {
	store *Store
}

var _ driven.SessionIndex = (*SessionIndex)(nil)

// Claim inserts a new summary. The unique index on documents_path makes the
// first writer win across every connection to the database file.
func (i *SessionIndex) Claim(ctx context.Context, summary domain.SessionSummary) error {
	_, err := i.store.db.ExecContext(ctx, `
		INSERT INTO sessions (id, project_name, methodology_id, documents_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, summary.ID, summary.ProjectName, summary.MethodologyID, summary.DocumentsPath,
		summary.CreatedAt.UTC(), summary.UpdatedAt.UTC())
	if err != nil {
		if cerr := i.pathConflict(ctx, summary); cerr != nil {
			return cerr
		}
		if i.indexed(ctx, summary.ID) {
			return fmt.Errorf("%w: session %s is already indexed", domain.ErrAlreadyExists, summary.ID)
		}
		return fmt.Errorf("claiming session path: %w", err)
	}
	return nil
}

// Put inserts or replaces a summary.
func (i *SessionIndex) Put(ctx context.Context, summary domain.SessionSummary) error {
	_, err := i.store.db.ExecContext(ctx, `
		INSERT INTO sessions (id, project_name, methodology_id, documents_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_name = excluded.project_name,
			methodology_id = excluded.methodology_id,
			documents_path = excluded.documents_path,
			updated_at = excluded.updated_at
	`, summary.ID, summary.ProjectName, summary.MethodologyID, summary.DocumentsPath,
		summary.CreatedAt.UTC(), summary.UpdatedAt.UTC())
	if err != nil {
		if cerr := i.pathConflict(ctx, summary); cerr != nil {
			return cerr
		}
		return fmt.Errorf("saving session summary: %w", err)
	}
	return nil
}

// pathConflict reports the session holding summary's path, if it is not
// summary itself.
func (i *SessionIndex) pathConflict(ctx context.Context, summary domain.SessionSummary) error {
	holder, ok, err := i.FindByPath(ctx, summary.DocumentsPath)
	if err != nil || !ok || holder == summary.ID {
		return nil
	}
	return &domain.DuplicateSessionError{ExistingID: holder, Path: summary.DocumentsPath}
}

func (i *SessionIndex) indexed(ctx context.Context, id string) bool {
	var n int
	row := i.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions WHERE id = ?", id)
	return row.Scan(&n) == nil && n > 0
}

// Remove deletes a summary.
func (i *SessionIndex) Remove(ctx context.Context, id string) error {
	_, err := i.store.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting session summary: %w", err)
	}
	return nil
}

// FindByPath returns the session holding the given documents path.
func (i *SessionIndex) FindByPath(ctx context.Context, documentsPath string) (string, bool, error) {
	row := i.store.db.QueryRowContext(ctx,
		"SELECT id FROM sessions WHERE documents_path = ?", documentsPath)

	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("finding session by path: %w", err)
	}
	return id, true, nil
}

// All iterates over summaries ordered by creation time. The rows are read
// lazily; stopping early closes the cursor.
func (i *SessionIndex) All(ctx context.Context) iter.Seq2[domain.SessionSummary, error] {
	return func(yield func(domain.SessionSummary, error) bool) {
		rows, err := i.store.db.QueryContext(ctx, `
			SELECT id, project_name, methodology_id, documents_path, created_at, updated_at
			FROM sessions ORDER BY created_at, id
		`)
		if err != nil {
			yield(domain.SessionSummary{}, fmt.Errorf("querying sessions: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var s domain.SessionSummary
			if err := rows.Scan(&s.ID, &s.ProjectName, &s.MethodologyID, &s.DocumentsPath,
				&s.CreatedAt, &s.UpdatedAt); err != nil {
				yield(domain.SessionSummary{}, fmt.Errorf("scanning session: %w", err))
				return
			}
			if !yield(s, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(domain.SessionSummary{}, fmt.Errorf("iterating sessions: %w", err))
		}
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
