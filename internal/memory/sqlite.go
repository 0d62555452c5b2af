package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/harnessd/internal/provider"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS manifests (
	session_id TEXT PRIMARY KEY,
	payload    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS features (
	session_id TEXT NOT NULL,
	feature_id TEXT NOT NULL,
	position   INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	passes     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (session_id, feature_id)
);
CREATE TABLE IF NOT EXISTS progress (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	run_id     TEXT NOT NULL,
	summary    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS checkpoints (
	session_id   TEXT NOT NULL,
	run_id       TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	completed_at TEXT,
	status       TEXT NOT NULL,
	note         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (session_id, run_id)
);
CREATE TABLE IF NOT EXISTS transcript (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT NOT NULL,
	role         TEXT NOT NULL,
	content      TEXT NOT NULL,
	tool_call_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_progress_session ON progress(session_id);
CREATE INDEX IF NOT EXISTS idx_transcript_session ON transcript(session_id);
`

// SQLite is a Backend on a single SQLite database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and migrates) the database at path. Use ":memory:"
// for an ephemeral database.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, invalidErr("open", "sqlite backend requires a database path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storageErr("open", "open database", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent callers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, storageErr("open", "apply schema", err)
	}
	return &SQLite{db: db}, nil
}

// Close implements Backend.
func (b *SQLite) Close() error { return b.db.Close() }

// IsInitialized implements Backend.
func (b *SQLite) IsInitialized(ctx context.Context, sessionID string) (bool, error) {
	var one int
	err := b.db.QueryRowContext(ctx,
		`SELECT 1 FROM manifests WHERE session_id = ?`, sessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("is_initialized", "query manifest", err)
	}
	return true, nil
}

// InitializeSessionIfMissing implements Backend.
func (b *SQLite) InitializeSessionIfMissing(ctx context.Context, manifest SessionManifest, features []FeatureRecord, progress *ProgressEntry, checkpoint *RunCheckpoint) (bool, error) {
	if err := manifest.Validate(); err != nil {
		return false, invalidErr("initialize_session", err.Error())
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return false, storageErr("initialize_session", "begin transaction", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM manifests WHERE session_id = ?`, manifest.SessionID).Scan(&one)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, storageErr("initialize_session", "query manifest", err)
	}

	payload, err := json.Marshal(manifest)
	if err != nil {
		return false, storageErr("initialize_session", "encode manifest", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO manifests (session_id, payload) VALUES (?, ?)`,
		manifest.SessionID, string(payload)); err != nil {
		return false, storageErr("initialize_session", "insert manifest", err)
	}
	for i, f := range features {
		if err := insertFeature(ctx, tx, manifest.SessionID, i, f); err != nil {
			return false, err
		}
	}
	if progress != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO progress (session_id, run_id, summary, created_at) VALUES (?, ?, ?, ?)`,
			manifest.SessionID, progress.RunID, progress.Summary, formatTime(progress.CreatedAt)); err != nil {
			return false, storageErr("initialize_session", "insert progress", err)
		}
	}
	if checkpoint != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO checkpoints (session_id, run_id, started_at, completed_at, status, note) VALUES (?, ?, ?, ?, ?, ?)`,
			manifest.SessionID, checkpoint.RunID, formatTime(checkpoint.StartedAt),
			formatTimePtr(checkpoint.CompletedAt), string(checkpoint.Status), checkpoint.Note); err != nil {
			return false, storageErr("initialize_session", "insert checkpoint", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, storageErr("initialize_session", "commit", err)
	}
	return true, nil
}

func insertFeature(ctx context.Context, tx *sql.Tx, sessionID string, position int, f FeatureRecord) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return storageErr("insert_feature", "encode feature", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO features (session_id, feature_id, position, payload, passes) VALUES (?, ?, ?, ?, ?)`,
		sessionID, f.ID, position, string(payload), boolToInt(f.Passes)); err != nil {
		return storageErr("insert_feature", "insert feature", err)
	}
	return nil
}

// LoadBootstrapState implements Backend.
func (b *SQLite) LoadBootstrapState(ctx context.Context, sessionID string) (*BootstrapState, error) {
	var payload string
	err := b.db.QueryRowContext(ctx,
		`SELECT payload FROM manifests WHERE session_id = ?`, sessionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return &BootstrapState{}, nil
	}
	if err != nil {
		return nil, storageErr("load_bootstrap", "query manifest", err)
	}
	var manifest SessionManifest
	if err := json.Unmarshal([]byte(payload), &manifest); err != nil {
		return nil, storageErr("load_bootstrap", "decode manifest", err)
	}

	features, err := b.loadFeatures(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	progress, err := b.loadProgress(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	checkpoints, err := b.loadCheckpoints(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &BootstrapState{
		Manifest:       &manifest,
		Features:       features,
		RecentProgress: recentProgress(progress),
		Checkpoints:    checkpoints,
	}, nil
}

func (b *SQLite) loadFeatures(ctx context.Context, sessionID string) ([]FeatureRecord, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT payload, passes FROM features WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, storageErr("load_features", "query features", err)
	}
	defer rows.Close()
	var out []FeatureRecord
	for rows.Next() {
		var payload string
		var passes int
		if err := rows.Scan(&payload, &passes); err != nil {
			return nil, storageErr("load_features", "scan feature", err)
		}
		var f FeatureRecord
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			return nil, storageErr("load_features", "decode feature", err)
		}
		f.Passes = passes != 0
		out = append(out, f)
	}
	return out, rows.Err()
}

func (b *SQLite) loadProgress(ctx context.Context, sessionID string) ([]ProgressEntry, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT run_id, summary, created_at FROM progress WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, storageErr("load_progress", "query progress", err)
	}
	defer rows.Close()
	var out []ProgressEntry
	for rows.Next() {
		var e ProgressEntry
		var createdAt string
		if err := rows.Scan(&e.RunID, &e.Summary, &createdAt); err != nil {
			return nil, storageErr("load_progress", "scan progress", err)
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (b *SQLite) loadCheckpoints(ctx context.Context, sessionID string) ([]RunCheckpoint, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT run_id, started_at, completed_at, status, note FROM checkpoints WHERE session_id = ? ORDER BY started_at, run_id`, sessionID)
	if err != nil {
		return nil, storageErr("load_checkpoints", "query checkpoints", err)
	}
	defer rows.Close()
	var out []RunCheckpoint
	for rows.Next() {
		var c RunCheckpoint
		var startedAt string
		var completedAt sql.NullString
		var status string
		if err := rows.Scan(&c.RunID, &startedAt, &completedAt, &status, &c.Note); err != nil {
			return nil, storageErr("load_checkpoints", "scan checkpoint", err)
		}
		c.StartedAt = parseTime(startedAt)
		c.Status = RunStatus(status)
		if completedAt.Valid && completedAt.String != "" {
			t := parseTime(completedAt.String)
			c.CompletedAt = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveManifest implements Backend.
func (b *SQLite) SaveManifest(ctx context.Context, manifest SessionManifest) error {
	if err := manifest.Validate(); err != nil {
		return invalidErr("save_manifest", err.Error())
	}
	payload, err := json.Marshal(manifest)
	if err != nil {
		return storageErr("save_manifest", "encode manifest", err)
	}
	res, err := b.db.ExecContext(ctx,
		`UPDATE manifests SET payload = ? WHERE session_id = ?`,
		string(payload), manifest.SessionID)
	if err != nil {
		return storageErr("save_manifest", "update manifest", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("save_manifest", "rows affected", err)
	}
	if n == 0 {
		return notFoundErr("save_manifest", fmt.Sprintf("session %q is not initialized", manifest.SessionID))
	}
	return nil
}

// ReplaceFeatureList implements Backend.
func (b *SQLite) ReplaceFeatureList(ctx context.Context, sessionID string, features []FeatureRecord) error {
	ok, err := b.IsInitialized(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return notFoundErr("replace_feature_list", fmt.Sprintf("session %q is not initialized", sessionID))
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("replace_feature_list", "begin transaction", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM features WHERE session_id = ?`, sessionID); err != nil {
		return storageErr("replace_feature_list", "clear features", err)
	}
	for i, f := range features {
		if err := insertFeature(ctx, tx, sessionID, i, f); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("replace_feature_list", "commit", err)
	}
	return nil
}

// SetFeaturePassing implements Backend.
func (b *SQLite) SetFeaturePassing(ctx context.Context, sessionID, featureID string, passes bool) error {
	var payload string
	err := b.db.QueryRowContext(ctx,
		`SELECT payload FROM features WHERE session_id = ? AND feature_id = ?`,
		sessionID, featureID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return notFoundErr("set_feature_passing", fmt.Sprintf("feature %q not found", featureID))
	}
	if err != nil {
		return storageErr("set_feature_passing", "query feature", err)
	}
	var f FeatureRecord
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		return storageErr("set_feature_passing", "decode feature", err)
	}
	f.Passes = passes
	updated, err := json.Marshal(f)
	if err != nil {
		return storageErr("set_feature_passing", "encode feature", err)
	}
	if _, err := b.db.ExecContext(ctx,
		`UPDATE features SET payload = ?, passes = ? WHERE session_id = ? AND feature_id = ?`,
		string(updated), boolToInt(passes), sessionID, featureID); err != nil {
		return storageErr("set_feature_passing", "update feature", err)
	}
	return nil
}

// AppendProgress implements Backend.
func (b *SQLite) AppendProgress(ctx context.Context, sessionID string, entry ProgressEntry) error {
	ok, err := b.IsInitialized(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return notFoundErr("append_progress", fmt.Sprintf("session %q is not initialized", sessionID))
	}
	if _, err := b.db.ExecContext(ctx,
		`INSERT INTO progress (session_id, run_id, summary, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, entry.RunID, entry.Summary, formatTime(entry.CreatedAt)); err != nil {
		return storageErr("append_progress", "insert progress", err)
	}
	return nil
}

// RecordRunCheckpoint implements Backend.
func (b *SQLite) RecordRunCheckpoint(ctx context.Context, sessionID string, checkpoint RunCheckpoint) error {
	ok, err := b.IsInitialized(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return notFoundErr("record_run_checkpoint", fmt.Sprintf("session %q is not initialized", sessionID))
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("record_run_checkpoint", "begin transaction", err)
	}
	defer tx.Rollback()

	var existing *RunCheckpoint
	var startedAt, status string
	err = tx.QueryRowContext(ctx,
		`SELECT started_at, status FROM checkpoints WHERE session_id = ? AND run_id = ?`,
		sessionID, checkpoint.RunID).Scan(&startedAt, &status)
	if err == nil {
		existing = &RunCheckpoint{RunID: checkpoint.RunID, StartedAt: parseTime(startedAt), Status: RunStatus(status)}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return storageErr("record_run_checkpoint", "query checkpoint", err)
	}

	if err := checkUpsert(existing, checkpoint); err != nil {
		return err
	}
	merged := mergeUpsert(existing, checkpoint)
	if existing == nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO checkpoints (session_id, run_id, started_at, completed_at, status, note) VALUES (?, ?, ?, ?, ?, ?)`,
			sessionID, merged.RunID, formatTime(merged.StartedAt),
			formatTimePtr(merged.CompletedAt), string(merged.Status), merged.Note)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE checkpoints SET started_at = ?, completed_at = ?, status = ?, note = ? WHERE session_id = ? AND run_id = ?`,
			formatTime(merged.StartedAt), formatTimePtr(merged.CompletedAt),
			string(merged.Status), merged.Note, sessionID, merged.RunID)
	}
	if err != nil {
		return storageErr("record_run_checkpoint", "write checkpoint", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("record_run_checkpoint", "commit", err)
	}
	return nil
}

// LoadTranscript implements Backend.
func (b *SQLite) LoadTranscript(ctx context.Context, sessionID string) ([]provider.Message, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT role, content, tool_call_id FROM transcript WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, storageErr("load_transcript", "query transcript", err)
	}
	defer rows.Close()
	var out []provider.Message
	for rows.Next() {
		var m provider.Message
		var role string
		if err := rows.Scan(&role, &m.Content, &m.ToolCallID); err != nil {
			return nil, storageErr("load_transcript", "scan message", err)
		}
		m.Role = provider.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

// AppendTranscript implements Backend.
func (b *SQLite) AppendTranscript(ctx context.Context, sessionID string, msgs []provider.Message) error {
	ok, err := b.IsInitialized(ctx, sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return notFoundErr("append_transcript", fmt.Sprintf("session %q is not initialized", sessionID))
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("append_transcript", "begin transaction", err)
	}
	defer tx.Rollback()
	for _, m := range msgs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transcript (session_id, role, content, tool_call_id) VALUES (?, ?, ?, ?)`,
			sessionID, string(m.Role), m.Content, m.ToolCallID); err != nil {
			return storageErr("append_transcript", "insert message", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storageErr("append_transcript", "commit", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
