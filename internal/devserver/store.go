// Package devserver is a self-contained local stand-in for the backend
// services this client talks to: snippet store, rule services, test runner
// proxy, user directory and token endpoint, all on one port.
//
// It exists for development and integration testing only — responses mimic
// the production services' quirks (raw enum casing, plain-text
// confirmations, version-in-name language entries) on purpose, so the
// client's normalize layer gets exercised against realistic payloads.
package devserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"golang.org/x/crypto/bcrypt"

	_ "modernc.org/sqlite"

	"github.com/ingsis25/snippet-searcher/internal/apperror"
)

// Store wraps a sql.DB connection pool over the emulator's SQLite file.
// Use ":memory:" in tests.
type Store struct {
	conn *sql.DB
}

// NewStore opens the database, applies the pragmas the teacher of all
// SQLite setups demands (WAL + foreign keys), and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("devserver: opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("devserver: pinging database: %w", err)
	}

	// WAL lets reads proceed during writes; foreign keys are off by default
	// in SQLite for backwards compatibility.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("devserver: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("devserver: enabling foreign keys: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("devserver: running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS snippets (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			content     TEXT NOT NULL DEFAULT '',
			language    TEXT NOT NULL,
			extension   TEXT NOT NULL,
			version     TEXT NOT NULL,
			owner_email TEXT NOT NULL,
			status      TEXT NOT NULL DEFAULT 'PENDING',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_snippets_owner ON snippets(owner_email);

		CREATE TABLE IF NOT EXISTS shares (
			snippet_id TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
			user_email TEXT NOT NULL,
			role       TEXT NOT NULL,
			PRIMARY KEY (snippet_id, user_email)
		);

		CREATE TABLE IF NOT EXISTS test_cases (
			id          TEXT PRIMARY KEY,
			snippet_id  TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
			name        TEXT NOT NULL,
			input_json  TEXT NOT NULL DEFAULT '[]',
			output_json TEXT NOT NULL DEFAULT '[]'
		);

		CREATE TABLE IF NOT EXISTS rules (
			kind       TEXT NOT NULL,
			id         TEXT NOT NULL,
			name       TEXT NOT NULL,
			is_active  INTEGER NOT NULL DEFAULT 0,
			value_json TEXT NOT NULL DEFAULT 'null',
			PRIMARY KEY (kind, id)
		);
	`)
	return err
}

// Seed inserts the development user and the default rule sets. Idempotent —
// existing rows stay untouched.
func (s *Store) Seed(ctx context.Context, email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("devserver: hashing seed password: %w", err)
	}
	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash) VALUES (?, ?, ?)
		 ON CONFLICT(email) DO NOTHING`,
		xid.New().String(), email, string(hash),
	)
	if err != nil {
		return fmt.Errorf("devserver: seeding user: %w", err)
	}

	seedRules := []struct {
		kind, id, name string
		active         bool
		value          any
	}{
		{"format", "1", "enforce-spacing-before-colon-in-declaration", false, nil},
		{"format", "2", "enforce-spacing-after-colon-in-declaration", true, nil},
		{"format", "3", "indent-inside-if", true, 4},
		{"lint", "1", "identifier_format", true, "camel case"},
		{"lint", "2", "mandatory-variable-or-literal-in-println", false, nil},
	}
	for _, r := range seedRules {
		value, _ := json.Marshal(r.value)
		_, err := s.conn.ExecContext(ctx,
			`INSERT INTO rules (kind, id, name, is_active, value_json) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(kind, id) DO NOTHING`,
			r.kind, r.id, r.name, boolToInt(r.active), string(value),
		)
		if err != nil {
			return fmt.Errorf("devserver: seeding rules: %w", err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// userRecord is a directory row.
type userRecord struct {
	ID           string
	Email        string
	PasswordHash string
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*userRecord, error) {
	var u userRecord
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", email)
	}
	if err != nil {
		return nil, fmt.Errorf("devserver: fetching user: %w", err)
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context, search string) ([]userRecord, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, email, password_hash FROM users
		 WHERE email LIKE ? ORDER BY email`,
		"%"+search+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("devserver: listing users: %w", err)
	}
	defer rows.Close()

	var users []userRecord
	for rows.Next() {
		var u userRecord
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash); err != nil {
			return nil, fmt.Errorf("devserver: scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// snippetRecord is a stored snippet row. Status keeps the backend's raw
// enum casing (PENDING, FAILED, NOT_COMPLIANT, SUCCESS) — normalizing it is
// the client's job, not the emulator's.
type snippetRecord struct {
	ID         string
	Name       string
	Content    string
	Language   string
	Extension  string
	Version    string
	OwnerEmail string
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (s *Store) CreateSnippet(ctx context.Context, rec *snippetRecord) error {
	rec.ID = xid.New().String()
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = "PENDING"
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO snippets (id, name, content, language, extension, version, owner_email, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Content, rec.Language, rec.Extension, rec.Version,
		rec.OwnerEmail, rec.Status, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("devserver: creating snippet: %w", err)
	}
	return nil
}

func (s *Store) SnippetByID(ctx context.Context, id string) (*snippetRecord, error) {
	var rec snippetRecord
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, name, content, language, extension, version, owner_email, status, created_at, updated_at
		 FROM snippets WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.Name, &rec.Content, &rec.Language, &rec.Extension,
		&rec.Version, &rec.OwnerEmail, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("snippet", id)
	}
	if err != nil {
		return nil, fmt.Errorf("devserver: fetching snippet: %w", err)
	}
	return &rec, nil
}

// ListSnippetsForUser returns one page of snippets the user owns or was
// granted access to, plus the total matching count and the caller's role on
// each row.
func (s *Store) ListSnippetsForUser(ctx context.Context, email string, page, pageSize int, nameFilter string) ([]snippetRecord, []string, int, error) {
	filter := "%" + nameFilter + "%"

	var count int
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snippets sn
		 LEFT JOIN shares sh ON sh.snippet_id = sn.id AND sh.user_email = ?
		 WHERE (sn.owner_email = ? OR sh.user_email IS NOT NULL) AND sn.name LIKE ?`,
		email, email, filter,
	).Scan(&count)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("devserver: counting snippets: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT sn.id, sn.name, sn.content, sn.language, sn.extension, sn.version,
		        sn.owner_email, sn.status, sn.created_at, sn.updated_at,
		        COALESCE(sh.role, CASE WHEN sn.owner_email = ? THEN 'Owner' ELSE '' END)
		 FROM snippets sn
		 LEFT JOIN shares sh ON sh.snippet_id = sn.id AND sh.user_email = ?
		 WHERE (sn.owner_email = ? OR sh.user_email IS NOT NULL) AND sn.name LIKE ?
		 ORDER BY sn.created_at DESC
		 LIMIT ? OFFSET ?`,
		email, email, email, filter, pageSize, page*pageSize,
	)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("devserver: listing snippets: %w", err)
	}
	defer rows.Close()

	var records []snippetRecord
	var roles []string
	for rows.Next() {
		var rec snippetRecord
		var role string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Content, &rec.Language, &rec.Extension,
			&rec.Version, &rec.OwnerEmail, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt, &role); err != nil {
			return nil, nil, 0, fmt.Errorf("devserver: scanning snippet: %w", err)
		}
		records = append(records, rec)
		roles = append(roles, role)
	}
	return records, roles, count, rows.Err()
}

func (s *Store) UpdateSnippetContent(ctx context.Context, id, content string) error {
	result, err := s.conn.ExecContext(ctx,
		`UPDATE snippets SET content = ?, status = 'PENDING', updated_at = ? WHERE id = ?`,
		content, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("devserver: updating snippet: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperror.NotFound("snippet", id)
	}
	return nil
}

func (s *Store) DeleteSnippet(ctx context.Context, id string) error {
	result, err := s.conn.ExecContext(ctx, `DELETE FROM snippets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("devserver: deleting snippet: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperror.NotFound("snippet", id)
	}
	return nil
}

// ShareSnippet upserts the grantee's role on the snippet.
func (s *Store) ShareSnippet(ctx context.Context, snippetID, email, role string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO shares (snippet_id, user_email, role) VALUES (?, ?, ?)
		 ON CONFLICT(snippet_id, user_email) DO UPDATE SET role = excluded.role`,
		snippetID, email, role,
	)
	if err != nil {
		return fmt.Errorf("devserver: sharing snippet: %w", err)
	}
	return nil
}

// RoleFor answers the caller's role on a snippet: "Owner", a granted role,
// or "" for no access at all.
func (s *Store) RoleFor(ctx context.Context, snippetID, email string) (string, error) {
	rec, err := s.SnippetByID(ctx, snippetID)
	if err != nil {
		return "", err
	}
	if rec.OwnerEmail == email {
		return "Owner", nil
	}

	var role string
	err = s.conn.QueryRowContext(ctx,
		`SELECT role FROM shares WHERE snippet_id = ? AND user_email = ?`,
		snippetID, email,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("devserver: fetching role: %w", err)
	}
	return role, nil
}

// testCaseRecord stores the input/output lists as JSON text columns.
type testCaseRecord struct {
	ID        string
	SnippetID string
	Name      string
	Input     []string
	Output    []string
}

func (s *Store) CreateTestCase(ctx context.Context, rec *testCaseRecord) error {
	rec.ID = xid.New().String()
	input, _ := json.Marshal(rec.Input)
	output, _ := json.Marshal(rec.Output)

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO test_cases (id, snippet_id, name, input_json, output_json) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.SnippetID, rec.Name, string(input), string(output),
	)
	if err != nil {
		return fmt.Errorf("devserver: creating test case: %w", err)
	}
	return nil
}

func (s *Store) TestCasesForSnippet(ctx context.Context, snippetID string) ([]testCaseRecord, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, snippet_id, name, input_json, output_json FROM test_cases WHERE snippet_id = ? ORDER BY id`,
		snippetID,
	)
	if err != nil {
		return nil, fmt.Errorf("devserver: listing test cases: %w", err)
	}
	defer rows.Close()

	var records []testCaseRecord
	for rows.Next() {
		rec, err := scanTestCase(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *Store) TestCaseByID(ctx context.Context, id string) (*testCaseRecord, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, snippet_id, name, input_json, output_json FROM test_cases WHERE id = ?`, id,
	)
	rec, err := scanTestCase(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("test case", id)
		}
		return nil, err
	}
	return rec, nil
}

func scanTestCase(scan func(dest ...any) error) (*testCaseRecord, error) {
	var rec testCaseRecord
	var inputJSON, outputJSON string
	if err := scan(&rec.ID, &rec.SnippetID, &rec.Name, &inputJSON, &outputJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("devserver: scanning test case: %w", err)
	}
	json.Unmarshal([]byte(inputJSON), &rec.Input)
	json.Unmarshal([]byte(outputJSON), &rec.Output)
	return &rec, nil
}

func (s *Store) DeleteTestCase(ctx context.Context, id string) error {
	result, err := s.conn.ExecContext(ctx, `DELETE FROM test_cases WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("devserver: deleting test case: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return apperror.NotFound("test case", id)
	}
	return nil
}

// ruleRecord matches the rule services' wire shape.
type ruleRecord struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"isActive"`
	Value  any    `json:"value,omitempty"`
}

func (s *Store) Rules(ctx context.Context, kind string) ([]ruleRecord, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, name, is_active, value_json FROM rules WHERE kind = ? ORDER BY CAST(id AS INTEGER)`,
		kind,
	)
	if err != nil {
		return nil, fmt.Errorf("devserver: listing rules: %w", err)
	}
	defer rows.Close()

	var rules []ruleRecord
	for rows.Next() {
		var r ruleRecord
		var active int
		var valueJSON string
		if err := rows.Scan(&r.ID, &r.Name, &active, &valueJSON); err != nil {
			return nil, fmt.Errorf("devserver: scanning rule: %w", err)
		}
		r.Active = active == 1
		json.Unmarshal([]byte(valueJSON), &r.Value)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *Store) ReplaceRules(ctx context.Context, kind string, rules []ruleRecord) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("devserver: beginning rules transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE kind = ?`, kind); err != nil {
		return fmt.Errorf("devserver: clearing rules: %w", err)
	}
	for _, r := range rules {
		value, _ := json.Marshal(r.Value)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rules (kind, id, name, is_active, value_json) VALUES (?, ?, ?, ?, ?)`,
			kind, r.ID, r.Name, boolToInt(r.Active), string(value),
		); err != nil {
			return fmt.Errorf("devserver: inserting rule: %w", err)
		}
	}
	return tx.Commit()
}
