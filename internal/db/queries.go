package db

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hpungsan/quill/internal/errors"
)

// DocumentRecord is the persisted snapshot of an open document.
type DocumentRecord struct {
	ID       string
	Name     string
	Language string
	Content  string
	Dirty    bool

	// Handle is the serialized file handle, nil when the document is unbound
	// or its handle could not be serialized.
	Handle *string

	// Position is the tab index at snapshot time.
	Position  int
	UpdatedAt int64
}

// PluginRecord is a stored plugin.
type PluginRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Code    string `json:"code"`
	Enabled bool   `json:"enabled"`
	AddedAt int64  `json:"added_at"`
}

// PutDocument inserts or replaces the record for rec.ID.
func PutDocument(ctx context.Context, db *sql.DB, rec *DocumentRecord) error {
	if rec.UpdatedAt == 0 {
		rec.UpdatedAt = time.Now().Unix()
	}

	query := `
		INSERT INTO documents (id, name, language, content, dirty, handle, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			language = excluded.language,
			content = excluded.content,
			dirty = excluded.dirty,
			handle = excluded.handle,
			position = excluded.position,
			updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		rec.ID, rec.Name, rec.Language, rec.Content, boolToInt(rec.Dirty),
		toNullString(rec.Handle), rec.Position, rec.UpdatedAt,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteDocument removes the record for id. Deleting a missing id is not an error.
func DeleteDocument(ctx context.Context, db *sql.DB, id string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListDocuments returns every stored document in tab order.
func ListDocuments(ctx context.Context, db *sql.DB) ([]DocumentRecord, error) {
	query := `
		SELECT id, name, language, content, dirty, handle, position, updated_at
		FROM documents
		ORDER BY position ASC, updated_at ASC, id ASC
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var records []DocumentRecord
	for rows.Next() {
		var (
			rec    DocumentRecord
			dirty  int
			handle sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Language, &rec.Content, &dirty,
			&handle, &rec.Position, &rec.UpdatedAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		rec.Dirty = dirty != 0
		rec.Handle = fromNullString(handle)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	return records, nil
}

// ListDocumentIDs returns the ids of every stored document.
func ListDocumentIDs(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM documents`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewInternal(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return ids, nil
}

// GetSetting returns the raw value stored under key and whether it exists.
func GetSetting(ctx context.Context, db *sql.DB, key string) (string, bool, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewInternal(err)
	}
	return value, true, nil
}

// SetSetting stores value under key.
func SetSetting(ctx context.Context, db *sql.DB, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := db.ExecContext(ctx, query, key, value, time.Now().Unix()); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// DeleteSetting removes key. Deleting a missing key is not an error.
func DeleteSetting(ctx context.Context, db *sql.DB, key string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// ListSettings returns every setting whose key starts with prefix.
func ListSettings(ctx context.Context, db *sql.DB, prefix string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT key, value FROM settings WHERE substr(key, 1, ?) = ? ORDER BY key`,
		len(prefix), prefix)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, errors.NewInternal(err)
		}
		result[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return result, nil
}

// PutPlugin inserts or replaces a plugin record.
func PutPlugin(ctx context.Context, db *sql.DB, p *PluginRecord) error {
	query := `
		INSERT INTO plugins (id, name, code, enabled, added_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			code = excluded.code,
			enabled = excluded.enabled
	`
	if _, err := db.ExecContext(ctx, query, p.ID, p.Name, p.Code, boolToInt(p.Enabled), p.AddedAt); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetPlugin retrieves a plugin by id.
func GetPlugin(ctx context.Context, db *sql.DB, id string) (*PluginRecord, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, name, code, enabled, added_at FROM plugins WHERE id = ?`, id)
	p, err := scanPlugin(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("plugin", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return p, nil
}

// ListPlugins returns every stored plugin in the order it was added.
func ListPlugins(ctx context.Context, db *sql.DB) ([]PluginRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, code, enabled, added_at FROM plugins ORDER BY added_at ASC, id ASC`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var plugins []PluginRecord
	for rows.Next() {
		p, err := scanPlugin(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		plugins = append(plugins, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return plugins, nil
}

// DeletePlugin removes a plugin and its namespaced storage.
func DeletePlugin(ctx context.Context, db *sql.DB, id string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM plugins WHERE id = ?`, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("plugin", id)
	}

	prefix := PluginStoragePrefix(id)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM settings WHERE substr(key, 1, ?) = ?`, len(prefix), prefix); err != nil {
		return errors.NewInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// PluginStoragePrefix is the settings key namespace owned by a plugin.
func PluginStoragePrefix(pluginID string) string {
	return "plugin." + strings.TrimSpace(pluginID) + "."
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlugin(row rowScanner) (*PluginRecord, error) {
	var (
		p       PluginRecord
		enabled int
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Code, &enabled, &p.AddedAt); err != nil {
		return nil, err
	}
	p.Enabled = enabled != 0
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
