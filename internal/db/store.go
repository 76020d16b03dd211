package db

import (
	"context"
	"database/sql"
)

// Store binds the query functions to one database handle. It satisfies the
// storage interfaces declared by the session, settings and plugin packages.
type Store struct {
	db *sql.DB
}

// NewStore wraps an initialized database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) PutDocument(ctx context.Context, rec *DocumentRecord) error {
	return PutDocument(ctx, s.db, rec)
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	return DeleteDocument(ctx, s.db, id)
}

func (s *Store) ListDocuments(ctx context.Context) ([]DocumentRecord, error) {
	return ListDocuments(ctx, s.db)
}

func (s *Store) ListDocumentIDs(ctx context.Context) ([]string, error) {
	return ListDocumentIDs(ctx, s.db)
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	return GetSetting(ctx, s.db, key)
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	return SetSetting(ctx, s.db, key, value)
}

func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	return DeleteSetting(ctx, s.db, key)
}

func (s *Store) ListSettings(ctx context.Context, prefix string) (map[string]string, error) {
	return ListSettings(ctx, s.db, prefix)
}

func (s *Store) PutPlugin(ctx context.Context, p *PluginRecord) error {
	return PutPlugin(ctx, s.db, p)
}

func (s *Store) GetPlugin(ctx context.Context, id string) (*PluginRecord, error) {
	return GetPlugin(ctx, s.db, id)
}

func (s *Store) ListPlugins(ctx context.Context) ([]PluginRecord, error) {
	return ListPlugins(ctx, s.db)
}

func (s *Store) DeletePlugin(ctx context.Context, id string) error {
	return DeletePlugin(ctx, s.db, id)
}
