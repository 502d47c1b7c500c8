package sqlstore

import (
	"context"
	"time"

	"github.com/matchforge/configurator/pkg/errors"
)

// AddConfig stores a new snapshot document and returns its assigned ID. IDs
// are allocated inside the insert transaction as max(existing)+1, starting
// at 1, so concurrent writers cannot mint the same ID.
func (s *Store) AddConfig(ctx context.Context, document []byte, comment string) (int64, error) {
	compressed := s.encoder.EncodeAll(document, nil)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConnection, "cannot begin registry transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var configID int64
	err = tx.QueryRowContext(ctx,
		s.q(`SELECT COALESCE(MAX(config_id), 0) + 1 FROM mf_config_registry`)).Scan(&configID)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConnection, "cannot allocate configuration ID")
	}

	_, err = tx.ExecContext(ctx,
		s.q(`INSERT INTO mf_config_registry (config_id, created_at, comments, document) VALUES (?, ?, ?, ?)`),
		configID, time.Now().UTC(), comment, compressed)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConnection, "cannot store configuration snapshot").
			WithDetail("config_id", configID)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConnection, "cannot commit configuration snapshot").
			WithDetail("config_id", configID)
	}
	return configID, nil
}

// SetDefaultConfigID advances the default pointer to an existing snapshot.
func (s *Store) SetDefaultConfigID(ctx context.Context, configID int64) error {
	_, err := s.db.ExecContext(ctx, s.q(s.dialect.upsertDefault), configID)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "cannot set default configuration pointer").
			WithDetail("config_id", configID)
	}
	return nil
}
