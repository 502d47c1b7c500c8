package sqlstore

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/matchforge/configurator/pkg/errors"
)

// GetDefaultConfigID returns the active configuration ID. The second return
// is false when no default has ever been set.
func (s *Store) GetDefaultConfigID(ctx context.Context) (int64, bool, error) {
	var configID int64
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT config_id FROM mf_config_default WHERE id = 1`)).Scan(&configID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, errors.ErrorTypeConnection, "cannot read default configuration pointer")
	}
	return configID, true, nil
}

// GetConfig returns the stored snapshot document for an ID, decompressed.
func (s *Store) GetConfig(ctx context.Context, configID int64) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT document FROM mf_config_registry WHERE config_id = ?`), configID).Scan(&compressed)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrorTypeNotFound, "configuration snapshot not found").
			WithDetail("config_id", configID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "cannot read configuration snapshot").
			WithDetail("config_id", configID)
	}

	document, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "cannot decompress configuration snapshot").
			WithDetail("config_id", configID)
	}
	return document, nil
}
