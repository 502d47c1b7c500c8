// Package bootstrap guarantees the configuration store holds a default
// configuration before the service starts answering requests.
package bootstrap

import (
	"context"

	"go.uber.org/zap"

	"github.com/matchforge/configurator/pkg/engine"
	"github.com/matchforge/configurator/pkg/errors"
	"github.com/matchforge/configurator/pkg/logger"
	"github.com/matchforge/configurator/pkg/metrics"
	"github.com/matchforge/configurator/pkg/snapshot"
)

// initialComment tags the snapshot created on a store that has never been
// configured.
const initialComment = "Initial configuration."

// State reports how far an Initializer has progressed.
type State int

const (
	// Uninitialized means Run has not completed yet.
	Uninitialized State = iota
	// Initialized means the store is guaranteed to have a default
	// configuration. Terminal for the process run.
	Initialized
)

// Initializer ensures a default configuration exists exactly once at
// process start. It is not safe for concurrent use; startup runs it on a
// single goroutine before the HTTP listener opens.
type Initializer struct {
	store  engine.ConfigStore
	state  State
	logger *zap.Logger
}

// New returns an Initializer over the given store.
func New(store engine.ConfigStore) *Initializer {
	return &Initializer{
		store:  store,
		logger: logger.Get().With(zap.String("component", "bootstrap")),
	}
}

// State returns the initializer's current state.
func (i *Initializer) State() State {
	return i.state
}

// Run queries the default configuration pointer and, when absent, stores
// the empty template snapshot and points the default at it. A store that
// already has a default is left untouched. After the first successful call
// Run is a no-op.
//
// Setting the pointer here skips the usual validation gate: there is no
// prior working configuration to fall back to. Any store failure is fatal
// to startup.
func (i *Initializer) Run(ctx context.Context) error {
	if i.state == Initialized {
		return nil
	}

	configID, ok, err := i.store.GetDefaultConfigID(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "cannot read default configuration pointer")
	}
	if ok {
		i.logger.Debug("default configuration already present", zap.Int64("config_id", configID))
		i.state = Initialized
		return nil
	}

	raw, err := snapshot.New().Marshal()
	if err != nil {
		return err
	}

	configID, err = i.store.AddConfig(ctx, raw, initialComment)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "cannot store initial configuration snapshot")
	}
	metrics.SnapshotsCreated.Inc()

	if err := i.store.SetDefaultConfigID(ctx, configID); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "cannot set initial default configuration pointer").
			WithDetail("config_id", configID)
	}
	metrics.ActiveConfigID.Set(float64(configID))

	i.logger.Info("created initial configuration", zap.Int64("config_id", configID))
	i.state = Initialized
	return nil
}
