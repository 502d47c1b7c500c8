// Package client mediates every configuration snapshot read and write
// against the versioned store and keeps the live engine handle pointed at
// the active snapshot.
//
// All mutation funnels through one mutex-serialized commit protocol: store
// the candidate snapshot, prove it usable with a throwaway engine, and only
// then advance the default pointer and reinitialize the live engine. A
// candidate that fails validation stays in the store unpointed, preserved
// for audit.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/matchforge/configurator/internal/notify"
	"github.com/matchforge/configurator/pkg/engine"
	"github.com/matchforge/configurator/pkg/errors"
	"github.com/matchforge/configurator/pkg/logger"
	"github.com/matchforge/configurator/pkg/metrics"
	"github.com/matchforge/configurator/pkg/observability"
	"github.com/matchforge/configurator/pkg/snapshot"
)

// validationEngineName names the throwaway engine instances used to prove
// candidate snapshots before activation.
const validationEngineName = "configurator-validation"

// Options wires the collaborators a Client needs.
type Options struct {
	// Store is the engine's versioned configuration registry.
	Store engine.ConfigStore

	// Factory creates throwaway engines for candidate validation.
	Factory engine.Factory

	// Live is the serving engine handle, reinitialized on every activation.
	Live engine.Engine

	// Notifier receives an event after each activation. Nil disables
	// notifications.
	Notifier notify.Notifier

	// SettingsJSON is the engine settings document passed to throwaway
	// engine initializations.
	SettingsJSON string

	// Verbose is forwarded to engine initialization calls.
	Verbose bool
}

// Client is the sole writer of the default configuration pointer. Methods
// are safe for concurrent use.
type Client struct {
	store    engine.ConfigStore
	factory  engine.Factory
	live     engine.Engine
	notifier notify.Notifier

	settingsJSON string
	verbose      bool

	mu     sync.Mutex
	logger *zap.Logger
}

// New returns a Client over the given collaborators.
func New(opts Options) (*Client, error) {
	if opts.Store == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "client requires a configuration store")
	}
	if opts.Factory == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "client requires an engine factory")
	}
	if opts.Live == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "client requires a live engine handle")
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	return &Client{
		store:        opts.Store,
		factory:      opts.Factory,
		live:         opts.Live,
		notifier:     notifier,
		settingsJSON: opts.SettingsJSON,
		verbose:      opts.Verbose,
		logger:       logger.Get().With(zap.String("component", "client")),
	}, nil
}

// AddResult reports the outcome of AddDataSources, split by whether each
// proposed code was already registered. Input order is preserved within
// each list.
type AddResult struct {
	Existing []string `json:"existingDatasources"`
	Created  []string `json:"createdDatasources"`
}

// ListDataSources returns the data source codes registered in the active
// snapshot, in definition order. The registry is empty until the store has
// been bootstrapped.
func (c *Client) ListDataSources(ctx context.Context) ([]string, error) {
	doc, _, err := c.loadActive(ctx)
	if err != nil {
		return nil, err
	}
	return doc.DataSources(), nil
}

// ActiveConfigID returns the configuration ID the default pointer names.
// The second return is false when no pointer has been set yet.
func (c *Client) ActiveConfigID(ctx context.Context) (int64, bool, error) {
	configID, ok, err := c.store.GetDefaultConfigID(ctx)
	if err != nil {
		return 0, false, errors.Wrap(err, errors.ErrorTypeConnection, "cannot read default configuration pointer")
	}
	return configID, ok, nil
}

// AddDataSources registers every code not already present, in input order,
// and activates the resulting snapshot through the commit protocol. Codes
// are case-sensitive. A request whose codes are all present short-circuits
// without creating a snapshot.
//
// A candidate that fails validation is reported in the result but stays
// orphaned in the store; the active registry is unchanged.
func (c *Client) AddDataSources(ctx context.Context, codes []string) (AddResult, error) {
	result := AddResult{
		Existing: make([]string, 0, len(codes)),
		Created:  make([]string, 0, len(codes)),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	doc, previousID, err := c.loadActive(ctx)
	if err != nil {
		return AddResult{}, err
	}

	for _, code := range codes {
		if doc.Has(code) {
			result.Existing = append(result.Existing, code)
			continue
		}
		id, err := doc.Add(code)
		if err != nil {
			return AddResult{}, err
		}
		c.logger.Info("adding datasource",
			zap.String("datasource", code),
			zap.Int64("dsrc_id", id))
		result.Created = append(result.Created, code)
	}

	if len(result.Created) == 0 {
		return result, nil
	}

	comment := fmt.Sprintf("CONFIG_DATA_ID: %d plus datasources: %v", previousID, result.Created)
	if err := c.persist(ctx, doc, comment, result.Created); err != nil {
		return AddResult{}, err
	}

	metrics.DataSourcesAdded.Add(float64(len(result.Created)))
	return result, nil
}

// loadActive loads the snapshot the default pointer names, or the empty
// template document when no pointer exists. The returned ID is 0 in that
// case.
func (c *Client) loadActive(ctx context.Context) (*snapshot.Document, int64, error) {
	timer := metrics.NewTimer()
	configID, ok, err := c.store.GetDefaultConfigID(ctx)
	metrics.StoreOperationDuration.WithLabelValues("get_default").Observe(timer.Stop().Seconds())
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrorTypeConnection, "cannot read default configuration pointer")
	}
	if !ok {
		return snapshot.New(), 0, nil
	}

	timer = metrics.NewTimer()
	raw, err := c.store.GetConfig(ctx, configID)
	metrics.StoreOperationDuration.WithLabelValues("get_config").Observe(timer.Stop().Seconds())
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrorTypeConnection, "cannot load active configuration snapshot").
			WithDetail("config_id", configID)
	}

	doc, err := snapshot.Parse(raw)
	if err != nil {
		return nil, 0, err
	}
	return doc, configID, nil
}

// persist runs the commit protocol. Callers must hold c.mu.
func (c *Client) persist(ctx context.Context, doc *snapshot.Document, comment string, created []string) error {
	ctx, span := observability.StartSpan(ctx, "client.persist")
	defer span.End()

	raw, err := doc.Marshal()
	if err != nil {
		return err
	}

	timer := metrics.NewTimer()
	configID, err := c.store.AddConfig(ctx, raw, comment)
	metrics.StoreOperationDuration.WithLabelValues("add_config").Observe(timer.Stop().Seconds())
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "cannot store candidate configuration snapshot")
	}
	metrics.SnapshotsCreated.Inc()
	span.SetAttributes(attribute.Int64("config_id", configID))

	if !c.validate(ctx, configID) {
		return nil
	}

	timer = metrics.NewTimer()
	err = c.store.SetDefaultConfigID(ctx, configID)
	metrics.StoreOperationDuration.WithLabelValues("set_default").Observe(timer.Stop().Seconds())
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "cannot advance default configuration pointer").
			WithDetail("config_id", configID)
	}

	if err := c.live.Reinitialize(ctx, configID); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "cannot reinitialize live engine").
			WithDetail("config_id", configID)
	}
	metrics.ActiveConfigID.Set(float64(configID))
	c.logger.Info("activated configuration snapshot",
		zap.Int64("config_id", configID),
		zap.Strings("datasources", created))

	event := notify.Event{
		ConfigID:    configID,
		Comment:     comment,
		DataSources: created,
		ActivatedAt: time.Now().UTC(),
	}
	if err := c.notifier.ConfigActivated(ctx, event); err != nil {
		c.logger.Warn("could not publish activation event",
			zap.Int64("config_id", configID),
			zap.Error(err))
	}
	return nil
}

// validate proves a candidate snapshot by initializing a throwaway engine
// against it and running a trivial search with the export-default flags.
// Failures are warnings, never errors; the candidate is simply not
// activated.
func (c *Client) validate(ctx context.Context, configID int64) bool {
	ctx, span := observability.StartSpan(ctx, "client.validate")
	defer span.End()

	probe, err := c.factory.NewEngine(validationEngineName)
	if err != nil {
		metrics.ValidationFailures.WithLabelValues("initialize").Inc()
		c.logger.Warn("CONFIG_DATA_ID did not pass initialization validation",
			zap.Int64("config_id", configID),
			zap.Error(err))
		return false
	}
	defer func() {
		if derr := probe.Destroy(ctx); derr != nil {
			c.logger.Debug("could not destroy validation engine", zap.Error(derr))
		}
	}()

	if err := probe.InitializeWithConfigID(ctx, validationEngineName, c.settingsJSON, configID, c.verbose); err != nil {
		metrics.ValidationFailures.WithLabelValues("initialize").Inc()
		c.logger.Warn("CONFIG_DATA_ID did not pass initialization validation",
			zap.Int64("config_id", configID),
			zap.Error(err))
		return false
	}

	if _, err := probe.Search(ctx, "{}", engine.ExportDefaultFlags); err != nil {
		metrics.ValidationFailures.WithLabelValues("search").Inc()
		c.logger.Warn("CONFIG_DATA_ID did not pass search validation",
			zap.Int64("config_id", configID),
			zap.Error(err))
		return false
	}

	c.logger.Info("CONFIG_DATA_ID passed validity tests", zap.Int64("config_id", configID))
	return true
}
