// Package engine defines the capability interfaces the configurator needs
// from the record-matching engine and its versioned configuration store.
//
// The engine itself is an opaque external service; the configurator only
// initializes it, points it at configuration snapshots, and runs a trivial
// search to prove a candidate snapshot is usable. The configuration store is
// the engine's own registry of immutable snapshot documents plus a single
// pointer naming the active one.
package engine

import "context"

// Flags select what a search or export operation includes in its response.
type Flags int64

const (
	// FlagIncludeResolved includes entities that resolved to the query.
	FlagIncludeResolved Flags = 1 << iota
	// FlagIncludePossiblySame includes possible-match entities.
	FlagIncludePossiblySame
	// FlagIncludePossiblyRelated includes possibly related entities.
	FlagIncludePossiblyRelated
	// FlagIncludeNameOnly includes name-only matches.
	FlagIncludeNameOnly
	// FlagIncludeDisclosed includes disclosed relationships.
	FlagIncludeDisclosed
	// FlagIncludeSingletons includes entities with a single record.
	FlagIncludeSingletons
	// FlagIncludeEntityName includes the resolved entity name.
	FlagIncludeEntityName
	// FlagIncludeRecordData includes the contributing record payloads.
	FlagIncludeRecordData
	// FlagIncludeRepresentativeFeatures includes representative features.
	FlagIncludeRepresentativeFeatures
)

// ExportDefaultFlags is the engine SDK's default flag set for exports. The
// commit protocol's trivial validation search uses it so the engine walks
// the same code paths a real export would.
const ExportDefaultFlags = FlagIncludeResolved |
	FlagIncludePossiblySame |
	FlagIncludePossiblyRelated |
	FlagIncludeNameOnly |
	FlagIncludeDisclosed |
	FlagIncludeSingletons |
	FlagIncludeEntityName |
	FlagIncludeRecordData |
	FlagIncludeRepresentativeFeatures

// Engine is one handle on the record-matching engine. Instances are not
// safe for concurrent use; the client serializes access.
type Engine interface {
	// Initialize starts the engine against the active configuration.
	Initialize(ctx context.Context, name, settingsJSON string, verbose bool) error

	// InitializeWithConfigID starts the engine against a specific
	// configuration snapshot rather than the active one.
	InitializeWithConfigID(ctx context.Context, name, settingsJSON string, configID int64, verbose bool) error

	// Reinitialize points an initialized engine at a different snapshot.
	Reinitialize(ctx context.Context, configID int64) error

	// Search runs a search-by-attributes query and returns the raw JSON
	// response.
	Search(ctx context.Context, attributesJSON string, flags Flags) (string, error)

	// Destroy releases the engine handle.
	Destroy(ctx context.Context) error
}

// ConfigStore is the engine's versioned registry of configuration
// snapshots. Snapshots are immutable once added; the default config ID is
// the store's single mutable pointer.
type ConfigStore interface {
	// GetDefaultConfigID returns the active configuration ID. The second
	// return is false when no default has ever been set.
	GetDefaultConfigID(ctx context.Context) (int64, bool, error)

	// GetConfig returns the stored snapshot document for an ID.
	GetConfig(ctx context.Context, configID int64) ([]byte, error)

	// AddConfig stores a new snapshot document and returns its assigned ID.
	AddConfig(ctx context.Context, document []byte, comment string) (int64, error)

	// SetDefaultConfigID advances the default pointer.
	SetDefaultConfigID(ctx context.Context, configID int64) error

	// Close releases the store handle.
	Close() error
}

// Factory creates engine handles. The commit protocol asks for a fresh
// throwaway engine per validation so a failed candidate never touches the
// live handle.
type Factory interface {
	NewEngine(name string) (Engine, error)
}
