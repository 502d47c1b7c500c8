// Package configurator provides an HTTP facade over the MatchForge
// record-matching engine's versioned configuration store.
//
// The engine keeps its configuration as immutable JSON snapshots in a SQL
// store, with a single pointer naming the active one. The configurator lets
// operators inspect and extend that configuration over HTTP without touching
// the store directly: list the registered data sources, register new ones,
// and have every change validated against a throwaway engine instance before
// it becomes the active configuration.
//
// # Architecture
//
// The service is built around three guarantees:
//
// 1. Immutable snapshots: a change never edits a stored configuration. The
// active snapshot is loaded, modified in memory, and stored as a new snapshot
// with a comment recording its lineage.
//
// 2. Validation before activation: a candidate snapshot must initialize a
// fresh engine instance and answer a probe search before the default pointer
// advances to it. A candidate that fails stays in the store as an orphan and
// the previous configuration remains active.
//
// 3. Serialized commits: all mutation funnels through one mutex-guarded
// commit path, so concurrent registrations cannot interleave their
// load-modify-store cycles.
//
// # Quick Start
//
// Run the service against an internal SQLite store and a local engine:
//
//	export MATCHFORGE_INTERNAL_DATABASE=/var/opt/matchforge/configurator.db
//	export MATCHFORGE_ENGINE_URL=http://localhost:8250
//	configurator service
//
// Then register data sources and read them back:
//
//	curl -X POST http://localhost:8253/datasources \
//	    -H 'Content-Type: application/json' \
//	    -d '["CUSTOMER", "WATCHLIST"]'
//	curl http://localhost:8253/datasources
//
// # Key Packages
//
//	pkg/config        - Settings resolution from flags and environment
//	pkg/dburl         - Database URL parsing and dialect URL synthesis
//	pkg/engine        - Engine and configuration store contracts
//	pkg/engine/remote - HTTP engine client and factory
//	pkg/engine/sqlstore - SQL-backed configuration store
//	pkg/snapshot      - Configuration snapshot document model
//	pkg/errors        - Structured error handling
//	pkg/logger        - Structured logging
//	pkg/metrics       - Prometheus metrics
//	pkg/observability - OpenTelemetry tracing
//	internal/client   - Serialized commit protocol over store and engine
//	internal/bootstrap - First-run store initialization
//	internal/httpd    - HTTP server, handlers, and middleware
//	internal/notify   - Kafka activation event publisher
//
// # Configuration
//
// Settings resolve from command-line flags, MATCHFORGE_* environment
// variables, and an optional YAML file, in that order of precedence. The
// store URL accepts sqlite3, postgresql, and mysql schemes; setting
// MATCHFORGE_INTERNAL_DATABASE overrides it with a SQLite file, optionally
// seeded from MATCHFORGE_SEED_DATABASE_PATH. Print the resolved settings
// with secrets redacted:
//
//	configurator config
//
// # HTTP API
//
// The service listens on port 8253 by default:
//
//	GET  /datasources - registered data source codes, sorted
//	POST /datasources - register codes from a JSON array, returns 201
//	GET  /health      - liveness, active configuration ID, process stats
//	GET  /metrics     - Prometheus metrics
//
// Activation events are published to Kafka when
// MATCHFORGE_KAFKA_BOOTSTRAP_SERVERS is set.
package configurator
