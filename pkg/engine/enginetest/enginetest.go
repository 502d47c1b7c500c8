// Package enginetest provides in-memory fakes for the engine capability
// interfaces. Tests of the commit protocol use them to script validation
// failures and to assert on the exact engine calls a code path makes.
package enginetest

import (
	"context"
	"sync"

	"github.com/matchforge/configurator/pkg/engine"
	"github.com/matchforge/configurator/pkg/errors"
)

// Store is an in-memory engine.ConfigStore. IDs are allocated sequentially
// from 1, matching the SQL-backed store. Comments are retained so tests can
// assert on audit trails, including for snapshots that never became the
// default.
type Store struct {
	mu         sync.Mutex
	nextID     int64
	documents  map[int64][]byte
	comments   map[int64]string
	defaultID  int64
	hasDefault bool

	// AddConfigErr, when set, fails the next AddConfig call.
	AddConfigErr error
	// SetDefaultErr, when set, fails the next SetDefaultConfigID call.
	SetDefaultErr error
}

var _ engine.ConfigStore = (*Store)(nil)

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		documents: make(map[int64][]byte),
		comments:  make(map[int64]string),
	}
}

func (s *Store) GetDefaultConfigID(_ context.Context) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultID, s.hasDefault, nil
}

func (s *Store) GetConfig(_ context.Context, configID int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	document, ok := s.documents[configID]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "configuration %d not found", configID).
			WithDetail("config_id", configID)
	}
	out := make([]byte, len(document))
	copy(out, document)
	return out, nil
}

func (s *Store) AddConfig(_ context.Context, document []byte, comment string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AddConfigErr != nil {
		err := s.AddConfigErr
		s.AddConfigErr = nil
		return 0, err
	}
	s.nextID++
	stored := make([]byte, len(document))
	copy(stored, document)
	s.documents[s.nextID] = stored
	s.comments[s.nextID] = comment
	return s.nextID, nil
}

func (s *Store) SetDefaultConfigID(_ context.Context, configID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetDefaultErr != nil {
		err := s.SetDefaultErr
		s.SetDefaultErr = nil
		return err
	}
	if _, ok := s.documents[configID]; !ok {
		return errors.Newf(errors.ErrorTypeNotFound, "configuration %d not found", configID).
			WithDetail("config_id", configID)
	}
	s.defaultID = configID
	s.hasDefault = true
	return nil
}

func (s *Store) Close() error { return nil }

// Comment returns the comment recorded for a snapshot.
func (s *Store) Comment(configID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comments[configID]
}

// SnapshotCount returns how many snapshots the store holds.
func (s *Store) SnapshotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.documents)
}

// SearchCall records one Search invocation on a fake engine.
type SearchCall struct {
	Attributes string
	Flags      engine.Flags
}

// Engine is a scriptable fake engine.Engine. Every call is recorded; the
// Fail* fields make the corresponding operation return that error.
type Engine struct {
	mu sync.Mutex

	// Name is the handle name the factory created this engine with.
	Name string

	// SearchResult is returned by successful Search calls. Empty means "{}".
	SearchResult string

	FailInitialize             error
	FailInitializeWithConfigID error
	FailReinitialize           error
	FailSearch                 error
	FailDestroy                error

	InitializeCalls             int
	InitializeWithConfigIDCalls []int64
	ReinitializeCalls           []int64
	SearchCalls                 []SearchCall
	DestroyCalls                int
}

var _ engine.Engine = (*Engine)(nil)

func (e *Engine) Initialize(_ context.Context, _, _ string, _ bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.InitializeCalls++
	return e.FailInitialize
}

func (e *Engine) InitializeWithConfigID(_ context.Context, _, _ string, configID int64, _ bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.InitializeWithConfigIDCalls = append(e.InitializeWithConfigIDCalls, configID)
	return e.FailInitializeWithConfigID
}

func (e *Engine) Reinitialize(_ context.Context, configID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ReinitializeCalls = append(e.ReinitializeCalls, configID)
	return e.FailReinitialize
}

func (e *Engine) Search(_ context.Context, attributesJSON string, flags engine.Flags) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.SearchCalls = append(e.SearchCalls, SearchCall{Attributes: attributesJSON, Flags: flags})
	if e.FailSearch != nil {
		return "", e.FailSearch
	}
	if e.SearchResult == "" {
		return "{}", nil
	}
	return e.SearchResult, nil
}

func (e *Engine) Destroy(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DestroyCalls++
	return e.FailDestroy
}

// Factory is a fake engine.Factory that hands out fresh fake engines and
// remembers every engine it created, in order.
type Factory struct {
	mu sync.Mutex

	// Configure, when set, is applied to each new engine before it is
	// returned. Tests use it to script failures into throwaway engines.
	Configure func(*Engine)

	// NewEngineErr, when set, fails the next NewEngine call.
	NewEngineErr error

	Created []*Engine
}

var _ engine.Factory = (*Factory)(nil)

func (f *Factory) NewEngine(name string) (engine.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NewEngineErr != nil {
		err := f.NewEngineErr
		f.NewEngineErr = nil
		return nil, err
	}
	e := &Engine{Name: name}
	if f.Configure != nil {
		f.Configure(e)
	}
	f.Created = append(f.Created, e)
	return e, nil
}

// LastCreated returns the most recently created engine, or nil.
func (f *Factory) LastCreated() *Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Created) == 0 {
		return nil
	}
	return f.Created[len(f.Created)-1]
}
