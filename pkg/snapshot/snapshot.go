// Package snapshot models the engine's configuration registry document.
//
// A snapshot is one immutable JSON document enumerating the data sources the
// engine may ingest from. Snapshots never change in place: adding a data
// source builds a new document that is stored under a new configuration ID.
package snapshot

import (
	"github.com/matchforge/configurator/pkg/errors"
	"github.com/matchforge/configurator/pkg/json"
)

// DataSource is one registry entry inside a snapshot.
type DataSource struct {
	ID   int64  `json:"DSRC_ID"`
	Code string `json:"DSRC_CODE"`
}

type registry struct {
	DataSources []DataSource `json:"CFG_DSRC"`
}

type document struct {
	Config registry `json:"MF_CONFIG"`
}

// Document is an editable in-memory view of one configuration snapshot.
// IDs are assigned by position: the first data source gets 1001, the next
// 1002, and so on. Codes are case-sensitive and unique.
type Document struct {
	root document
}

// idBase offsets data source IDs so they cannot collide with the engine's
// built-in reserved range.
const idBase = 1000

// New returns the empty template document with no data sources.
func New() *Document {
	return &Document{
		root: document{
			Config: registry{DataSources: []DataSource{}},
		},
	}
}

// Parse decodes a stored snapshot document.
func Parse(raw []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(raw, &d.root); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "malformed configuration snapshot document")
	}
	if d.root.Config.DataSources == nil {
		d.root.Config.DataSources = []DataSource{}
	}
	return &d, nil
}

// Marshal encodes the document for storage. Field order is stable, so equal
// documents encode to equal bytes.
func (d *Document) Marshal() ([]byte, error) {
	raw, err := json.Marshal(d.root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "cannot encode configuration snapshot document")
	}
	return raw, nil
}

// DataSources returns the registered codes in definition order.
func (d *Document) DataSources() []string {
	codes := make([]string, 0, len(d.root.Config.DataSources))
	for _, ds := range d.root.Config.DataSources {
		codes = append(codes, ds.Code)
	}
	return codes
}

// Has reports whether code is already registered. Comparison is
// case-sensitive.
func (d *Document) Has(code string) bool {
	for _, ds := range d.root.Config.DataSources {
		if ds.Code == code {
			return true
		}
	}
	return false
}

// Add registers a new data source and returns its assigned ID. Adding a code
// that is already present is a validation error; the document is unchanged.
func (d *Document) Add(code string) (int64, error) {
	if code == "" {
		return 0, errors.New(errors.ErrorTypeValidation, "datasource code must not be empty")
	}
	if d.Has(code) {
		return 0, errors.New(errors.ErrorTypeValidation, "datasource code already registered").
			WithDetail("datasource", code)
	}

	id := int64(idBase + len(d.root.Config.DataSources) + 1)
	d.root.Config.DataSources = append(d.root.Config.DataSources, DataSource{ID: id, Code: code})
	return id, nil
}
