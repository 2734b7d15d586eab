// Package memquery is an in-memory implementation of the pivot query
// executor. It groups and aggregates records held in a Dataset the way a
// grouped-aggregation backend labels its results.
package memquery

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/javajack/xlpivot"
	"gopkg.in/yaml.v3"
)

// DefaultNameField is the record key holding a record's display name.
const DefaultNameField = "name"

// Record is one row of a model. Many2one values are record ids, many2many
// values lists of ids, dates "2006-01-02" strings.
type Record map[string]any

// Model is a named table of records.
type Model struct {
	Label     string         `yaml:"label"`
	NameField string         `yaml:"nameField,omitempty"`
	Fields    xlpivot.Fields `yaml:"fields"`
	Records   []Record       `yaml:"records"`
}

func (m *Model) nameField() string {
	if m.NameField != "" {
		return m.NameField
	}
	return DefaultNameField
}

// Dataset is a set of models queried by pivots.
type Dataset struct {
	Models map[string]*Model `yaml:"models"`

	programs sync.Map // domain expression → compiled *vm.Program
}

// New creates a dataset over models.
func New(models map[string]*Model) *Dataset {
	return &Dataset{Models: models}
}

// Load decodes a YAML dataset.
func Load(r io.Reader) (*Dataset, error) {
	var d Dataset
	if err := yaml.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &d, nil
}

// LoadFile decodes the YAML dataset at path.
func LoadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func (d *Dataset) model(name string) (*Model, error) {
	m, ok := d.Models[name]
	if !ok || m == nil {
		return nil, fmt.Errorf("memquery: unknown model %q", name)
	}
	return m, nil
}

// recordByID finds a record of a model by its "id" key.
func (m *Model) recordByID(id string) (Record, bool) {
	for _, rec := range m.Records {
		if xlpivot.FormatScalar(rec["id"]) == id {
			return rec, true
		}
	}
	return nil, false
}

func (d *Dataset) displayName(model, id string) (string, bool) {
	m, ok := d.Models[model]
	if !ok || m == nil {
		return "", false
	}
	rec, ok := m.recordByID(id)
	if !ok {
		return "", false
	}
	name, ok := rec[m.nameField()]
	if !ok || name == nil {
		return "", false
	}
	return xlpivot.FormatScalar(name), true
}

var (
	_ xlpivot.QueryExecutor = (*Dataset)(nil)
	_ xlpivot.LabelResolver = (*Dataset)(nil)
)
