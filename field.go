package xlpivot

// FieldType is the storage type of a model field.
type FieldType string

const (
	FieldChar      FieldType = "char"
	FieldText      FieldType = "text"
	FieldInteger   FieldType = "integer"
	FieldFloat     FieldType = "float"
	FieldMonetary  FieldType = "monetary"
	FieldBoolean   FieldType = "boolean"
	FieldDate      FieldType = "date"
	FieldDatetime  FieldType = "datetime"
	FieldSelection FieldType = "selection"
	FieldMany2One  FieldType = "many2one"
	FieldMany2Many FieldType = "many2many"
	FieldOne2Many  FieldType = "one2many"
)

// SelectionOption is one entry of a selection field's static choice list.
type SelectionOption struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// Field describes one field of a model as returned by the metadata call.
type Field struct {
	Name          string            `json:"name,omitempty" yaml:"name,omitempty"`
	Type          FieldType         `json:"type" yaml:"type"`
	String        string            `json:"string,omitempty" yaml:"string,omitempty"`
	Relation      string            `json:"relation,omitempty" yaml:"relation,omitempty"`
	Selection     []SelectionOption `json:"selection,omitempty" yaml:"selection,omitempty"`
	GroupOperator string            `json:"groupOperator,omitempty" yaml:"groupOperator,omitempty"`
}

// IsDate reports whether the field holds a date or datetime.
func (f Field) IsDate() bool {
	return f.Type == FieldDate || f.Type == FieldDatetime
}

// IsRelational reports whether grouped values are [id, name] pairs.
func (f Field) IsRelational() bool {
	return f.Type == FieldMany2One || f.Type == FieldMany2Many
}

// SelectionLabel returns the display label of a selection value, or the
// value itself when it is not part of the choice list.
func (f Field) SelectionLabel(value string) string {
	for _, opt := range f.Selection {
		if opt.Value == value {
			return opt.Label
		}
	}
	return value
}

// DisplayName returns the human label of the field, falling back to its name.
func (f Field) DisplayName() string {
	if f.String != "" {
		return f.String
	}
	return f.Name
}

// Fields maps field names to their metadata.
type Fields map[string]Field

// Get returns the named field, filling in Name when the metadata omitted it.
func (fs Fields) Get(name string) (Field, bool) {
	f, ok := fs[name]
	if ok && f.Name == "" {
		f.Name = name
	}
	return f, ok
}
