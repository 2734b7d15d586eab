package xlpivot

import "context"

// ReadGroupRequest is one grouped-aggregation query.
type ReadGroupRequest struct {
	Model   string
	Domain  Domain
	Context map[string]any
	// Measures are "field:operator" specs.
	Measures []string
	// GroupBys are "field[:interval]" specs; the result has one row per
	// distinct combination of all of them.
	GroupBys []string
}

// GroupRow is one row of a grouped-aggregation result: each group-by spec
// maps to its raw grouped value, each measure field to its aggregated value,
// and CountMeasure to the number of records in the group.
type GroupRow map[string]any

// OrderRequest asks for the natural order of candidate values of a field.
type OrderRequest struct {
	Model   string
	Field   string
	Values  []string
	Context map[string]any
}

// QueryExecutor is the data source a PivotStore builds caches from.
type QueryExecutor interface {
	ReadGroup(ctx context.Context, req ReadGroupRequest) ([]GroupRow, error)
	FieldMetadata(ctx context.Context, model string) (Fields, error)
	DisplayName(ctx context.Context, model string) (string, error)
	ValueOrderer
}

// ValueOrderer returns candidate values in the order the data source sorts
// them. Values it does not return keep their relative input order after the
// returned ones.
type ValueOrderer interface {
	OrderValues(ctx context.Context, req OrderRequest) ([]string, error)
}

// LabelResolver is implemented by executors able to look up display names of
// relational values after the cache was built.
type LabelResolver interface {
	DisplayNames(ctx context.Context, model string, ids []string) (map[string]string, error)
}
