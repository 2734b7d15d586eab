package xlpivot

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeExecutor serves fixed grouped rows for one model and records the
// requests it receives.
type fakeExecutor struct {
	mu       sync.Mutex
	fields   Fields
	rows     []GroupRow
	names    map[string]map[string]string
	calls    int
	requests []ReadGroupRequest
	// hook runs at the start of every ReadGroup with the 1-based call number.
	hook func(call int, req ReadGroupRequest)
	err  error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		fields: salesFields(),
		rows:   salesRows(),
		names: map[string]map[string]string{
			"res.country": {"10": "US", "20": "FR", "30": "Belgium"},
		},
	}
}

func (f *fakeExecutor) ReadGroup(ctx context.Context, req ReadGroupRequest) ([]GroupRow, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.requests = append(f.requests, req)
	hook, err := f.hook, f.err
	rows := f.rows
	f.mu.Unlock()
	if hook != nil {
		hook(call, req)
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (f *fakeExecutor) FieldMetadata(ctx context.Context, model string) (Fields, error) {
	if model != "sale.order" {
		return nil, fmt.Errorf("unknown model %q", model)
	}
	return f.fields, nil
}

func (f *fakeExecutor) DisplayName(ctx context.Context, model string) (string, error) {
	return "Sales Order", nil
}

func (f *fakeExecutor) OrderValues(ctx context.Context, req OrderRequest) ([]string, error) {
	return req.Values, nil
}

func (f *fakeExecutor) DisplayNames(ctx context.Context, model string, ids []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, id := range ids {
		if name, ok := f.names[model][id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeExecutor) lastRequest() ReadGroupRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func salesFields() Fields {
	return Fields{
		"name":       {Type: FieldChar, String: "Reference"},
		"country_id": {Type: FieldMany2One, Relation: "res.country", String: "Country"},
		"state": {Type: FieldSelection, String: "Status", Selection: []SelectionOption{
			{Value: "draft", Label: "Quotation"},
			{Value: "sale", Label: "Sales Order"},
		}},
		"date_order": {Type: FieldDate, String: "Order Date"},
		"revenue":    {Type: FieldFloat, String: "Revenue"},
		"margin":     {Type: FieldFloat, String: "Margin", GroupOperator: "avg"},
	}
}

// salesRows are three orders: two in country 10 (100 + 50), one in
// country 20 (75).
func salesRows() []GroupRow {
	return []GroupRow{
		{"country_id": []any{10, "US"}, "state": "sale", "date_order:month": "July 2020", "revenue": 100.0, "margin": 20.0, CountMeasure: 1},
		{"country_id": []any{10, "US"}, "state": "draft", "date_order:month": "August 2020", "revenue": 50.0, "margin": 10.0, CountMeasure: 1},
		{"country_id": []any{20, "FR"}, "state": "sale", "date_order:month": "August 2020", "revenue": 75.0, "margin": 30.0, CountMeasure: 1},
	}
}

// byCountry groups by country only.
func byCountry(id int) *PivotDefinition {
	return &PivotDefinition{
		ID:          id,
		Model:       "sale.order",
		RowGroupBys: []string{"country_id"},
		Measures:    []Measure{{Field: "revenue"}, {Field: CountMeasure}},
	}
}

// byCountryAndState has countries as rows and states as columns.
func byCountryAndState(id int) *PivotDefinition {
	return &PivotDefinition{
		ID:          id,
		Model:       "sale.order",
		RowGroupBys: []string{"country_id"},
		ColGroupBys: []string{"state"},
		Measures:    []Measure{{Field: "revenue"}},
	}
}

func buildTestCache(t *testing.T, def *PivotDefinition, rows []GroupRow) *PivotCache {
	t.Helper()
	c, err := BuildCache(context.Background(), rows, salesFields(), "Sales Order", def, nil)
	require.NoError(t, err)
	return c
}

func newTestStore(t *testing.T, exec QueryExecutor, defs ...*PivotDefinition) *PivotStore {
	t.Helper()
	return newTestStoreWith(t, exec, nil, defs...)
}

func newTestStoreWith(t *testing.T, exec QueryExecutor, opts []Option, defs ...*PivotDefinition) *PivotStore {
	t.Helper()
	s, err := NewPivotStore(exec, opts...)
	require.NoError(t, err)
	for _, def := range defs {
		require.NoError(t, s.Register(def))
	}
	return s
}
