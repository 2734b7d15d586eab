package xlpivot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var filterNow = time.Date(2024, time.May, 10, 9, 0, 0, 0, time.UTC)

func newTestFilterStore(t *testing.T, opts ...Option) (*FilterStore, *PivotStore) {
	t.Helper()
	opts = append(opts, WithClock(func() time.Time { return filterNow }))
	base := byCountry(1)
	base.Domain = Cond("state", "=", "sale")
	pivots := newTestStoreWith(t, newFakeExecutor(), opts, base, byCountryAndState(2))
	return NewFilterStore(pivots, opts...), pivots
}

func TestFilterStore_Add(t *testing.T) {
	filters, _ := newTestFilterStore(t)

	id, res := filters.Add(GlobalFilter{Label: "Customer", Type: FilterText, DefaultValue: "acme"})
	require.True(t, res.IsAccepted())
	assert.NotEmpty(t, id)

	f, ok := filters.Filter(id)
	require.True(t, ok)
	assert.Equal(t, "acme", f.Value, "value defaults to the default value")

	_, res = filters.Add(GlobalFilter{Label: "Customer", Type: FilterText})
	assert.Equal(t, Result{Status: StatusCancelled, Reason: ReasonDuplicatedFilterLabel}, res)

	_, res = filters.Add(GlobalFilter{Label: "Odd", Type: "color"})
	assert.Equal(t, ReasonInvalidFilter, res.Reason)
	_, res = filters.Add(GlobalFilter{Label: " ", Type: FilterText})
	assert.Equal(t, ReasonInvalidFilter, res.Reason)

	id2, res := filters.Add(GlobalFilter{ID: "fixed", Label: "Period", Type: FilterDate})
	require.True(t, res.IsAccepted())
	assert.Equal(t, "fixed", id2)
	assert.Len(t, filters.Filters(), 2)
}

func TestFilterStore_NotFound(t *testing.T) {
	filters, _ := newTestFilterStore(t)
	want := Result{Status: StatusCancelled, Reason: ReasonFilterNotFound}

	assert.Equal(t, want, filters.Edit("missing", GlobalFilter{Label: "X", Type: FilterText}))
	assert.Equal(t, want, filters.Remove("missing"))
	assert.Equal(t, want, filters.SetValue("missing", "x"))
	_, ok := filters.Filter("missing")
	assert.False(t, ok)
}

func TestFilterStore_EditRejectsDuplicateLabel(t *testing.T) {
	filters, _ := newTestFilterStore(t)
	a, _ := filters.Add(GlobalFilter{Label: "A", Type: FilterText})
	_, _ = filters.Add(GlobalFilter{Label: "B", Type: FilterText})

	res := filters.Edit(a, GlobalFilter{Label: "B", Type: FilterText})
	assert.Equal(t, ReasonDuplicatedFilterLabel, res.Reason)

	res = filters.Edit(a, GlobalFilter{Label: "A", Type: FilterText, Value: "new"})
	assert.True(t, res.IsAccepted(), "keeping its own label is fine")
}

func TestFilterStore_ComputedDomains(t *testing.T) {
	filters, pivots := newTestFilterStore(t)

	id, res := filters.Add(GlobalFilter{
		Label:  "Customer",
		Type:   FilterText,
		Value:  "acme",
		Fields: map[int]FieldBinding{1: {Field: "name"}},
	})
	require.True(t, res.IsAccepted())

	d, err := pivots.Domain(1)
	require.NoError(t, err)
	assert.Equal(t, AndDomains(Cond("state", "=", "sale"), Cond("name", "ilike", "acme")), d)

	d, err = pivots.Domain(2)
	require.NoError(t, err)
	assert.Empty(t, d, "unbound pivots keep their base domain")

	_, res = filters.Add(GlobalFilter{
		Label:  "Country",
		Type:   FilterRelation,
		Value:  []int{10, 20},
		Fields: map[int]FieldBinding{1: {Field: "country_id"}, 2: {Field: "country_id"}},
	})
	require.True(t, res.IsAccepted())

	d, err = pivots.Domain(2)
	require.NoError(t, err)
	assert.Equal(t, Cond("country_id", "in", []any{10, 20}), d)

	require.True(t, filters.SetValue(id, "").IsAccepted())
	d, err = pivots.Domain(1)
	require.NoError(t, err)
	assert.Equal(t, AndDomains(Cond("state", "=", "sale"), Cond("country_id", "in", []any{10, 20})), d)

	require.True(t, filters.Remove(id).IsAccepted())
	assert.Len(t, filters.Filters(), 1)
}

func TestFilterStore_ValueChangeDropsCache(t *testing.T) {
	filters, pivots := newTestFilterStore(t)
	id, _ := filters.Add(GlobalFilter{Label: "Customer", Type: FilterText, Fields: map[int]FieldBinding{1: {Field: "name"}}})

	_, err := pivots.Cache(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, pivots.IsLoaded(1))

	filters.SetValue(id, "acme")
	assert.False(t, pivots.IsLoaded(1))
}

func TestFilterDomain(t *testing.T) {
	tests := []struct {
		name    string
		filter  GlobalFilter
		binding FieldBinding
		want    Domain
	}{
		{"empty text", GlobalFilter{Type: FilterText}, FieldBinding{Field: "name"}, nil},
		{"text", GlobalFilter{Type: FilterText, Value: "acme"}, FieldBinding{Field: "name"}, Cond("name", "ilike", "acme")},
		{"empty relation", GlobalFilter{Type: FilterRelation, Value: []int{}}, FieldBinding{Field: "partner_id"}, nil},
		{"relation from decoded list", GlobalFilter{Type: FilterRelation, Value: []any{1, "2"}}, FieldBinding{Field: "partner_id"}, Cond("partner_id", "in", []any{1, 2})},
		{"empty date", GlobalFilter{Type: FilterDate, Value: DateValue{}}, FieldBinding{Field: "date_order"}, nil},
		{
			"quarter",
			GlobalFilter{Type: FilterDate, Value: DateValue{Year: "2020", Period: "third_quarter"}},
			FieldBinding{Field: "date_order"},
			AndDomains(Cond("date_order", ">=", "2020-07-01"), Cond("date_order", "<=", "2020-09-30")),
		},
		{
			"datetime month",
			GlobalFilter{Type: FilterDate, Value: map[string]any{"year": 2024, "period": "february"}},
			FieldBinding{Field: "create_date", Type: FieldDatetime},
			AndDomains(Cond("create_date", ">=", "2024-02-01 00:00:00"), Cond("create_date", "<=", "2024-02-29 23:59:59")),
		},
		{
			"relative year",
			GlobalFilter{Type: FilterDate, Value: &DateValue{Year: YearLast}},
			FieldBinding{Field: "date_order"},
			AndDomains(Cond("date_order", ">=", "2023-01-01"), Cond("date_order", "<=", "2023-12-31")),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FilterDomain(tt.filter, tt.binding, filterNow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FilterDomain(GlobalFilter{Type: FilterRelation, Value: []any{"x"}}, FieldBinding{Field: "partner_id"}, filterNow)
	assert.Error(t, err)
	_, err = FilterDomain(GlobalFilter{Type: FilterDate, Value: 12}, FieldBinding{Field: "date_order"}, filterNow)
	assert.Error(t, err)
}

func TestFilterStore_DisplayValue(t *testing.T) {
	filters, _ := newTestFilterStore(t)
	ctx := context.Background()
	filters.Add(GlobalFilter{Label: "Customer", Type: FilterText, Value: "acme"})
	filters.Add(GlobalFilter{Label: "Country", Type: FilterRelation, Value: []int{10, 99}, ModelName: "res.country"})
	filters.Add(GlobalFilter{Label: "Period", Type: FilterDate, Value: DateValue{Period: "first_quarter"}})
	filters.Add(GlobalFilter{Label: "Empty", Type: FilterDate})

	for label, want := range map[string]string{
		"Customer": "acme",
		"Country":  "US, 99",
		"Period":   "Q1 2024",
		"Empty":    "",
	} {
		got, ok := filters.DisplayValue(ctx, label)
		require.True(t, ok, label)
		assert.Equal(t, want, got, label)
	}
	_, ok := filters.DisplayValue(ctx, "Nope")
	assert.False(t, ok)
}

func TestEvaluate_FilterValue(t *testing.T) {
	filters, pivots := newTestFilterStore(t)
	filters.Add(GlobalFilter{Label: "Customer", Type: FilterText, Value: "acme"})
	ev := NewEvaluator(pivots, filters)

	got, err := ev.Evaluate(context.Background(), `=FILTER.VALUE("Customer")`)
	require.NoError(t, err)
	assert.Equal(t, "acme", got)

	_, err = ev.Evaluate(context.Background(), `=FILTER.VALUE("Nope")`)
	assert.ErrorIs(t, err, ErrInvalidFormula)
}

func TestFilterStore_RenameRewritesDocument(t *testing.T) {
	doc := NewDocument()
	sheet := doc.Sheet("Sheet1")
	sheet.Set(CellRef{Row: 0, Col: 0}, `=FILTER.VALUE("Country")&" sales"`)
	sheet.Set(CellRef{Row: 1, Col: 0}, `=filter.value( "Country" )`)
	sheet.Set(CellRef{Row: 2, Col: 0}, `=FILTER.VALUE("Other")`)
	sheet.Set(CellRef{Row: 3, Col: 0}, `FILTER.VALUE("Country")`)

	filters, _ := newTestFilterStore(t, WithDocument(doc))
	id, _ := filters.Add(GlobalFilter{Label: "Country", Type: FilterRelation})

	res := filters.Edit(id, GlobalFilter{Label: `Nation "A"`, Type: FilterRelation})
	require.True(t, res.IsAccepted())

	assert.Equal(t, `=FILTER.VALUE("Nation ""A""")&" sales"`, sheet.Content(CellRef{Row: 0, Col: 0}))
	assert.Equal(t, `=FILTER.VALUE("Nation ""A""")`, sheet.Content(CellRef{Row: 1, Col: 0}))
	assert.Equal(t, `=FILTER.VALUE("Other")`, sheet.Content(CellRef{Row: 2, Col: 0}))
	assert.Equal(t, `FILTER.VALUE("Country")`, sheet.Content(CellRef{Row: 3, Col: 0}), "text cells are not formulas")

	assert.Equal(t, 2, RenameFilterReferences(doc, `Nation "A"`, "Country"))
	assert.Equal(t, `=FILTER.VALUE("Country")`, sheet.Content(CellRef{Row: 1, Col: 0}))
}
