package memquery_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/javajack/xlpivot"
	"github.com/javajack/xlpivot/memquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ordersDataset() *memquery.Dataset {
	return memquery.New(map[string]*memquery.Model{
		"res.country": {
			Label:  "Country",
			Fields: xlpivot.Fields{"name": {Type: xlpivot.FieldChar}},
			Records: []memquery.Record{
				{"id": 10, "name": "US"},
				{"id": 20, "name": "FR"},
			},
		},
		"sale.order": {
			Label: "Sales Order",
			Fields: xlpivot.Fields{
				"country_id": {Type: xlpivot.FieldMany2One, Relation: "res.country", String: "Country"},
				"state":      {Type: xlpivot.FieldSelection, Selection: []xlpivot.SelectionOption{{Value: "draft", Label: "Quotation"}, {Value: "sale", Label: "Sales Order"}}},
				"date_order": {Type: xlpivot.FieldDate},
				"revenue":    {Type: xlpivot.FieldFloat, String: "Revenue"},
			},
			Records: []memquery.Record{
				{"id": 1, "country_id": 10, "state": "sale", "date_order": "2020-07-15", "revenue": 100.0},
				{"id": 2, "country_id": 10, "state": "draft", "date_order": "2020-08-02", "revenue": 50.0},
				{"id": 3, "country_id": 20, "state": "sale", "date_order": "2021-02-20", "revenue": 75.0},
			},
		},
	})
}

func newEvaluator(t *testing.T, defs ...*xlpivot.PivotDefinition) (*xlpivot.Evaluator, *xlpivot.PivotStore, *xlpivot.FilterStore) {
	t.Helper()
	clock := xlpivot.WithClock(func() time.Time { return time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC) })
	store, err := xlpivot.NewPivotStore(ordersDataset(), clock)
	require.NoError(t, err)
	for _, def := range defs {
		require.NoError(t, store.Register(def))
	}
	filters := xlpivot.NewFilterStore(store, clock)
	return xlpivot.NewEvaluator(store, filters), store, filters
}

func revenueByCountry() *xlpivot.PivotDefinition {
	return &xlpivot.PivotDefinition{
		ID:          1,
		Model:       "sale.order",
		RowGroupBys: []string{"country_id"},
		ColGroupBys: []string{"date_order:year"},
		Measures:    []xlpivot.Measure{{Field: "revenue"}},
	}
}

func evaluate(t *testing.T, ev *xlpivot.Evaluator, formula string) any {
	t.Helper()
	v, err := ev.Evaluate(context.Background(), formula)
	require.NoError(t, err, formula)
	return v
}

func TestEndToEnd(t *testing.T) {
	ev, store, _ := newEvaluator(t, revenueByCountry())

	assert.Equal(t, 150.0, evaluate(t, ev, `=PIVOT("1","revenue","country_id","10")`))
	assert.Equal(t, 225.0, evaluate(t, ev, `=PIVOT("1","revenue")`))
	assert.Equal(t, 150.0, evaluate(t, ev, `=PIVOT("1","revenue","date_order:year","2020","country_id","10")`))
	assert.Equal(t, "", evaluate(t, ev, `=PIVOT("1","revenue","date_order:year","2021","country_id","10")`))
	assert.Equal(t, 75.0, evaluate(t, ev, `=PIVOT("1","revenue","date_order:year","2021")`))
	assert.Equal(t, "FR", evaluate(t, ev, `=PIVOT.HEADER("1","country_id","20")`))
	assert.Equal(t, "2021", evaluate(t, ev, `=PIVOT.HEADER("1","date_order:year","2021")`))

	c, err := store.Cache(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "20"}, c.GetFieldValues("country_id"))
	assert.Equal(t, []string{"2020", "2021"}, c.GetFieldValues("date_order:year"))
}

func TestEndToEnd_InsertAndEvaluate(t *testing.T) {
	ev, store, _ := newEvaluator(t, revenueByCountry())
	ctx := context.Background()

	c, err := store.Cache(ctx, 1)
	require.NoError(t, err)
	doc := xlpivot.NewDocument()
	area := xlpivot.InsertPivot(doc, "Report", xlpivot.CellRef{}, c)
	assert.Equal(t, "Report!A1:D5", area.String())

	require.NoError(t, ev.EvaluateDocument(ctx, doc))
	sheet, _ := doc.LookupSheet("Report")
	total, ok := sheet.Get(xlpivot.CellRef{Row: 4, Col: 3})
	require.True(t, ok)
	assert.Equal(t, 225.0, total.Value)
	header, _ := sheet.Get(xlpivot.CellRef{Row: 2, Col: 0})
	assert.Equal(t, "US", header.Value)
	assert.Empty(t, xlpivot.Validate(doc, store.Caches()))
}

func TestEndToEnd_Filters(t *testing.T) {
	ev, _, filters := newEvaluator(t, revenueByCountry())

	country, res := filters.Add(xlpivot.GlobalFilter{
		Label:     "Country",
		Type:      xlpivot.FilterRelation,
		ModelName: "res.country",
		Fields:    map[int]xlpivot.FieldBinding{1: {Field: "country_id"}},
	})
	require.True(t, res.IsAccepted())
	_, res = filters.Add(xlpivot.GlobalFilter{
		Label:  "Period",
		Type:   xlpivot.FilterDate,
		Value:  xlpivot.DateValue{Year: xlpivot.YearLast},
		Fields: map[int]xlpivot.FieldBinding{1: {Field: "date_order"}},
	})
	require.True(t, res.IsAccepted())

	assert.Equal(t, 150.0, evaluate(t, ev, `=PIVOT("1","revenue")`))

	require.True(t, filters.SetValue(country, []int{20}).IsAccepted())
	assert.Equal(t, "", evaluate(t, ev, `=PIVOT("1","revenue")`), "nothing sold in FR during 2020")
	assert.Equal(t, "FR", evaluate(t, ev, `=FILTER.VALUE("Country")`))
	assert.Equal(t, "2020", evaluate(t, ev, `=FILTER.VALUE("Period")`))
}

func TestEndToEnd_FilterOrderDoesNotMatter(t *testing.T) {
	country := xlpivot.GlobalFilter{
		Label:  "Country",
		Type:   xlpivot.FilterRelation,
		Value:  []int{10},
		Fields: map[int]xlpivot.FieldBinding{1: {Field: "country_id"}},
	}
	state := xlpivot.GlobalFilter{
		Label:  "State",
		Type:   xlpivot.FilterText,
		Value:  "sale",
		Fields: map[int]xlpivot.FieldBinding{1: {Field: "state"}},
	}

	results := make([]any, 0, 2)
	for _, order := range [][]xlpivot.GlobalFilter{{country, state}, {state, country}} {
		ev, _, filters := newEvaluator(t, revenueByCountry())
		for _, f := range order {
			_, res := filters.Add(f)
			require.True(t, res.IsAccepted())
		}
		results = append(results, evaluate(t, ev, `=PIVOT("1","revenue")`))
	}
	assert.Equal(t, 100.0, results[0])
	assert.Equal(t, results[0], results[1])
}

func TestLoadFile(t *testing.T) {
	_, err := memquery.LoadFile("does-not-exist.yaml")
	assert.Error(t, err)

	d, err := memquery.Load(strings.NewReader("models: {}"))
	require.NoError(t, err)
	assert.Empty(t, d.Models)
}
