package xlpivot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type autofillCase struct {
	direction Direction
	increment int
	want      string
}

func runAutofill(t *testing.T, ev *Evaluator, formula string, cases []autofillCase) {
	t.Helper()
	for _, tt := range cases {
		got, err := ev.NextAutofillValue(context.Background(), formula, tt.direction, tt.increment)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s %s %+d", formula, tt.direction, tt.increment)
	}
}

// The pivot laid out by byCountryAndState:
//
//	            | sale    | draft   | Total
//	            | revenue | revenue | revenue
//	US (10)     |
//	FR (20)     |
//	Total       |
func TestNextAutofillValue_Value(t *testing.T) {
	ev, _, _ := newTestEvaluator(t, byCountryAndState(1))
	runAutofill(t, ev, `=PIVOT("1","revenue","country_id","10","state","sale")`, []autofillCase{
		{DirectionColumn, 1, `=PIVOT("1","revenue","country_id","10","state","draft")`},
		{DirectionColumn, 2, `=PIVOT("1","revenue","country_id","10")`},
		{DirectionColumn, 3, ""},
		{DirectionColumn, -1, `=PIVOT.HEADER("1","country_id","10")`},
		{DirectionColumn, -2, ""},
		{DirectionRow, 1, `=PIVOT("1","revenue","country_id","20","state","sale")`},
		{DirectionRow, 2, `=PIVOT("1","revenue","state","sale")`},
		{DirectionRow, 3, ""},
		{DirectionRow, -1, `=PIVOT.HEADER("1","state","sale","measure","revenue")`},
		{DirectionRow, -2, `=PIVOT.HEADER("1","state","sale")`},
		{DirectionRow, -3, ""},
		{DirectionRow, 0, `=PIVOT("1","revenue","country_id","10","state","sale")`},
	})
}

func TestNextAutofillValue_LastColumn(t *testing.T) {
	ev, _, _ := newTestEvaluator(t, byCountryAndState(1))
	runAutofill(t, ev, `=PIVOT("1","revenue","country_id","20")`, []autofillCase{
		{DirectionColumn, 1, ""},
		{DirectionColumn, -1, `=PIVOT("1","revenue","country_id","20","state","draft")`},
		{DirectionRow, 1, `=PIVOT("1","revenue")`},
	})
}

func TestNextAutofillValue_RowHeader(t *testing.T) {
	ev, _, _ := newTestEvaluator(t, byCountryAndState(1))
	runAutofill(t, ev, `=PIVOT.HEADER("1","country_id","10")`, []autofillCase{
		{DirectionRow, 1, `=PIVOT.HEADER("1","country_id","20")`},
		{DirectionRow, 2, `=PIVOT.HEADER("1")`},
		{DirectionRow, 3, ""},
		{DirectionRow, -1, ""},
		{DirectionColumn, 1, `=PIVOT("1","revenue","country_id","10","state","sale")`},
		{DirectionColumn, 3, `=PIVOT("1","revenue","country_id","10")`},
		{DirectionColumn, 4, ""},
		{DirectionColumn, -1, ""},
	})
	runAutofill(t, ev, `=PIVOT.HEADER("1")`, []autofillCase{
		{DirectionRow, -1, `=PIVOT.HEADER("1","country_id","20")`},
		{DirectionColumn, 2, `=PIVOT("1","revenue","state","draft")`},
	})
}

func TestNextAutofillValue_ColumnHeader(t *testing.T) {
	ev, _, _ := newTestEvaluator(t, byCountryAndState(1))
	runAutofill(t, ev, `=PIVOT.HEADER("1","state","sale")`, []autofillCase{
		{DirectionColumn, 1, `=PIVOT.HEADER("1","state","draft")`},
		{DirectionColumn, 2, `=PIVOT.HEADER("1")`},
		{DirectionColumn, 3, ""},
		{DirectionRow, 1, `=PIVOT.HEADER("1","state","sale","measure","revenue")`},
		{DirectionRow, 2, `=PIVOT("1","revenue","country_id","10","state","sale")`},
		{DirectionRow, 4, `=PIVOT("1","revenue","state","sale")`},
		{DirectionRow, 5, ""},
		{DirectionRow, -1, ""},
	})
	runAutofill(t, ev, `=PIVOT.HEADER("1","state","sale","measure","revenue")`, []autofillCase{
		{DirectionColumn, 1, `=PIVOT.HEADER("1","state","draft","measure","revenue")`},
		{DirectionColumn, 2, `=PIVOT.HEADER("1","measure","revenue")`},
		{DirectionRow, -1, `=PIVOT.HEADER("1","state","sale")`},
		{DirectionRow, 1, `=PIVOT("1","revenue","country_id","10","state","sale")`},
	})
	runAutofill(t, ev, `=PIVOT.HEADER("1","measure","revenue")`, []autofillCase{
		{DirectionColumn, -1, `=PIVOT.HEADER("1","state","draft","measure","revenue")`},
		{DirectionRow, 3, `=PIVOT("1","revenue")`},
	})
}

func TestNextAutofillValue_ColumnHeaderSeveralMeasures(t *testing.T) {
	def := byCountryAndState(1)
	def.Measures = []Measure{{Field: "revenue"}, {Field: "margin"}}
	ev, _, _ := newTestEvaluator(t, def)
	runAutofill(t, ev, `=PIVOT.HEADER("1","state","sale")`, []autofillCase{
		{DirectionColumn, 1, `=PIVOT.HEADER("1","state","draft")`},
		{DirectionColumn, 2, `=PIVOT.HEADER("1")`},
		{DirectionColumn, 3, ""},
		{DirectionRow, 1, `=PIVOT.HEADER("1","state","sale","measure","revenue")`},
	})
	runAutofill(t, ev, `=PIVOT.HEADER("1","state","draft")`, []autofillCase{
		{DirectionColumn, -1, `=PIVOT.HEADER("1","state","sale")`},
		{DirectionColumn, -2, ""},
	})
	runAutofill(t, ev, `=PIVOT.HEADER("1","state","sale","measure","revenue")`, []autofillCase{
		{DirectionColumn, 1, `=PIVOT.HEADER("1","state","sale","measure","margin")`},
		{DirectionColumn, 2, `=PIVOT.HEADER("1","state","draft","measure","revenue")`},
		{DirectionColumn, 5, `=PIVOT.HEADER("1","measure","margin")`},
		{DirectionColumn, 6, ""},
	})
}

func TestNextAutofillValue_Dates(t *testing.T) {
	def := &PivotDefinition{
		ID:          2,
		Model:       "sale.order",
		RowGroupBys: []string{"date_order"},
		Measures:    []Measure{{Field: "revenue"}},
	}
	ev, _, _ := newTestEvaluator(t, def)
	runAutofill(t, ev, `=PIVOT("2","revenue","date_order:month","07/2020")`, []autofillCase{
		{DirectionRow, 6, `=PIVOT("2","revenue","date_order:month","01/2021")`},
		{DirectionRow, -7, `=PIVOT("2","revenue","date_order:month","12/2019")`},
	})
	runAutofill(t, ev, `=PIVOT.HEADER("2","date_order","12/2020")`, []autofillCase{
		{DirectionRow, 1, `=PIVOT.HEADER("2","date_order:month","01/2021")`},
	})
}

func TestNextAutofillValue_Passthrough(t *testing.T) {
	ev, _, _ := newTestEvaluator(t, byCountry(1))
	ctx := context.Background()

	got, err := ev.NextAutofillValue(ctx, `=SUM(A1)`, DirectionRow, 1)
	require.NoError(t, err)
	assert.Equal(t, `=SUM(A1)`, got)

	_, err = ev.NextAutofillValue(ctx, `=PIVOT("1","revenue","state","sale")`, DirectionRow, 1)
	assert.ErrorIs(t, err, ErrInvalidFormula)
}
