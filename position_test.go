package xlpivot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func positionCaches(t *testing.T) Caches {
	t.Helper()
	return Caches{1: buildTestCache(t, byCountryAndState(1), salesRows())}
}

func TestMakeRelative(t *testing.T) {
	caches := positionCaches(t)
	tests := []struct {
		name    string
		formula string
		want    string
	}{
		{
			"many2one value",
			`=PIVOT("1","revenue","country_id","20","state","sale")`,
			`=PIVOT("1","revenue","country_id",PIVOT.POSITION("1","country_id",2),"state","sale")`,
		},
		{
			"header",
			`=PIVOT.HEADER("1","country_id","10")`,
			`=PIVOT.HEADER("1","country_id",PIVOT.POSITION("1","country_id",1))`,
		},
		{
			"nested in arithmetic",
			`=1+PIVOT("1","revenue","country_id","10")`,
			`=1+PIVOT("1","revenue","country_id",PIVOT.POSITION("1","country_id",1))`,
		},
		{"selection untouched", `=PIVOT("1","revenue","state","sale")`, `=PIVOT("1","revenue","state","sale")`},
		{"unknown value untouched", `=PIVOT("1","revenue","country_id","99")`, `=PIVOT("1","revenue","country_id","99")`},
		{"unknown pivot untouched", `=PIVOT("7","revenue","country_id","10")`, `=PIVOT("7","revenue","country_id","10")`},
		{"no pivot call", `=SUM( A1 , 2 )`, `=SUM( A1 , 2 )`},
		{"literal text", `PIVOT("1")`, `PIVOT("1")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MakeRelative(tt.formula, caches)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMakeRelative_Idempotent(t *testing.T) {
	caches := positionCaches(t)
	once, err := MakeRelative(`=PIVOT("1","revenue","country_id","20")`, caches)
	require.NoError(t, err)
	twice, err := MakeRelative(once, caches)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestMakeAbsolute(t *testing.T) {
	caches := positionCaches(t)
	tests := []struct {
		name    string
		formula string
		want    string
	}{
		{
			"resolves position",
			`=PIVOT("1","revenue","country_id",PIVOT.POSITION("1","country_id",2))`,
			`=PIVOT("1","revenue","country_id","20")`,
		},
		{
			"past the end",
			`=PIVOT("1","revenue","country_id",PIVOT.POSITION("1","country_id",5))`,
			`=PIVOT("1","revenue","country_id","#IDNOTFOUND")`,
		},
		{
			"zero position",
			`=PIVOT.HEADER("1","country_id",PIVOT.POSITION("1","country_id",0))`,
			`=PIVOT.HEADER("1","country_id","#IDNOTFOUND")`,
		},
		{
			"unknown pivot",
			`=PIVOT("7","revenue","country_id",PIVOT.POSITION("7","country_id",1))`,
			`=PIVOT("7","revenue","country_id","#IDNOTFOUND")`,
		},
		{"already absolute", `=PIVOT("1","revenue","country_id","10")`, `=PIVOT("1","revenue","country_id","10")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MakeAbsolute(tt.formula, caches)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRelativeAbsolute_RoundTrip(t *testing.T) {
	caches := positionCaches(t)
	for _, formula := range []string{
		`=PIVOT("1","revenue","country_id","10","state","draft")`,
		`=PIVOT.HEADER("1","country_id","20")`,
		`=PIVOT("1","revenue")`,
	} {
		relative, err := MakeRelative(formula, caches)
		require.NoError(t, err)
		absolute, err := MakeAbsolute(relative, caches)
		require.NoError(t, err)
		assert.Equal(t, formula, absolute)
	}
}

func TestRewrite_CanonicalOutput(t *testing.T) {
	caches := positionCaches(t)

	relative, err := MakeRelative(`=SUM(PIVOT("1", "revenue", "country_id", 10), 1)`, caches)
	require.NoError(t, err)
	assert.Equal(t, `=SUM(PIVOT("1","revenue","country_id",PIVOT.POSITION("1","country_id",1)),1)`, relative)

	absolute, err := MakeAbsolute(relative, caches)
	require.NoError(t, err)
	assert.Equal(t, `=SUM(PIVOT("1","revenue","country_id","10"),1)`, absolute)

	again, err := MakeRelative(absolute, caches)
	require.NoError(t, err)
	assert.Equal(t, relative, again, "canonical formulas round trip")

	untouched := `=SUM( PIVOT("1", "revenue", "state", "sale") , 1)`
	got, err := MakeRelative(untouched, caches)
	require.NoError(t, err)
	assert.Equal(t, untouched, got, "nothing to rewrite keeps the original text")
}

func TestMakeRelative_ParseError(t *testing.T) {
	got, err := MakeRelative(`=PIVOT("1"`, positionCaches(t))
	assert.ErrorIs(t, err, ErrInvalidFormula)
	assert.Equal(t, `=PIVOT("1"`, got)
}
