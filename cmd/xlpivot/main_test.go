package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/javajack/xlpivot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

const testConfig = `
log:
  level: error
dataset:
  models:
    res.country:
      fields:
        name: {type: char}
      records:
        - {id: 10, name: US}
        - {id: 20, name: FR}
    sale.order:
      label: Sales Order
      fields:
        country_id: {type: many2one, relation: res.country, string: Country}
        revenue: {type: float, string: Revenue}
      records:
        - {id: 1, country_id: 10, revenue: 100}
        - {id: 2, country_id: 10, revenue: 50}
        - {id: 3, country_id: 20, revenue: 75}
pivots:
  - id: 1
    model: sale.order
    rowGroupBys: [country_id]
    measures:
      - {field: revenue}
filters:
  - label: Country
    type: relation
    modelName: res.country
    fields:
      1: {field: country_id}
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xlpivot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestEval(t *testing.T) {
	config := writeConfig(t)
	out, err := run(t, "-c", config, "eval",
		`=PIVOT("1","revenue","country_id","10")`,
		`=PIVOT.HEADER("1","country_id","20")`,
		`=PIVOT("1","revenue")`,
	)
	require.NoError(t, err)
	assert.Equal(t, "150\nFR\n225\n", out)

	_, err = run(t, "-c", config, "eval")
	assert.Error(t, err)
	_, err = run(t, "-c", config, "eval", `=PIVOT("9","revenue")`)
	assert.ErrorIs(t, err, xlpivot.ErrUnknownPivot)
}

func TestAutofill(t *testing.T) {
	config := writeConfig(t)
	out, err := run(t, "-c", config, "autofill", "-d", "row", "-n", "1", `=PIVOT.HEADER("1","country_id","10")`)
	require.NoError(t, err)
	assert.Equal(t, `=PIVOT.HEADER("1","country_id","20")`+"\n", out)

	_, err = run(t, "-c", config, "autofill", "-d", "diagonal", `=PIVOT("1","revenue")`)
	assert.ErrorContains(t, err, "unknown direction")
}

func TestDescribe(t *testing.T) {
	out, err := run(t, "-c", writeConfig(t), "describe", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Pivot 1: Sales Order (sale.order)")

	_, err = run(t, "-c", writeConfig(t), "describe", "one")
	assert.ErrorContains(t, err, `invalid pivot id "one"`)
}

func TestInsertCheckAndEvalWorkbook(t *testing.T) {
	config := writeConfig(t)
	dir := t.TempDir()
	pivots := filepath.Join(dir, "pivots.xlsx")

	out, err := run(t, "-c", config, "insert", "-o", pivots)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+pivots)

	out, err = run(t, "-c", config, "check", pivots)
	require.NoError(t, err)
	assert.Contains(t, out, "0 issue(s), no errors")
	assert.NotContains(t, out, "not referenced")

	template := filepath.Join(dir, "template.xlsx")
	_, err = run(t, "-c", config, "template", "export", pivots, template)
	require.NoError(t, err)
	exported, err := xlpivot.OpenWorkbook(template)
	require.NoError(t, err)
	sheet, ok := exported.LookupSheet("Pivot #1")
	require.True(t, ok)
	assert.True(t, strings.Contains(sheet.Content(xlpivot.CellRef{Row: 1, Col: 0}), "PIVOT.POSITION"))

	values := filepath.Join(dir, "values.xlsx")
	_, err = run(t, "-c", config, "eval", "-i", template, "-o", values)
	require.NoError(t, err)
	doc, err := xlpivot.OpenWorkbook(values)
	require.NoError(t, err)
	sheet, _ = doc.LookupSheet("Pivot #1")
	assert.Equal(t, "US", sheet.Content(xlpivot.CellRef{Row: 1, Col: 0}))
	assert.Equal(t, "225", sheet.Content(xlpivot.CellRef{Row: 3, Col: 1}))
}

func TestCheckReportsErrors(t *testing.T) {
	config := writeConfig(t)
	input := filepath.Join(t.TempDir(), "bad.xlsx")
	doc := xlpivot.NewDocument()
	doc.Sheet("Sheet1").Set(xlpivot.CellRef{}, `=PIVOT("1","nope")`)
	require.NoError(t, xlpivot.SaveWorkbook(doc, input))

	out, err := run(t, "-c", config, "check", input)
	assert.ErrorContains(t, err, "1 error(s) found")
	assert.Contains(t, out, "[ERROR] Sheet1!A1")
}

func TestCheckReportsUnreferencedCells(t *testing.T) {
	config := writeConfig(t)
	input := filepath.Join(t.TempDir(), "partial.xlsx")
	doc := xlpivot.NewDocument()
	doc.Sheet("Sheet1").Set(xlpivot.CellRef{}, `=PIVOT("1","revenue")`)
	require.NoError(t, xlpivot.SaveWorkbook(doc, input))

	out, err := run(t, "-c", config, "check", input)
	require.NoError(t, err)
	// US and FR values; the measure header and the US, FR and Total row headers.
	assert.Contains(t, out, "[INFO] pivot 1: 2 value cell(s) and 4 header(s) not referenced by any formula")
	assert.Contains(t, out, "no errors")
}

func TestLoadConfig(t *testing.T) {
	conf, err := loadConfig(writeConfig(t))
	require.NoError(t, err)
	assert.Len(t, conf.Pivots, 1)
	assert.Equal(t, "stderr", conf.Log.Path)

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pivots: []\n"), 0644))
	_, err = loadConfig(path)
	assert.ErrorContains(t, err, "dataset is required")
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()
	for _, mode := range []string{"", "append", "truncate", "rotate"} {
		path := filepath.Join(dir, "xlpivot-"+mode+".log")
		logger, err := newLogger(LogConfig{Level: zapcore.InfoLevel, Path: path, Mode: mode})
		require.NoError(t, err, mode)
		logger.Info("hello")
		require.NoError(t, logger.Sync())
		b, err := os.ReadFile(path)
		require.NoError(t, err, mode)
		assert.Contains(t, string(b), "hello", mode)
	}

	_, err := newLogger(LogConfig{Path: filepath.Join(dir, "x.log"), Mode: "shred"})
	assert.ErrorContains(t, err, "invalid log mode")
	_, err = newLogger(LogConfig{Path: filepath.Join(dir, "missing", "x.log"), Mode: "rotate"})
	assert.Error(t, err)
}
