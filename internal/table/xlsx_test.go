package table

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteWorkbook_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "statements.xlsx")
	sheets := []Sheet{
		{
			Name:    "personas",
			Leading: []string{"user_id"},
			Records: []map[string]any{
				{"user_id": "user_00000", "full_name": "Tariq Hussain", "age": int64(34)},
			},
		},
		{
			Name:    "user_00000",
			Leading: []string{"timestamp", "amount"},
			Records: []map[string]any{
				{"timestamp": "2025-01-03T09:15:00Z", "amount": -12.5, "currency": "GBP"},
				{"timestamp": "2025-01-28T08:00:00Z", "amount": 1850.0, "currency": "GBP"},
			},
		},
	}

	require.NoError(t, WriteWorkbook(path, sheets))

	names, err := SheetNames(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"personas", "user_00000"}, names)

	personas, err := ReadSheet(path, "personas")
	require.NoError(t, err)
	require.Len(t, personas, 1)
	assert.Equal(t, "Tariq Hussain", personas[0]["full_name"])
	assert.EqualValues(t, 34, personas[0]["age"])

	txns, err := ReadSheet(path, "user_00000")
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "2025-01-03T09:15:00Z", txns[0]["timestamp"])
	assert.Equal(t, "GBP", txns[1]["currency"])

	amount, ok := txns[0]["amount"].(float64)
	require.True(t, ok, "amount is %T", txns[0]["amount"])
	assert.InDelta(t, -12.5, amount, 0.0001)
}

func TestWriteWorkbook_NoSheets(t *testing.T) {
	err := WriteWorkbook(filepath.Join(t.TempDir(), "x.xlsx"), nil)
	require.Error(t, err)
}

func TestReadSheet_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.xlsx")
	require.NoError(t, WriteWorkbook(path, []Sheet{{Name: "only", Leading: []string{"a"}}}))

	_, err := ReadSheet(path, "other")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "other" not found`)
}

func TestWriteWorkbook_LongSheetNameTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.xlsx")
	long := "abcdefghijklmnopqrstuvwxyz0123456789"

	require.NoError(t, WriteWorkbook(path, []Sheet{{Name: long, Leading: []string{"a"}}}))

	names, err := SheetNames(path)
	require.NoError(t, err)
	assert.Equal(t, []string{long[:maxSheetName]}, names)
}
