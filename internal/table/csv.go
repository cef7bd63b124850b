// Package table persists loosely typed records as CSV files and xlsx
// workbooks.
package table

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/synthbank/bankgen/internal/jsonblock"
)

// Header returns the leading columns followed by every other key found in
// records, sorted.
func Header(records []map[string]any, leading []string) []string {
	seen := make(map[string]bool, len(leading))
	header := make([]string, 0, len(leading))
	for _, col := range leading {
		if !seen[col] {
			seen[col] = true
			header = append(header, col)
		}
	}

	var extra []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return append(header, extra...)
}

// WriteRecords writes records to path as CSV, creating parent directories.
// An empty record set still produces a header row.
func WriteRecords(path string, records []map[string]any, leading []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "table: create dir for %s", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "table: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	if err := writeCSV(f, records, leading); err != nil {
		return eris.Wrapf(err, "table: write %s", path)
	}
	return eris.Wrapf(f.Close(), "table: close %s", path)
}

func writeCSV(w io.Writer, records []map[string]any, leading []string) error {
	header := Header(records, leading)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for _, rec := range records {
		for i, col := range header {
			cell, err := EncodeCell(rec[col])
			if err != nil {
				return eris.Wrapf(err, "column %s", col)
			}
			row[i] = cell
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// EncodeCell renders one value as a cell: nil is empty, scalars use their
// natural text, nested maps and lists are JSON.
func EncodeCell(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case json.Number:
		return t.String(), nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", eris.Wrap(err, "encode cell")
		}
		return string(b), nil
	}
}

// ReadRecords reads a CSV written by WriteRecords back into records. Cells
// holding JSON objects or arrays are decoded, integers, floats and booleans
// are typed, and empty cells are omitted.
func ReadRecords(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "table: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	records, err := readCSV(f)
	if err != nil {
		return nil, eris.Wrapf(err, "table: read %s", path)
	}
	return records, nil
}

func readCSV(r io.Reader) ([]map[string]any, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "read header")
	}

	var records []map[string]any
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "read row")
		}

		rec := make(map[string]any, len(header))
		for i, col := range header {
			if i >= len(row) || row[i] == "" {
				continue
			}
			rec[col] = DecodeCell(row[i])
		}
		records = append(records, rec)
	}
}

// DecodeCell is the inverse of EncodeCell for the value shapes it writes.
func DecodeCell(cell string) any {
	s := strings.TrimSpace(cell)
	if s == "" {
		return cell
	}

	if (s[0] == '{' && s[len(s)-1] == '}') || (s[0] == '[' && s[len(s)-1] == ']') {
		if v, err := jsonblock.DecodeValue(s); err == nil {
			return v
		}
		return cell
	}

	switch s {
	case "true", "True", "TRUE":
		return true
	case "false", "False", "FALSE":
		return false
	}

	if hasLeadingZero(s) {
		return cell
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil && s == cell {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && s == cell && looksNumeric(s) {
		return f
	}
	return cell
}

// hasLeadingZero reports digit strings such as phone numbers or sort codes
// ("07700900123", "-007") whose zeros would be lost as numbers. "0" and
// "0.5" are plain numbers.
func hasLeadingZero(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 1 && s[0] == '0' && s[1] >= '0' && s[1] <= '9'
}

// looksNumeric rejects ParseFloat spellings such as "Inf" or "NaN" that
// are really words.
func looksNumeric(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && !strings.ContainsRune("+-.eE", r) {
			return false
		}
	}
	return true
}
