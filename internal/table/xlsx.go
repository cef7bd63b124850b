package table

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// maxSheetName is the longest sheet name xlsx readers accept.
const maxSheetName = 31

// Sheet is one worksheet of a workbook.
type Sheet struct {
	Name    string
	Records []map[string]any
	Leading []string
}

// WriteWorkbook saves sheets to one xlsx file at path. Numbers are written
// as numeric cells; everything else goes through EncodeCell.
func WriteWorkbook(path string, sheets []Sheet) error {
	if len(sheets) == 0 {
		return eris.New("xlsx: no sheets")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "xlsx: create dir for %s", path)
	}

	f := xlsx.NewFile()
	for _, s := range sheets {
		name := s.Name
		if len(name) > maxSheetName {
			name = name[:maxSheetName]
		}
		sheet, err := f.AddSheet(name)
		if err != nil {
			return eris.Wrapf(err, "xlsx: add sheet %q", name)
		}

		header := Header(s.Records, s.Leading)
		row := sheet.AddRow()
		for _, col := range header {
			row.AddCell().SetString(col)
		}

		for _, rec := range s.Records {
			row := sheet.AddRow()
			for _, col := range header {
				if err := setCell(row.AddCell(), rec[col]); err != nil {
					return eris.Wrapf(err, "xlsx: sheet %q column %s", name, col)
				}
			}
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func setCell(cell *xlsx.Cell, v any) error {
	switch t := v.(type) {
	case int:
		cell.SetInt(t)
	case int64:
		cell.SetInt64(t)
	case float64:
		cell.SetFloat(t)
	default:
		s, err := EncodeCell(v)
		if err != nil {
			return err
		}
		cell.SetString(s)
	}
	return nil
}

// ReadSheet reads the named sheet of an xlsx file back into records, using
// the first row as the header. Cells are typed the same way as ReadRecords.
func ReadSheet(path, name string) ([]map[string]any, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, ok := f.Sheet[name]
	if !ok {
		return nil, eris.Errorf("xlsx: sheet %q not found", name)
	}
	if len(sheet.Rows) == 0 {
		return nil, nil
	}

	header := rowToStrings(sheet.Rows[0])
	var records []map[string]any
	for _, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		rec := make(map[string]any, len(header))
		for i, col := range header {
			if i >= len(cells) || cells[i] == "" {
				continue
			}
			rec[col] = DecodeCell(cells[i])
		}
		records = append(records, rec)
	}
	return records, nil
}

// SheetNames lists the sheets of an xlsx file in workbook order.
func SheetNames(path string) ([]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	names := make([]string, len(f.Sheets))
	for i, s := range f.Sheets {
		names[i] = s.Name
	}
	return names, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
