// Package statement projects generated tables down to the columns a bank
// statement carries.
package statement

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/synthbank/bankgen/internal/generate"
	"github.com/synthbank/bankgen/internal/model"
	"github.com/synthbank/bankgen/internal/table"
)

// Output names under the output directory.
const (
	TransactionsDir = "transactions_stmt"
	PersonaFile     = "personas_stmt.csv"
	WorkbookFile    = "statements.xlsx"
	personasSheet   = "personas"
)

// TransactionColumns are kept from each transaction table, in order.
var TransactionColumns = []string{
	"timestamp",
	"amount",
	"transaction_type",
	"currency",
	"description_raw",
	model.KeyUserID,
}

// PersonaColumns are kept from the persona table, in order.
var PersonaColumns = []string{
	"full_name",
	"age",
	"gender",
	"location",
	"ethnicity",
	model.KeyUserID,
}

// Options configures Export.
type Options struct {
	// Workbook also writes every projected table into statements.xlsx.
	Workbook bool
	Logger   *zap.Logger
}

// Result counts what Export wrote.
type Result struct {
	Files    int
	Failed   int
	Personas bool
	Workbook string
}

// Export reads <outputDir>/transactions/*.csv and personas.csv and writes
// statement-only projections next to them. A file that cannot be processed
// is logged and counted; Export only fails when nothing can be read at all.
func Export(outputDir string, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}

	srcDir := filepath.Join(outputDir, generate.TransactionsDir)
	entries, err := os.ReadDir(srcDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrapf(err, "statement: list %s", srcDir)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	res := &Result{}
	var sheets []table.Sheet

	for _, name := range names {
		src := filepath.Join(srcDir, name)
		dst := filepath.Join(outputDir, TransactionsDir, name)

		rows, err := project(src, dst, TransactionColumns)
		if err != nil {
			log.Error("statement export failed", zap.String("file", name), zap.Error(err))
			res.Failed++
			continue
		}
		res.Files++
		log.Debug("statement written", zap.String("path", dst), zap.Int("rows", len(rows)))

		if opts.Workbook {
			sheets = append(sheets, table.Sheet{
				Name:    strings.TrimSuffix(name, ".csv"),
				Records: rows,
				Leading: TransactionColumns,
			})
		}
	}

	personaRows, err := project(generate.PersonaPath(outputDir), filepath.Join(outputDir, PersonaFile), PersonaColumns)
	if err != nil {
		log.Error("persona statement export failed", zap.Error(err))
		res.Failed++
	} else {
		res.Personas = true
		if opts.Workbook {
			sheets = append([]table.Sheet{{Name: personasSheet, Records: personaRows, Leading: PersonaColumns}}, sheets...)
		}
	}

	if res.Files == 0 && !res.Personas {
		return res, eris.Errorf("statement: nothing to export under %s", outputDir)
	}

	if opts.Workbook && len(sheets) > 0 {
		path := filepath.Join(outputDir, WorkbookFile)
		if err := table.WriteWorkbook(path, sheets); err != nil {
			return res, eris.Wrap(err, "statement: write workbook")
		}
		res.Workbook = path
	}

	log.Info("statements exported",
		zap.Int("files", res.Files),
		zap.Int("failed", res.Failed),
		zap.Bool("personas", res.Personas),
		zap.String("workbook", res.Workbook),
	)
	return res, nil
}

// project copies columns from src to dst. Columns the source lacks are
// written empty.
func project(src, dst string, columns []string) ([]map[string]any, error) {
	rows, err := table.ReadRecords(src)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		kept := make(map[string]any, len(columns))
		for _, col := range columns {
			if v, ok := row[col]; ok {
				kept[col] = v
			}
		}
		out[i] = kept
	}

	if err := table.WriteRecords(dst, out, columns); err != nil {
		return nil, err
	}
	return out, nil
}
