// Package generate drives the two generation stages: personas in bounded
// batches, then one transaction history per persona.
package generate

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/synthbank/bankgen/pkg/llm"
)

// Output layout under the configured output directory.
const (
	PersonaFile     = "personas.csv"
	TransactionsDir = "transactions"
	IDPrefix        = "user"
)

var (
	// ErrInvalidParams is returned before any generation call when the
	// population, batch size, months or mode cannot be used.
	ErrInvalidParams = errors.New("invalid generation parameters")
	// ErrNoPersonas means every persona batch failed; nothing was written.
	ErrNoPersonas = errors.New("no personas generated")
	// ErrPersonaTableMissing means the transaction stage had no personas
	// to work from.
	ErrPersonaTableMissing = errors.New("persona table missing or empty")
)

// Mode selects how a stage schedules its generation calls.
type Mode string

const (
	// ModeSync issues one request at a time.
	ModeSync Mode = "sync"
	// ModeAsync dispatches every request of a stage together and joins.
	ModeAsync Mode = "async"
)

func (m Mode) validate() error {
	switch m {
	case ModeSync, ModeAsync:
		return nil
	default:
		return eris.Wrapf(ErrInvalidParams, "unknown mode %q", string(m))
	}
}

// Generator is the slice of *llm.Client the orchestrators use.
type Generator interface {
	Chat(ctx context.Context, req llm.Request) (*llm.Result, error)
	ChatAll(ctx context.Context, reqs []llm.Request) []llm.Outcome
}

// Batch is one persona generation call: Size records starting at global
// index Start.
type Batch struct {
	Index int
	Start int
	Size  int
}

// Plan splits [0, population) into consecutive batches of at most batchSize.
// A batchSize above population is clamped to population; the effective size
// is returned alongside the batches.
func Plan(population, batchSize int) ([]Batch, int, error) {
	if population <= 0 {
		return nil, 0, eris.Wrapf(ErrInvalidParams, "population must be positive, got %d", population)
	}
	if batchSize <= 0 {
		return nil, 0, eris.Wrapf(ErrInvalidParams, "batch size must be positive, got %d", batchSize)
	}
	if batchSize > population {
		batchSize = population
	}

	n := (population + batchSize - 1) / batchSize
	batches := make([]Batch, 0, n)
	for start := 0; start < population; start += batchSize {
		size := batchSize
		if rest := population - start; rest < size {
			size = rest
		}
		batches = append(batches, Batch{Index: len(batches), Start: start, Size: size})
	}
	return batches, batchSize, nil
}

// PersonaPath is where the persona stage writes its table.
func PersonaPath(outputDir string) string {
	return filepath.Join(outputDir, PersonaFile)
}

// TransactionPath is where the history for userID is written.
func TransactionPath(outputDir, userID string) string {
	return filepath.Join(outputDir, TransactionsDir, userID+".csv")
}

// dispatch runs reqs one at a time (sync) or as one concurrent join (async)
// and hands each outcome to handle in input order. In sync mode handle runs
// as soon as its request completes.
func dispatch(ctx context.Context, gen Generator, mode Mode, reqs []llm.Request, handle func(i int, res *llm.Result, err error) error) error {
	if mode == ModeAsync {
		for i, out := range gen.ChatAll(ctx, reqs) {
			if err := handle(i, out.Result, out.Err); err != nil {
				return err
			}
		}
		return ctx.Err()
	}

	for i, req := range reqs {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := gen.Chat(ctx, req)
		if err := handle(i, res, err); err != nil {
			return err
		}
	}
	return nil
}
