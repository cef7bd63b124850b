package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/synthbank/bankgen/internal/cache"
	"github.com/synthbank/bankgen/internal/config"
	"github.com/synthbank/bankgen/internal/cost"
	"github.com/synthbank/bankgen/internal/generate"
	"github.com/synthbank/bankgen/internal/metrics"
	"github.com/synthbank/bankgen/internal/model"
	"github.com/synthbank/bankgen/pkg/llm"
)

// recorder is a Confirmer that records every estimate and answers with
// answers in order (true once they run out).
type recorder struct {
	answers []bool
	seen    []cost.Estimate
	hook    func(est cost.Estimate)
}

func (r *recorder) Confirm(_ context.Context, est cost.Estimate) (bool, error) {
	r.seen = append(r.seen, est)
	if r.hook != nil {
		r.hook(est)
	}
	if len(r.seen) <= len(r.answers) {
		return r.answers[len(r.seen)-1], nil
	}
	return true, nil
}

type fixture struct {
	out    string
	config string
	stdout *bytes.Buffer
}

func newFixture(t *testing.T, extra string) fixture {
	t.Helper()
	dir := t.TempDir()
	out := filepath.Join(dir, "data")
	body := fmt.Sprintf(`num_users: 4
months: 1
batch_size: 2
tx_batch_size: 1
output_dir: %q
provider: offline
model: "claude-sonnet-4-5-20250929"
temperature: 0.7
max_tokens: 2000
mode: sync
seed: 11
%s`, out, extra)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return fixture{out: out, config: path, stdout: &bytes.Buffer{}}
}

func (f fixture) set(t *testing.T, key, value string) {
	t.Helper()
	_, err := config.Set(f.config, key, value)
	require.NoError(t, err)
}

func (f fixture) controller(confirm Confirmer) *Controller {
	return New(Options{
		ConfigPath: f.config,
		Confirmer:  confirm,
		Out:        f.stdout,
		Logger:     zap.NewNop(),
		Metrics:    metrics.NewGeneration(),
	})
}

func TestGenerate_EndToEnd(t *testing.T) {
	f := newFixture(t, "")
	conf := &recorder{}

	sum, err := f.controller(conf).Generate(context.Background(), model.AllStages())
	require.NoError(t, err)

	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, llm.ProviderOffline, sum.Backend)
	require.NotNil(t, sum.Personas)
	assert.Len(t, sum.Personas.Personas, 4)
	assert.Equal(t, 2, sum.Personas.Batches)
	require.NotNil(t, sum.Transactions)
	assert.Len(t, sum.Transactions.Files, 4)
	assert.Positive(t, sum.Usage.OutputTokens)
	assert.Zero(t, sum.CostUSD, "offline runs are free")

	require.Len(t, conf.seen, 2)
	assert.Equal(t, model.StagePersonas, conf.seen[0].Stage)
	assert.Equal(t, int64(2*2000), conf.seen[0].Tokens)
	assert.Equal(t, model.StageTransactions, conf.seen[1].Stage)
	assert.Equal(t, int64(4*1*2000), conf.seen[1].Tokens)

	for i := 0; i < 4; i++ {
		assert.FileExists(t, generate.TransactionPath(f.out, fmt.Sprintf("user_%05d", i)))
	}
}

func TestGenerate_Async(t *testing.T) {
	f := newFixture(t, "")
	f.set(t, "mode", "async")

	sum, err := f.controller(AutoConfirm{}).Generate(context.Background(), model.AllStages())
	require.NoError(t, err)
	assert.Len(t, sum.Transactions.Files, 4)
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

func TestGenerate_DeclineFirstGate(t *testing.T) {
	f := newFixture(t, "")
	conf := &recorder{answers: []bool{false}}

	_, err := f.controller(conf).Generate(context.Background(), model.AllStages())
	require.ErrorIs(t, err, ErrDeclined)

	assert.Len(t, conf.seen, 1)
	assert.NoFileExists(t, generate.PersonaPath(f.out))
}

func TestGenerate_DeclineSecondGate(t *testing.T) {
	f := newFixture(t, "")
	conf := &recorder{answers: []bool{true, false}}

	sum, err := f.controller(conf).Generate(context.Background(), model.AllStages())
	require.ErrorIs(t, err, ErrDeclined)

	require.NotNil(t, sum.Personas)
	assert.FileExists(t, generate.PersonaPath(f.out))
	assert.NoDirExists(t, filepath.Join(f.out, generate.TransactionsDir))
}

func TestGenerate_SingleStage(t *testing.T) {
	f := newFixture(t, "")
	conf := &recorder{}

	sum, err := f.controller(conf).Generate(context.Background(), []model.Stage{model.StagePersonas})
	require.NoError(t, err)

	assert.Len(t, conf.seen, 1)
	assert.Nil(t, sum.Transactions)
	assert.NoDirExists(t, filepath.Join(f.out, generate.TransactionsDir))
}

func TestGenerate_TransactionsWithoutPersonas(t *testing.T) {
	f := newFixture(t, "")

	_, err := f.controller(AutoConfirm{}).Generate(context.Background(), []model.Stage{model.StageTransactions})
	require.ErrorIs(t, err, generate.ErrPersonaTableMissing)
}

func TestGenerate_ReloadsConfigBetweenStages(t *testing.T) {
	f := newFixture(t, "")
	conf := &recorder{}
	conf.hook = func(est cost.Estimate) {
		if est.Stage == model.StagePersonas {
			f.set(t, "months", "3")
		}
	}

	sum, err := f.controller(conf).Generate(context.Background(), model.AllStages())
	require.NoError(t, err)

	require.Len(t, conf.seen, 2)
	assert.Equal(t, int64(4*3), conf.seen[1].Calls)
	assert.Len(t, sum.Transactions.Files, 4)
}

func TestGenerate_MissingCredential(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	f := newFixture(t, "")
	f.set(t, "provider", "anthropic")
	conf := &recorder{}

	_, err := f.controller(conf).Generate(context.Background(), model.AllStages())
	require.ErrorIs(t, err, config.ErrMissingCredential)
	assert.Empty(t, conf.seen, "no gate before the credential is resolved")
}

func TestGenerate_InvalidParams(t *testing.T) {
	f := newFixture(t, "")
	f.set(t, "num_users", "0")
	conf := &recorder{}

	_, err := f.controller(conf).Generate(context.Background(), model.AllStages())
	require.ErrorIs(t, err, generate.ErrInvalidParams)
	assert.Empty(t, conf.seen)
}

func TestGenerate_SQLiteCache(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.db")
	f := newFixture(t, fmt.Sprintf("cache_path: %q\n", cachePath))

	_, err := f.controller(AutoConfirm{}).Generate(context.Background(), []model.Stage{model.StagePersonas})
	require.NoError(t, err)
	assert.FileExists(t, cachePath)
}

func TestGenerate_SQLiteCachePurgesExpired(t *testing.T) {
	ctx := context.Background()
	cachePath := filepath.Join(t.TempDir(), "cache.db")

	seed, err := cache.NewSQLite(cachePath)
	require.NoError(t, err)
	require.NoError(t, seed.Migrate(ctx))
	require.NoError(t, seed.Set(ctx, "stale", []byte("{}"), -time.Minute))
	require.NoError(t, seed.Set(ctx, "fresh", []byte("{}"), time.Hour))
	require.NoError(t, seed.Close())

	f := newFixture(t, fmt.Sprintf("cache_path: %q\n", cachePath))
	_, err = f.controller(AutoConfirm{}).Generate(ctx, []model.Stage{model.StagePersonas})
	require.NoError(t, err)

	after, err := cache.NewSQLite(cachePath)
	require.NoError(t, err)
	defer after.Close() //nolint:errcheck

	n, err := after.Purge(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "expired entries should already be gone")

	fresh, err := after.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, fresh)
}

func TestValidate(t *testing.T) {
	f := newFixture(t, "")

	rep, err := f.controller(AutoConfirm{}).Validate()
	require.NoError(t, err)
	assert.True(t, rep.OK())
	assert.Contains(t, f.stdout.String(), "Config is valid")
}

func TestValidate_Failures(t *testing.T) {
	f := newFixture(t, "")
	body := bytes.Replace(mustRead(t, f.config), []byte("months: 1\n"), nil, 1)
	body = bytes.Replace(body, []byte("batch_size: 2"), []byte(`batch_size: "two"`), 1)
	require.NoError(t, os.WriteFile(f.config, body, 0o644))

	rep, err := f.controller(AutoConfirm{}).Validate()
	require.ErrorIs(t, err, config.ErrValidation)
	assert.Len(t, rep.Violations, 2)

	out := f.stdout.String()
	assert.Contains(t, out, "missing key: months")
	assert.Contains(t, out, "invalid type for batch_size: expected int, got str")
	assert.Contains(t, out, "Config validation failed")
}

func TestDryRun(t *testing.T) {
	f := newFixture(t, "")

	require.NoError(t, f.controller(AutoConfirm{}).DryRun(model.AllStages()))

	out := f.stdout.String()
	assert.Contains(t, out, "would run generate-personas and generate-transactions")
	assert.Contains(t, out, "personas: 2 calls")
	assert.Contains(t, out, "transactions: 4 calls")
	assert.NoDirExists(t, f.out)
}

func TestSetConfig(t *testing.T) {
	f := newFixture(t, "")
	c := f.controller(AutoConfirm{})

	require.NoError(t, c.SetConfig("num_users", "12"))
	assert.Contains(t, f.stdout.String(), "Updated config: num_users = 12")

	cfg, err := config.Load(f.config)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.NumUsers)

	err = c.SetConfig("nope", "1")
	require.ErrorIs(t, err, config.ErrInvalidKey)
}
