package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_OK(t *testing.T) {
	rep, err := Validate(writeConfig(t, sampleConfig), Schema)
	require.NoError(t, err)
	assert.True(t, rep.OK(), "%v", rep.Violations)
}

func TestValidate_IntLiteralSatisfiesFloat(t *testing.T) {
	path := writeConfig(t, `num_users: 1
months: 1
batch_size: 1
output_dir: out
model: m
temperature: 1
max_tokens: 10
`)
	rep, err := Validate(path, Schema)
	require.NoError(t, err)
	assert.True(t, rep.OK())
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	path := writeConfig(t, `num_users: "500"
months: 6.5
output_dir: 12
model: m
temperature: hot
max_tokens: 2000
`)
	rep, err := Validate(path, Schema)
	require.NoError(t, err)
	require.False(t, rep.OK())

	var lines []string
	for _, v := range rep.Violations {
		lines = append(lines, v.String())
	}
	assert.Equal(t, []string{
		"invalid type for num_users: expected int, got str",
		"invalid type for months: expected int, got float",
		"missing key: batch_size",
		"invalid type for output_dir: expected str, got int",
		"invalid type for temperature: expected float, got str",
	}, lines)
}

func TestValidate_EmptyFile(t *testing.T) {
	rep, err := Validate(writeConfig(t, ""), Schema)
	require.NoError(t, err)
	assert.Len(t, rep.Violations, len(Schema))
}

func TestValidate_DoesNotModifyFile(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	_, err := Validate(path, Schema)
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleConfig, string(b))
}

func TestValidate_MissingFile(t *testing.T) {
	_, err := Validate(filepath.Join(t.TempDir(), "missing.yaml"), Schema)
	assert.Error(t, err)
}

func TestSet_CastsToExistingType(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	v, err := Set(path, "num_users", "500")
	require.NoError(t, err)
	assert.Equal(t, 500, v)

	v, err = Set(path, "temperature", "1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = Set(path, "output_dir", "data/run2")
	require.NoError(t, err)
	assert.Equal(t, "data/run2", v)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.NumUsers)
	assert.InDelta(t, 1.0, cfg.Temperature, 0.0001)
	assert.Equal(t, "data/run2", cfg.OutputDir)

	// The float slot still validates as a float, not an int.
	rep, err := Validate(path, Schema)
	require.NoError(t, err)
	assert.True(t, rep.OK(), "%v", rep.Violations)
}

func TestSet_PreservesOrderAndComments(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	_, err := Set(path, "months", "12")
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)

	assert.Contains(t, out, "# generation settings")
	assert.Contains(t, out, "months: 12\n")
	assert.Contains(t, out, `output_dir: "out"`)
	assert.Less(t, strings.Index(out, "num_users"), strings.Index(out, "months"))
	assert.Less(t, strings.Index(out, "months"), strings.Index(out, "batch_size"))
}

func TestSet_Bool(t *testing.T) {
	path := writeConfig(t, "verbose: false\n")

	v, err := Set(path, "verbose", "yes")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	_, err = Set(path, "verbose", "maybe")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestSet_InvalidKey(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	_, err := Set(path, "num_user", "5")
	require.ErrorIs(t, err, ErrInvalidKey)
	assert.Contains(t, err.Error(), "num_users")
}

func TestSet_InvalidValueLeavesFile(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	_, err := Set(path, "num_users", "lots")
	require.ErrorIs(t, err, ErrInvalidValue)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleConfig, string(b))
}
