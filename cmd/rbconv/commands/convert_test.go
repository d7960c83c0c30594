package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbconv/rbconv/pkg/convert"
)

func executeConvert(t *testing.T, convertFn convertExecutor, args ...string) (string, string, error) {
	t.Helper()

	cmd := newConvertCommandWithDeps(convertFn)

	var stdout, stderr bytes.Buffer

	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return stdout.String(), stderr.String(), err
}

func staticConverter(text string) convertExecutor {
	return func(_ context.Context, _ string, _ convert.Options) (*convert.Result, error) {
		return &convert.Result{Text: text}, nil
	}
}

func TestConvertWritesOutputNextToInput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "greeter.rb")
	require.NoError(t, os.WriteFile(input, []byte("puts \"hi\"\n"), 0o600))

	_, _, err := executeConvert(t, staticConverter("console.log(\"hi\");\n"), input, "--no-cache")
	require.NoError(t, err)

	generated, readErr := os.ReadFile(filepath.Join(dir, "greeter.js"))
	require.NoError(t, readErr)
	assert.Equal(t, "console.log(\"hi\");\n", string(generated))
}

func TestConvertStdinWritesStdout(t *testing.T) {
	cmd := newConvertCommandWithDeps(staticConverter("let x = 1;\n"))

	var stdout, stderr bytes.Buffer

	cmd.SetIn(bytes.NewBufferString("x = 1\n"))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"-"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "let x = 1;\n", stdout.String())
}

func TestConvertWalksDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.rb"), []byte("a = 1\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("not ruby\n"), 0o600))

	converted := 0
	countingFn := func(_ context.Context, _ string, _ convert.Options) (*convert.Result, error) {
		converted++

		return &convert.Result{Text: "let a = 1;\n"}, nil
	}

	_, _, err := executeConvert(t, countingFn, dir, "--no-cache")
	require.NoError(t, err)
	assert.Equal(t, 1, converted)

	_, statErr := os.Stat(filepath.Join(dir, "a.js"))
	require.NoError(t, statErr)
}

func TestConvertFlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, ".rbconv.yml")
	require.NoError(t, os.WriteFile(configPath, []byte("convert:\n  es: es5\n  quote: single\n"), 0o600))

	input := filepath.Join(dir, "a.rb")
	require.NoError(t, os.WriteFile(input, []byte("a = 1\n"), 0o600))

	var seen convert.Options

	capturingFn := func(_ context.Context, _ string, opts convert.Options) (*convert.Result, error) {
		seen = opts

		return &convert.Result{Text: ""}, nil
	}

	_, _, err := executeConvert(t, capturingFn,
		input, "--config", configPath, "--es", "es2020", "--no-cache")
	require.NoError(t, err)

	assert.Equal(t, "es2020", seen.ES)
	assert.Equal(t, "single", seen.Quote)
	assert.Equal(t, []string{"functions", "camelcase", "return"}, seen.Filters)
}

func TestConvertCheckReportsDrift(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.rb")
	require.NoError(t, os.WriteFile(input, []byte("a = 1\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.js"), []byte("stale\n"), 0o600))

	stdout, _, err := executeConvert(t, staticConverter("let a = 1;\n"), input, "--check")
	require.ErrorIs(t, err, ErrCheckDrift)
	assert.Contains(t, stdout, "out of date")

	// Check mode never rewrites.
	onDisk, readErr := os.ReadFile(filepath.Join(dir, "a.js"))
	require.NoError(t, readErr)
	assert.Equal(t, "stale\n", string(onDisk))
}

func TestConvertCheckPassesWhenCurrent(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.rb")
	require.NoError(t, os.WriteFile(input, []byte("a = 1\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.js"), []byte("let a = 1;\n"), 0o600))

	_, _, err := executeConvert(t, staticConverter("let a = 1;\n"), input, "--check")
	require.NoError(t, err)
}

func TestConvertMissingInputFails(t *testing.T) {
	_, _, err := executeConvert(t, staticConverter(""), filepath.Join(t.TempDir(), "nope.rb"))
	require.Error(t, err)
}

func TestConvertAggregatesFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.rb"), []byte("a = 1\n"), 0o600))

	failingFn := func(_ context.Context, _ string, _ convert.Options) (*convert.Result, error) {
		return nil, assert.AnError
	}

	_, stderr, err := executeConvert(t, failingFn, dir, "--no-cache")
	require.ErrorIs(t, err, ErrConversionFailed)
	assert.Contains(t, stderr, "a.rb")
}

func TestConvertSummaryTable(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a.rb")
	require.NoError(t, os.WriteFile(input, []byte("a = 1\n"), 0o600))

	stdout, _, err := executeConvert(t, staticConverter("let a = 1;\n"), input, "--summary", "--no-cache", "--no-color")
	require.NoError(t, err)

	assert.Contains(t, stdout, "a.rb")
	assert.Contains(t, stdout, "ok")
	assert.Contains(t, stdout, "1 files")
}

func TestOutputPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join("src", "a.js"), outputPath(filepath.Join("src", "a.rb"), ""))
	assert.Equal(t, filepath.Join("dist", "a.js"), outputPath(filepath.Join("src", "a.rb"), "dist"))
}

func TestCollectTargetsStdin(t *testing.T) {
	t.Parallel()

	targets, err := collectTargets([]string{"-"}, bytes.NewBufferString("x = 1\n"))
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.True(t, targets[0].stdout)
	assert.Equal(t, "x = 1\n", targets[0].source)
}
