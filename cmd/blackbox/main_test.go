package main

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "blackbox dev\n", out)
}

func TestList(t *testing.T) {
	out, _, err := execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "anneal")
	assert.Contains(t, out, "drone-pid")
	assert.Regexp(t, `attractor\s+2\s+false`, out)
	assert.Regexp(t, `himmelblau\s+2\s+true`, out)
}

func TestRunFlags(t *testing.T) {
	out, _, err := execute(t, "run", "--algorithm", "grid", "--objective", "sphere", "--iterations", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "algorithm")
	assert.Contains(t, out, "grid")
	assert.Regexp(t, `evaluations\s+100\n`, out)
	assert.Contains(t, out, "best loss")
}

func TestRunFileWithOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "req.yaml")
	require.NoError(t, os.WriteFile(path, []byte("algorithm: random\nobjective: rosenbrock\niterations: 50\nseed: 3\n"), 0o644))

	out, _, err := execute(t, "run", path, "--iterations", "20", "--json")
	require.NoError(t, err)

	var summary map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "random", summary["algorithm"])
	assert.Equal(t, "rosenbrock", summary["objective"])
	assert.Equal(t, 20.0, summary["evaluations"])
}

func TestRunBayesWithKernel(t *testing.T) {
	out, _, err := execute(t, "run", "--algorithm", "bayes", "--objective", "himmelblau",
		"--iterations", "5", "--kernel", "rbf", "--seed", "4", "--json")
	require.NoError(t, err)

	var summary map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, "bayes", summary["algorithm"])
	assert.Equal(t, 15.0, summary["evaluations"])
	req := summary["request"].(map[string]interface{})
	assert.Equal(t, "rbf", req["kernel"])
}

func TestRunInvalid(t *testing.T) {
	_, _, err := execute(t, "run", "--algorithm", "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown algorithm")

	_, _, err = execute(t, "run", "missing.yaml")
	assert.Error(t, err)
}

func TestRunLogsAtInfo(t *testing.T) {
	_, errOut, err := execute(t, "run", "--algorithm", "random", "--objective", "sphere", "--iterations", "5", "--plot=false", "--log-level", "info")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(errOut), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], `message="optimisation finished"`)
	assert.Contains(t, lines[1], "cmd=run")
}

func TestPlotTrace(t *testing.T) {
	inf := math.Inf(1)
	assert.Empty(t, plotTrace([]float64{inf}, 5, false))
	graph := plotTrace([]float64{inf, 4, 2, 1, 1}, 5, true)
	assert.Contains(t, graph, "log10 best loss")
}
