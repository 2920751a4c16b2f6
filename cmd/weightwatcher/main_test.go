package main

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/23skdu/longbow-weightwatcher/internal/config"
	"github.com/23skdu/longbow-weightwatcher/internal/gguf"
	"github.com/23skdu/longbow-weightwatcher/internal/logger"
	"github.com/23skdu/longbow-weightwatcher/internal/monitoring"
	"github.com/23skdu/longbow-weightwatcher/internal/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeModel(t *testing.T, seed int64) string {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	values := func(n int) []float32 {
		v := make([]float32, n)
		for i := range v {
			v[i] = float32(rng.NormFloat64())
		}
		return v
	}

	w := gguf.NewWriter()
	require.NoError(t, w.AddKV("general.architecture", "llama"))
	require.NoError(t, w.AddKV("general.name", "tiny"))
	require.NoError(t, w.AddKV("llama.block_count", uint32(1)))
	require.NoError(t, w.AddTensor("token_embd.weight", []int{32, 16}, gguf.GGMLTypeF32, values(512)))
	require.NoError(t, w.AddTensor("blk.0.attn_norm.weight", []int{16}, gguf.GGMLTypeF32, values(16)))
	require.NoError(t, w.AddTensor("blk.0.attn_q.weight", []int{64, 32}, gguf.GGMLTypeF16, values(2048)))
	require.NoError(t, w.AddTensor("blk.0.ffn_up.weight", []int{48, 64}, gguf.GGMLTypeQ8_0, values(3072)))

	path := filepath.Join(t.TempDir(), "tiny.gguf")
	require.NoError(t, w.WriteFile(path))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("OLLAMA_MODELS", t.TempDir())
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestAnalyzeJSON(t *testing.T) {
	path := writeModel(t, 1)
	out, err := run(t, "analyze", "--json", path)
	require.NoError(t, err)

	var rep jsonReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "tiny", rep.Model)
	assert.NotEmpty(t, rep.RunID)
	require.Len(t, rep.Details, 4)
	assert.Equal(t, 3, rep.Analyzed)

	byName := map[string]jsonRecord{}
	for _, r := range rep.Details {
		byName[r.Name] = r
	}
	assert.Equal(t, "OTHER", byName["token_embd.weight"].Type)
	assert.True(t, byName["blk.0.attn_q.weight"].HasBeenAnalyzed)
	assert.Equal(t, 64, byName["blk.0.attn_q.weight"].N)
	assert.Equal(t, 32, byName["blk.0.attn_q.weight"].M)
	norm := byName["blk.0.attn_norm.weight"]
	assert.Equal(t, "failed", norm.Status)
	assert.False(t, norm.HasBeenAnalyzed)
	assert.Nil(t, norm.Alpha)
	assert.NotEmpty(t, norm.Error)

	_, ok := rep.Summary[watcher.KeyNorm]
	assert.True(t, ok)
}

func TestAnalyzeLayerFilter(t *testing.T) {
	path := writeModel(t, 2)
	out, err := run(t, "--layers", "OTHER", "analyze", "--json", path)
	require.NoError(t, err)

	var rep jsonReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 1, rep.Analyzed, "only the embedding is 2-D and OTHER")
}

func TestAnalyzeTables(t *testing.T) {
	path := writeModel(t, 3)
	out, err := run(t, "analyze", "--no-progress", path)
	require.NoError(t, err)
	assert.Contains(t, out, "blk.0.ffn_up.weight")
	assert.Contains(t, out, "Summary")
	assert.Contains(t, out, watcher.KeyNormCompound)
}

func TestAnalyzeTensorFilterEmptyModel(t *testing.T) {
	path := writeModel(t, 4)
	out, err := run(t, "analyze", "--no-progress", "--tensor-filter", "nothing.*", path)
	require.NoError(t, err)
	assert.Contains(t, out, "0 analyzed")
	assert.Contains(t, out, "warning:")
}

func TestAnalyzeMissingModel(t *testing.T) {
	_, err := run(t, "analyze", "no-such-model:latest")
	assert.Error(t, err)
}

func TestCompareSameModel(t *testing.T) {
	path := writeModel(t, 5)
	out, err := run(t, "compare", path, path)
	require.NoError(t, err)
	assert.Contains(t, out, "tie")
	assert.Contains(t, out, "A is not better than B")

	out, err = run(t, "compare", "--family", "norm", path, path)
	require.NoError(t, err)
	assert.Equal(t, "false", strings.TrimSpace(out))
}

func TestCompareUnknownFamily(t *testing.T) {
	path := writeModel(t, 6)
	_, err := run(t, "compare", "--family", "entropy", path, path)
	assert.ErrorIs(t, err, watcher.ErrUnknownFamily)
}

func TestInfo(t *testing.T) {
	path := writeModel(t, 7)
	out, err := run(t, "info", path)
	require.NoError(t, err)
	assert.Contains(t, out, "llama")
	assert.Contains(t, out, "tiny")
	assert.Contains(t, out, "F16:1")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "weightwatcher dev", strings.TrimSpace(out))
}

func TestInvalidConfig(t *testing.T) {
	_, err := run(t, "--workers", "0", "version")
	assert.Error(t, err)
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "-", formatFloat(nanValue()))
	assert.Equal(t, "2.5", formatFloat(2.5))
}

func nanValue() float64 {
	var zero float64
	return zero / zero
}

func TestCompareRecordsBothAnalyses(t *testing.T) {
	t.Setenv("OLLAMA_MODELS", t.TempDir())
	path := writeModel(t, 8)
	a := &app{cfg: config.Default(), log: logger.Nop(), health: monitoring.NewHealthMonitor("test", nil)}
	cmd := newCompareCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{path, path})
	require.NoError(t, cmd.Execute())

	status := a.health.Status()
	require.NotNil(t, status.LastAnalysis)
	assert.Equal(t, "tiny", status.LastAnalysis.Model)
	assert.NotEmpty(t, status.LastAnalysis.RunID)
	assert.Equal(t, 3, status.LastAnalysis.Analyzed)
	// the attn_norm vector fails in each model
	assert.Len(t, status.Alerts, 2)
	assert.Equal(t, "healthy", status.Status)
}

func TestCompareRecordsFailure(t *testing.T) {
	a := &app{health: monitoring.NewHealthMonitor("test", nil)}
	a.recordComparison("a", "b", watcher.ComparisonResult{}, assert.AnError)

	status := a.health.Status()
	require.NotNil(t, status.LastAnalysis)
	assert.Equal(t, "a vs b", status.LastAnalysis.Model)
	assert.Equal(t, assert.AnError.Error(), status.LastAnalysis.Error)
	assert.Equal(t, "degraded", status.Status)
}
