package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, storePath string, args ...string) string {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--path", storePath}, args...))
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestAddCmd_PrintsNewID(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "store.simk")
	out := runCLI(t, storePath, "add", "hello world", "--embedding", "1,0,0")
	assert.NotEmpty(t, strings.TrimSpace(out))
}

func TestAddThenSearchCmd_FindsVolume(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "store.simk")
	runCLI(t, storePath, "add", "hello world", "--embedding", "1,0,0")

	out := runCLI(t, storePath, "search", "--embedding", "1,0,0", "--rank-by", "vector")
	assert.Contains(t, out, "hello world")
}

func TestAddThenTopicsCmd_ListsTopic(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "store.simk")
	runCLI(t, storePath, "add", "hello", "--embedding", "1,0,0", "--metadata", "topic=go")

	out := runCLI(t, storePath, "topics")
	assert.Contains(t, out, "go")
}

func TestAddThenStatsCmd_ReportsCounts(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "store.simk")
	runCLI(t, storePath, "add", "hello", "--embedding", "1,0,0", "--metadata", "topic=go")

	out := runCLI(t, storePath, "stats")
	assert.Contains(t, out, "volumes: 1")
	assert.Contains(t, out, "topics:  1")
}

func TestAddThenDedupCmd_ReportsDuplicateCluster(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "store.simk")
	runCLI(t, storePath, "add", "a", "--embedding", "1,0,0")
	runCLI(t, storePath, "add", "b", "--embedding", "0.99,0.01,0")

	out := runCLI(t, storePath, "dedup", "--threshold", "0.95")
	assert.Contains(t, out, "avg similarity")
}

func TestAddThenRecommendCmd_PrintsScoredResult(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "store.simk")
	runCLI(t, storePath, "add", "item", "--embedding", "1,0,0")

	out := runCLI(t, storePath, "recommend", "--embedding", "1,0,0")
	assert.NotEmpty(t, strings.TrimSpace(out))
}

func TestAddCmd_MissingEmbeddingFlagFails(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "store.simk")
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--path", storePath, "add", "hello"})
	assert.Error(t, cmd.Execute())
}

func TestParseEmbedding_InvalidComponent(t *testing.T) {
	_, err := parseEmbedding("1,x,3")
	assert.Error(t, err)
}

func TestParseMetadata_InvalidPair(t *testing.T) {
	_, err := parseMetadata([]string{"notakeyvalue"})
	assert.Error(t, err)
}

func TestParseMetadata_Empty(t *testing.T) {
	meta, err := parseMetadata(nil)
	assert.NoError(t, err)
	assert.Nil(t, meta)
}
