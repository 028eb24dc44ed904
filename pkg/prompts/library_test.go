package prompts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydata/quarry/pkg/domain"
)

func TestBuiltinOnly(t *testing.T) {
	lib, err := Open("")
	require.NoError(t, err)

	p, err := lib.Get(context.Background(), domain.NodeRequestClassification)
	require.NoError(t, err)
	assert.Equal(t, string(domain.NodeRequestClassification), p.ID)
	assert.Contains(t, p.Text, "out_of_domain")
	assert.Zero(t, p.Temperature)
}

func TestBuiltinUnknownNode(t *testing.T) {
	lib := &Library{}
	_, err := lib.Get(context.Background(), domain.NodeDataRetrieval)
	require.Error(t, err, "data_retrieval has no prompt; asking for one is a wiring bug")
}

func TestWriteDefaultsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteDefaults(dir))

	lib, err := Open(dir)
	require.NoError(t, err)

	p, err := lib.Get(context.Background(), domain.NodeComputationPlanning)
	require.NoError(t, err)
	assert.Contains(t, p.Text, "RunStep")
	assert.Equal(t, builtin[domain.NodeComputationPlanning].Description, p.Description)
}

func TestDirectoryOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	doc := `---
description: tuned classifier
temperature: 0.2
---
Classify the request. Answer with the schema only.`
	path := filepath.Join(dir, string(domain.NodeRequestClassification)+".md")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	lib, err := Open(dir)
	require.NoError(t, err)

	p, err := lib.Get(context.Background(), domain.NodeRequestClassification)
	require.NoError(t, err)
	assert.Equal(t, "tuned classifier", p.Description)
	assert.InDelta(t, 0.2, p.Temperature, 1e-9)
	assert.Equal(t, "Classify the request. Answer with the schema only.", p.Text)
}

func TestDirectoryFallsBackPerNode(t *testing.T) {
	// A directory that overrides one prompt still serves builtins for the rest.
	dir := t.TempDir()
	doc := "---\ndescription: only this one\n---\nCustom summarizer."
	path := filepath.Join(dir, string(domain.NodeSummarization)+".md")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	lib, err := Open(dir)
	require.NoError(t, err)

	custom, err := lib.Get(context.Background(), domain.NodeSummarization)
	require.NoError(t, err)
	assert.Equal(t, "Custom summarizer.", custom.Text)

	fallback, err := lib.Get(context.Background(), domain.NodePuntResponse)
	require.NoError(t, err)
	assert.Equal(t, builtin[domain.NodePuntResponse].Text, fallback.Text)
}
