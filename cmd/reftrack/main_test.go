package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/reftrack/internal/reftrack"
	"github.com/scrypster/reftrack/internal/reftrack/asset"
	"github.com/scrypster/reftrack/internal/reftrack/reftracktest"
	"github.com/scrypster/reftrack/pkg/types"
)

type cli struct {
	t       *testing.T
	project *reftracktest.Project
	doc     string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	for _, key := range []string{
		"REFTRACK_DOCUMENT", "REFTRACK_REGISTRY", "REFTRACK_MANIFEST", "REFTRACK_POSTGRES_DSN",
		"REFTRACK_LOG_LEVEL", "REFTRACK_LOG_FORMAT", "REFTRACK_LOG_FILE", "REFTRACK_EVENTS_PATH",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("REFTRACK_LOG_LEVEL", "error")

	return &cli{
		t:       t,
		project: reftracktest.NewProject(t),
		doc:     filepath.Join(t.TempDir(), "shot.db"),
	}
}

// run executes one command against the test document and returns stdout.
func (c *cli) run(wantCode int, args ...string) string {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"-document", c.doc, "-manifest", c.project.ManifestPath}, args...)
	code := run(context.Background(), full, &stdout, &stderr)
	require.Equal(c.t, wantCode, code, "stderr: %s", stderr.String())
	return stdout.String()
}

func (c *cli) json(v any, args ...string) {
	c.t.Helper()
	out := c.run(0, append([]string{"-json"}, args...)...)
	require.NoError(c.t, json.Unmarshal([]byte(out), v), out)
}

func TestRun_Usage(t *testing.T) {
	c := newCLI(t)

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run(context.Background(), nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage: reftrack")

	c.run(2, "frobnicate")
	c.run(2, "status")
	c.run(2, "create")
	c.run(2, "perform", "-bogus", "x", "load")
}

func TestRun_ReferenceLifecycle(t *testing.T) {
	c := newCLI(t)

	id := strings.TrimSpace(c.run(0, "create", "-type", asset.Tag))
	require.NotEmpty(t, id)

	out := c.run(0, "perform", "-file", strconv.Itoa(reftracktest.SmurfRigV1), id, string(types.ActionReference))
	assert.Equal(t, "reference: loaded\n", out)

	var info types.EntityInfo
	c.json(&info, "info", id)
	assert.Equal(t, id, info.ID)
	assert.Equal(t, types.StatusLoaded, info.Status)
	assert.Equal(t, "smurf_1", info.Namespace)
	assert.Equal(t, reftracktest.SmurfRigV1, info.FileID)

	c.run(0, "perform", id, string(types.ActionUnload))
	assert.Equal(t, "unloaded\n", c.run(0, "status", id))

	var restricted map[string]bool
	c.json(&restricted, "restricted", id, string(types.ActionImportReference))
	assert.True(t, restricted["restricted"])

	var result reftrack.Result
	c.json(&result, "perform", id, string(types.ActionImportReference))
	assert.True(t, result.Restricted)
	assert.Equal(t, types.StatusUnloaded, result.Status)

	// reference is not a transition out of unloaded.
	c.run(1, "perform", id, string(types.ActionReference))

	c.run(0, "perform", id, string(types.ActionLoad))
	c.run(0, "perform", "-file", strconv.Itoa(reftracktest.SmurfRigV2), id, string(types.ActionReplace))
	c.json(&info, "info", id)
	assert.Equal(t, types.StatusLoaded, info.Status)
	assert.Equal(t, reftracktest.SmurfRigV2, info.FileID)

	assert.Equal(t, "removed\n", c.run(0, "remove", id))

	var infos []types.EntityInfo
	c.json(&infos, "list")
	assert.Empty(t, infos)
}

func TestRun_SuggestionsAndOptions(t *testing.T) {
	c := newCLI(t)

	c.run(1, "suggestions")
	c.run(0, "mark", "-file", strconv.Itoa(reftracktest.ShotAnimV1))

	var suggestions []types.Suggestion
	c.json(&suggestions, "suggestions")
	require.Len(t, suggestions, 2)
	assert.Equal(t, "smurf", suggestions[0].Element.Name)
	assert.Equal(t, "hat", suggestions[1].Element.Name)

	id := strings.TrimSpace(c.run(0, "create", "-type", asset.Tag))
	c.run(0, "perform", "-file", strconv.Itoa(reftracktest.HatRigV1), id, string(types.ActionReference))

	c.json(&suggestions, "suggestions")
	require.Len(t, suggestions, 1)
	assert.Equal(t, "smurf", suggestions[0].Element.Name)

	var options []struct {
		FileID int `json:"file_id"`
	}
	c.json(&options, "options", "-element", strconv.Itoa(reftracktest.SmurfID), id)
	require.Len(t, options, 2)
	assert.Equal(t, reftracktest.SmurfRigV1, options[0].FileID)
	assert.Equal(t, reftracktest.SmurfRigV2, options[1].FileID)
}

func TestRun_SaveAndEvents(t *testing.T) {
	c := newCLI(t)
	events := t.TempDir()
	t.Setenv("REFTRACK_EVENTS_PATH", events)

	id := strings.TrimSpace(c.run(0, "create", "-type", asset.Tag))
	c.run(0, "perform", "-file", strconv.Itoa(reftracktest.HatRigV1), id, string(types.ActionImportContent))

	scene := filepath.Join(t.TempDir(), "saved.yaml")
	c.run(0, "save", scene)
	data, err := os.ReadFile(scene)
	require.NoError(t, err)
	assert.Contains(t, string(data), reftrack.EntityNodeType)

	entries, err := os.ReadDir(filepath.Join(events, "events"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "one event for create and one for import")
}

func TestRun_RegistrySyncNeedsPostgres(t *testing.T) {
	c := newCLI(t)
	c.run(1, "registry-sync")
}

func TestRun_WatchDrainsEvents(t *testing.T) {
	c := newCLI(t)
	c.run(1, "watch")

	events := t.TempDir()
	t.Setenv("REFTRACK_EVENTS_PATH", events)
	id := strings.TrimSpace(c.run(0, "create", "-type", asset.Tag))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var stdout, stderr bytes.Buffer
	code := run(ctx, []string{"-document", c.doc, "-manifest", c.project.ManifestPath, "watch"}, &stdout, &stderr)
	require.Equal(t, 0, code, "stderr: %s", stderr.String())

	var evt struct {
		Type     string `json:"type"`
		EntityID string `json:"entity_id"`
		Document string `json:"document"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &evt), stdout.String())
	assert.Equal(t, reftrack.EventEntityCreated, evt.Type)
	assert.Equal(t, id, evt.EntityID)
	assert.Equal(t, c.doc, evt.Document)
}
