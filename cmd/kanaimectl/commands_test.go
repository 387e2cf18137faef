package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanaime/internal/config"
	"kanaime/internal/ime"
	"kanaime/internal/ipc"
	"kanaime/internal/store"
)

type mapEngine map[string][]string

func (e mapEngine) Init(ctx context.Context, s ime.EngineSettings) error { return nil }

// ComposedText treats the last candidate as the kana reading.
func (e mapEngine) ComposedText(ctx context.Context, input string, rc ime.RequestContext) (string, error) {
	if c, ok := e[input]; ok && len(c) > 0 {
		return c[len(c)-1], nil
	}
	return input, nil
}

func (e mapEngine) Candidates(ctx context.Context, input string, rc ime.RequestContext) ([]string, error) {
	if c, ok := e[input]; ok {
		return c, nil
	}
	return []string{input}, nil
}

func (e mapEngine) Learn(ctx context.Context, candidate string) error { return nil }
func (e mapEngine) Shutdown(ctx context.Context) error                { return nil }

// setup isolates the environment and returns the config file path.
func setup(t *testing.T) (string, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("KANAIME_DATA_DIR", dir)
	t.Setenv("KANAIME_CONFIG_DIR", dir)
	for _, k := range []string{
		"KANAIME_ENGINE_SOCKET", "KANAIME_DICTIONARY_PATH", "KANAIME_AI_ASSIST_ENABLED",
		"KANAIME_AI_ASSIST_LIMIT", "KANAIME_AI_ASSIST_WEIGHT_PATH", "KANAIME_LEARNING_MODE",
		"KANAIME_MEMORY_PATH", "KANAIME_LOG_LEVEL", "KANAIME_LOG_PATH",
	} {
		t.Setenv(k, "")
	}

	cfg := config.DefaultConfig()
	cfg.Cache.Enabled = false
	cfg.Engine.SocketPath = filepath.Join(dir, "absent.sock")
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, config.SaveConfig(cfg, path))
	return path, cfg
}

func startEngine(t *testing.T, eng ime.ConversionEngine) {
	t.Helper()
	dir, err := os.MkdirTemp("", "kctl")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	srv, err := ipc.Listen(filepath.Join(dir, "engine.sock"), eng, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		srv.Close()
		<-done
	})
	t.Setenv("KANAIME_ENGINE_SOCKET", srv.SocketPath())
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	err := dispatch(&buf, cfgPath, args)
	return buf.String(), err
}

func TestMemoryCommands(t *testing.T) {
	cfgPath, cfg := setup(t)
	ctx := context.Background()

	db, err := store.Open(cfg.Memory.Path)
	require.NoError(t, err)
	require.NoError(t, db.Record(ctx, "ka", "蚊"))
	require.NoError(t, db.Record(ctx, "ka", "蚊"))
	require.NoError(t, db.Record(ctx, "kana", "仮名"))
	require.NoError(t, db.Close())

	out, err := run(t, cfgPath, "memory", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Readings:   2")
	assert.Contains(t, out, "Selections: 2")

	out, err = run(t, cfgPath, "memory", "list", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "仮名")
	assert.NotContains(t, out, "蚊")

	out, err = run(t, cfgPath, "memory", "forget", "ka")
	require.NoError(t, err)
	assert.Contains(t, out, "Forgot 1 selection(s)")

	out, err = run(t, cfgPath, "memory", "prune", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Pruned 1 selection(s)")

	out, err = run(t, cfgPath, "memory", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No selections remembered.")
}

func TestMemoryCommandErrors(t *testing.T) {
	cfgPath, _ := setup(t)

	_, err := run(t, cfgPath, "memory", "stats")
	assert.ErrorContains(t, err, "no learning memory")

	_, err = run(t, cfgPath, "memory", "bogus")
	var uerr usageError
	assert.ErrorAs(t, err, &uerr)

	_, err = run(t, cfgPath, "memory")
	assert.ErrorAs(t, err, &uerr)
}

func TestConfigCommands(t *testing.T) {
	cfgPath, cfg := setup(t)

	out, err := run(t, cfgPath, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "[engine]")
	assert.Contains(t, out, cfg.Memory.Path)

	out, err = run(t, cfgPath, "config", "check")
	require.NoError(t, err)
	assert.Equal(t, "Configuration OK.\n", out)

	cfg.Engine.AIAssistInferenceLimit = 0
	require.NoError(t, config.SaveConfig(cfg, cfgPath))
	_, err = run(t, cfgPath, "config", "check")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestReplayCommand(t *testing.T) {
	cfgPath, _ := setup(t)
	startEngine(t, mapEngine{"kana": {"仮名", "カナ", "かな"}})

	out, err := run(t, cfgPath, "replay", "kana<space><down>")
	require.NoError(t, err)
	assert.Contains(t, out, "Phase: selecting")
	assert.Contains(t, out, "> 2. カナ")
	assert.Contains(t, out, "  1. 仮名")

	out, err = run(t, cfgPath, "replay", "-json", "-text", "x", "kana<enter>")
	require.NoError(t, err)
	var res replayOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "xかな", res.Text)
	assert.Equal(t, "idle", res.Phase)
	assert.Len(t, res.Steps, 5)
	assert.Nil(t, res.Metrics)

	out, err = run(t, cfgPath, "replay", "-metrics", "kana<enter>")
	require.NoError(t, err)
	assert.Contains(t, out, "kanaime_commits_total 1\n")
	assert.Contains(t, out, "# TYPE kanaime_engine_latency_seconds histogram")
}

func TestReplayBadKeys(t *testing.T) {
	cfgPath, _ := setup(t)

	_, err := run(t, cfgPath, "replay", "<nope>")
	assert.ErrorContains(t, err, "unknown key")

	_, err = run(t, cfgPath, "replay")
	var uerr usageError
	assert.ErrorAs(t, err, &uerr)
}

func TestEnginePing(t *testing.T) {
	cfgPath, _ := setup(t)

	_, err := run(t, cfgPath, "engine", "ping")
	assert.ErrorIs(t, err, ipc.ErrEngineNotRunning)

	startEngine(t, mapEngine{})
	out, err := run(t, cfgPath, "engine", "ping")
	require.NoError(t, err)
	assert.Contains(t, out, "answered")
}

func TestUnknownCommand(t *testing.T) {
	cfgPath, _ := setup(t)
	_, err := run(t, cfgPath, "frobnicate")
	assert.ErrorContains(t, err, "unknown command")

	out, err := run(t, cfgPath, "help")
	require.NoError(t, err)
	assert.Contains(t, out, "kanaimectl")
}
