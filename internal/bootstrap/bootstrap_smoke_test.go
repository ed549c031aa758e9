package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSmokeConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
log:
  log_level: error
  log_dir: ` + filepath.Join(dir, "logs") + `
storage:
  path: ` + filepath.Join(dir, "tasks.db") + `
assistant:
  enabled: false
cache:
  enabled: false
web:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestInitGraphOrder(t *testing.T) {
	steps := InitGraph()
	want := []string{
		"config:load",
		"logging:init-provider",
		"observability:setup-hooks",
		"storage:open-database",
		"cache:connect",
		"pipeline:init",
		"assistant:init",
	}
	require.Len(t, steps, len(want))
	for i, step := range steps {
		assert.Equal(t, want[i], step.ID, "step %d", i)
	}
}

func TestExecuteInitGraph(t *testing.T) {
	state := &appState{opts: Options{
		ConfigPath: writeSmokeConfig(t),
		UseDotEnv:  false,
	}}

	require.NoError(t, executeInitSteps(context.Background(), InitGraph(), state))

	require.NotNil(t, state.config)
	require.NotNil(t, state.logger)
	require.NotNil(t, state.repo)
	require.NotNil(t, state.bus)
	require.NotNil(t, state.tasks)
	require.NotNil(t, state.reminders)
	require.NotNil(t, state.engineFactory)
	assert.Nil(t, state.relay, "assistant disabled in config")
	assert.Nil(t, state.cache, "cache disabled in config")

	state.bus.Shutdown()
	state.logger.Close()
	if state.observabilityShutdown != nil {
		_ = state.observabilityShutdown(context.Background())
	}
}

func TestExecuteInitStepsRejectsUnsatisfiedDependency(t *testing.T) {
	steps := []initStep{
		{
			ID:        "second",
			DependsOn: []string{"first"},
			Execute:   func(context.Context, *appState) error { return nil },
		},
	}
	err := executeInitSteps(context.Background(), steps, &appState{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency first not satisfied")
}
