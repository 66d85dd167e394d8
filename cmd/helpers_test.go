// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/wobdriver/internal/config"
	"github.com/xkilldash9x/wobdriver/internal/mocks"
	"github.com/xkilldash9x/wobdriver/internal/observability"
)

// resetForTest clears process-wide state touched by the root command.
func resetForTest(t *testing.T) {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
	// Keep ./config.yaml of the developer's checkout out of the tests.
	t.Chdir(t.TempDir())
}

// executeCommand runs the root command with args and returns its output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// writeFile writes content to name under dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.LoggerCfg.Level = "error"
	return cfg
}

// fakeSession is a session whose gestures are served by a MockDriver.
type fakeSession struct {
	*mocks.MockDriver
	envID    string
	startErr error

	mu      sync.Mutex
	started bool
	closed  bool
}

func (f *fakeSession) Scale() float64 { return 3 }

func (f *fakeSession) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return f.startErr
}

func (f *fakeSession) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSession) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeFactory hands out one prepared fakeSession per environment ID.
type fakeFactory struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	configs  map[string]config.EnvironmentConfig
}

func newFakeFactory(sessions ...*fakeSession) *fakeFactory {
	f := &fakeFactory{sessions: map[string]*fakeSession{}, configs: map[string]config.EnvironmentConfig{}}
	for _, s := range sessions {
		f.sessions[s.envID] = s
	}
	return f
}

func (f *fakeFactory) create(cfg config.Interface, _ *zap.Logger) (session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	env := cfg.Environment()
	f.configs[env.EnvID] = env
	return f.sessions[env.EnvID], nil
}
