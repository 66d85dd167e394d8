package automation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/wobdriver/api/schemas"
	"github.com/xkilldash9x/wobdriver/internal/config"
	"github.com/xkilldash9x/wobdriver/internal/gesture"
	"github.com/xkilldash9x/wobdriver/internal/mocks"
)

const envURL = "https://niumascript.com/scalewob-env/shop-1/index.html"

const buttonJSON = `{"tagName":"BUTTON","id":"go","className":"btn primary","text":"Go","geometry":{"x":300,"y":150,"width":80,"height":40}}`

const inputJSON = `{"tagName":"INPUT","id":"city","className":"field","text":"","type":"text","value":"NY","geometry":{"x":100,"y":40,"width":200,"height":30}}`

const loadedState = `{"url":"` + envURL + `","title":"Shop","viewport":{"width":390,"height":844,"scrollX":0,"scrollY":0},"readyState":"complete"}`

// steppingClock advances one millisecond per reading.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.EnvironmentCfg.EnvID = "shop-1"
	cfg.EvaluationCfg.StartSettle = 0
	return cfg
}

func isCommand(name schemas.CommandName) any {
	return mock.MatchedBy(func(cmd schemas.Command) bool { return cmd.Name == name })
}

// startedAutomation returns a started Automation whose commands go to ch.
func startedAutomation(t *testing.T, ch *mocks.MockChannel, cfg *config.Config) (*Automation, *mocks.MockHost) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	host := mocks.NewMockHost()
	host.On("Navigate", mock.Anything, mock.Anything).Return(nil)
	host.On("Close", mock.Anything).Return(nil).Maybe()

	clock := &steppingClock{now: time.Unix(1700000000, 0)}
	a, err := New(cfg, zaptest.NewLogger(t),
		WithHostFactory(func(ctx context.Context, _ config.BrowserConfig, _ *zap.Logger) (Host, error) {
			return host, nil
		}),
		WithChannel(ch),
		WithClock(clock.Now),
	)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a, host
}

func TestNew_RejectsUnknownQuality(t *testing.T) {
	cfg := testConfig()
	cfg.EnvironmentCfg.ScreenshotQuality = "ultra"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestNew_ScaleFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.EnvironmentCfg.ScreenshotQuality = "low"
	a, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, a.Scale())

	cfg.EnvironmentCfg.ScaleFactor = 2
	a, err = New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 2.0, a.Scale())
}

func TestStart_LoadsEnvironmentOnce(t *testing.T) {
	ch := new(mocks.MockChannel)
	a, host := startedAutomation(t, ch, nil)

	require.NoError(t, a.Start(context.Background()))
	host.AssertNumberOfCalls(t, "Navigate", 1)
	host.AssertCalled(t, "Navigate", mock.Anything, envURL)
}

func TestStart_ClosesHostWhenNavigationFails(t *testing.T) {
	host := mocks.NewMockHost()
	host.On("Navigate", mock.Anything, envURL).Return(errors.New("net::ERR_NAME_NOT_RESOLVED"))
	host.On("Close", mock.Anything).Return(nil).Once()

	a, err := New(testConfig(), zaptest.NewLogger(t), WithHostFactory(func(context.Context, config.BrowserConfig, *zap.Logger) (Host, error) {
		return host, nil
	}))
	require.NoError(t, err)

	err = a.Start(context.Background())
	assert.ErrorContains(t, err, "ERR_NAME_NOT_RESOLVED")
	host.AssertExpectations(t)

	_, err = a.GetState(context.Background())
	assert.ErrorIs(t, err, schemas.ErrTransportNotReady)
}

func TestStart_RequiresEnvironment(t *testing.T) {
	cfg := testConfig()
	cfg.EnvironmentCfg.EnvID = ""
	a, err := New(cfg, nil, WithHostFactory(func(context.Context, config.BrowserConfig, *zap.Logger) (Host, error) {
		t.Fatal("host must not be launched without an environment")
		return nil, nil
	}))
	require.NoError(t, err)
	assert.Error(t, a.Start(context.Background()))
}

func TestStart_DirectModeEvaluatesGestureLibrary(t *testing.T) {
	host := mocks.NewMockHost()
	host.On("Navigate", mock.Anything, envURL).Return(nil)
	host.On("Evaluate", mock.Anything, mock.MatchedBy(func(expr string) bool {
		return strings.Contains(expr, `.dispatch("get-state", {})`)
	})).Return([]byte(`{"success":true,"result":`+loadedState+`}`), nil)
	host.On("Close", mock.Anything).Return(nil)

	a, err := New(testConfig(), zaptest.NewLogger(t), WithHostFactory(func(context.Context, config.BrowserConfig, *zap.Logger) (Host, error) {
		return host, nil
	}))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	state, err := a.GetState(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Loaded())
	assert.Equal(t, "Shop", state.Title)

	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, a.Close(context.Background()))
	host.AssertNumberOfCalls(t, "Close", 1)
}

func TestStart_RelayedModeCorrelatesResponses(t *testing.T) {
	cfg := testConfig()
	cfg.ChannelCfg.Mode = "relayed"
	cfg.ChannelCfg.FrameSelector = "#env-frame"

	host := mocks.NewMockHost()
	poster := new(mocks.MockPoster)
	host.On("InstallRelay", mock.Anything, gesture.DefaultRelayBindingName, mock.Anything).Return(nil)
	host.On("Navigate", mock.Anything, envURL).Return(nil)
	host.On("FramePoster", "#env-frame").Return(poster)
	host.On("Close", mock.Anything).Return(nil)

	poster.On("Post", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		env := args.Get(1).(schemas.CommandEnvelope)
		assert.Equal(t, schemas.CommandGetState, env.Payload.Command)
		// Unrelated chatter first, then the matching response.
		assert.False(t, host.Deliver([]byte(`{"type":"response","id":"someone-else","payload":{"success":true}}`)))
		assert.True(t, host.Deliver([]byte(`{"type":"response","id":"`+env.ID+`","payload":{"success":true,"result":`+loadedState+`}}`)))
	}).Return(nil)

	a, err := New(cfg, zaptest.NewLogger(t), WithHostFactory(func(context.Context, config.BrowserConfig, *zap.Logger) (Host, error) {
		return host, nil
	}))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	defer a.Close(context.Background())

	state, err := a.GetState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, envURL, state.URL)
	host.AssertExpectations(t)
	poster.AssertExpectations(t)
}

func TestGestures_BeforeStart(t *testing.T) {
	a, err := New(testConfig(), nil)
	require.NoError(t, err)

	_, err = a.Click(context.Background(), 10, 10, 0)
	assert.ErrorIs(t, err, schemas.ErrTransportNotReady)
	assert.ErrorIs(t, err, &schemas.CommandError{Command: schemas.CommandClick, Kind: schemas.KindTransportNotReady})

	_, err = a.Screenshot(context.Background())
	assert.ErrorIs(t, err, schemas.ErrTransportNotReady)
	assert.Empty(t, a.GetTrajectory())
}

func TestScreenshot(t *testing.T) {
	ch := new(mocks.MockChannel)
	a, host := startedAutomation(t, ch, nil)
	host.On("Screenshot", mock.Anything).Return([]byte("\x89PNG"), nil)

	png, err := a.Screenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png)
}
