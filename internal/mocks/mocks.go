// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/wobdriver/api/schemas"
	"github.com/xkilldash9x/wobdriver/internal/channel"
	"github.com/xkilldash9x/wobdriver/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Environment() config.EnvironmentConfig {
	args := m.Called()
	return args.Get(0).(config.EnvironmentConfig)
}

func (m *MockConfig) Channel() config.ChannelConfig {
	args := m.Called()
	return args.Get(0).(config.ChannelConfig)
}

func (m *MockConfig) Evaluation() config.EvaluationConfig {
	args := m.Called()
	return args.Get(0).(config.EvaluationConfig)
}

func (m *MockConfig) Plan() config.PlanConfig {
	args := m.Called()
	return args.Get(0).(config.PlanConfig)
}

// --- Setters ---

func (m *MockConfig) SetBrowserHeadless(b bool)     { m.Called(b) }
func (m *MockConfig) SetEnvironmentID(id string)    { m.Called(id) }
func (m *MockConfig) SetEnvironmentURL(u string)    { m.Called(u) }
func (m *MockConfig) SetScreenshotQuality(q string) { m.Called(q) }
func (m *MockConfig) SetChannelMode(mode string)    { m.Called(mode) }
func (m *MockConfig) SetPlanParallel(n int)         { m.Called(n) }

// -- Channel Mock --

// MockChannel mocks channel.Channel.
type MockChannel struct {
	mock.Mock
}

var _ channel.Channel = (*MockChannel)(nil)

func (m *MockChannel) Send(ctx context.Context, cmd schemas.Command) (json.RawMessage, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	switch v := args.Get(0).(type) {
	case string:
		return json.RawMessage(v), args.Error(1)
	default:
		return v.(json.RawMessage), args.Error(1)
	}
}

// -- Poster Mock --

// MockPoster mocks channel.Poster.
type MockPoster struct {
	mock.Mock
}

func (m *MockPoster) Post(ctx context.Context, env schemas.CommandEnvelope) error {
	return m.Called(ctx, env).Error(0)
}

// -- Host Mock --

// MockHost mocks the page host driven by an Automation. The deliver function
// handed to InstallRelay is kept so tests can inject relay responses.
type MockHost struct {
	mock.Mock
	mutex   sync.Mutex
	deliver func([]byte) bool
}

func NewMockHost() *MockHost {
	return &MockHost{}
}

func (m *MockHost) Evaluate(ctx context.Context, expression string) ([]byte, error) {
	args := m.Called(ctx, expression)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockHost) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockHost) InstallRelay(ctx context.Context, bindingName string, deliver func([]byte) bool) error {
	args := m.Called(ctx, bindingName, deliver)
	if args.Error(0) == nil {
		m.mutex.Lock()
		m.deliver = deliver
		m.mutex.Unlock()
	}
	return args.Error(0)
}

// Deliver hands raw to the function registered through InstallRelay.
func (m *MockHost) Deliver(raw []byte) bool {
	m.mutex.Lock()
	deliver := m.deliver
	m.mutex.Unlock()
	if deliver == nil {
		return false
	}
	return deliver(raw)
}

func (m *MockHost) FramePoster(frameSelector string) channel.Poster {
	args := m.Called(frameSelector)
	return args.Get(0).(channel.Poster)
}

func (m *MockHost) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockHost) Close(ctx context.Context) error { return m.Called(ctx).Error(0) }

// -- Driver Mock --

// MockDriver mocks the gesture surface of an Automation as used by plan runs.
type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) Click(ctx context.Context, x, y float64, delay time.Duration) (schemas.ElementDescriptor, error) {
	args := m.Called(ctx, x, y, delay)
	return args.Get(0).(schemas.ElementDescriptor), args.Error(1)
}

func (m *MockDriver) Type(ctx context.Context, text string, typingDelay time.Duration) (schemas.ElementDescriptor, error) {
	args := m.Called(ctx, text, typingDelay)
	return args.Get(0).(schemas.ElementDescriptor), args.Error(1)
}

func (m *MockDriver) Scroll(ctx context.Context, x, y float64, direction string, distance int) (schemas.ScrollDelta, error) {
	args := m.Called(ctx, x, y, direction, distance)
	return args.Get(0).(schemas.ScrollDelta), args.Error(1)
}

func (m *MockDriver) LongPress(ctx context.Context, x, y float64, duration time.Duration) (schemas.ElementDescriptor, error) {
	args := m.Called(ctx, x, y, duration)
	return args.Get(0).(schemas.ElementDescriptor), args.Error(1)
}

func (m *MockDriver) Drag(ctx context.Context, x, y float64, direction string, distance int) (schemas.ElementDescriptor, error) {
	args := m.Called(ctx, x, y, direction, distance)
	return args.Get(0).(schemas.ElementDescriptor), args.Error(1)
}

func (m *MockDriver) Back(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *MockDriver) GetState(ctx context.Context) (schemas.PageState, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.PageState), args.Error(1)
}

func (m *MockDriver) GetElementInfo(ctx context.Context, x, y float64) (schemas.ElementInfo, error) {
	args := m.Called(ctx, x, y)
	return args.Get(0).(schemas.ElementInfo), args.Error(1)
}

func (m *MockDriver) GetElementInfoBySelector(ctx context.Context, selector string) (schemas.SelectorMatch, error) {
	args := m.Called(ctx, selector)
	return args.Get(0).(schemas.SelectorMatch), args.Error(1)
}

func (m *MockDriver) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockDriver) StartEvaluation(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *MockDriver) FinishEvaluation(ctx context.Context, params map[string]any) (schemas.EvaluationResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(schemas.EvaluationResult), args.Error(1)
}

func (m *MockDriver) GetTrajectory() []schemas.TrajectoryEntry {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]schemas.TrajectoryEntry)
}
