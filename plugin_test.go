package airbrake

import (
	"context"
	"net/http"
	"testing"

	"github.com/roadrunner-server/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockConfigurer struct {
	sections map[string]*Config
}

func (m *mockConfigurer) Has(name string) bool {
	_, ok := m.sections[name]
	return ok
}

func (m *mockConfigurer) UnmarshalKey(name string, out any) error {
	*out.(*Config) = *m.sections[name]
	return nil
}

type mockLogger struct{}

func (mockLogger) NamedLogger(string) *zap.Logger { return zap.NewNop() }

func TestPlugin_Disabled(t *testing.T) {
	p := &Plugin{}
	err := p.Init(&mockConfigurer{}, mockLogger{})

	require.Error(t, err)
	assert.True(t, errors.Is(errors.Disabled, err))
}

func TestPlugin_Lifecycle(t *testing.T) {
	p := &Plugin{}
	require.NoError(t, p.Init(&mockConfigurer{sections: map[string]*Config{
		PluginName: {ProjectID: testProjectID, ProjectKey: testProjectKey, Environment: "production"},
	}}, mockLogger{}))

	assert.Equal(t, PluginName, p.Name())
	assert.Equal(t, DefaultHost, p.config.Host)
	assert.Same(t, p.notifier, p.Reporter())
	assert.Same(t, p.notifier, p.Notifier())
	assert.Len(t, p.Provides(), 1)
	assert.Len(t, p.MetricsCollector(), 1)
	assert.IsType(t, &ZapOutcomeLogger{}, p.notifier.outcome)

	errCh := p.Serve()
	assert.Empty(t, errCh)

	require.NoError(t, p.Stop(context.Background()))
	assert.Error(t, p.notifier.Notify(&Exception{msg: "after stop"}))
}

func TestPlugin_InvalidConfig(t *testing.T) {
	p := &Plugin{}
	err := p.Init(&mockConfigurer{sections: map[string]*Config{
		PluginName: {Format: "yaml"},
	}}, mockLogger{})
	assert.Error(t, err)
}

func TestRPC_Notify(t *testing.T) {
	doer := newRecordingDoer(http.StatusCreated, createdBody)
	n, _ := newTestNotifier(t, testConfig(), doer)
	rpc := NewRPC(n, zap.NewNop())

	notice := &Notice{Errors: []*ErrorEntry{{Type: "TypeError", Message: "TypeError: x", Backtrace: fallbackBacktrace()}}}

	var resp Response
	require.NoError(t, rpc.Notify(notice, &resp))
	assert.Equal(t, Response{ID: "12345", URL: "https://example/", Status: StatusSuccess}, resp)

	var accepted bool
	require.NoError(t, rpc.NotifyAsync(notice, &accepted))
	assert.True(t, accepted)

	require.NoError(t, n.Flush(context.Background()))
	assert.Len(t, doer.calls(), 2)
}

func TestRPC_Rejected(t *testing.T) {
	cfg := testConfig()
	cfg.ProjectKey = ""
	n, _ := newTestNotifier(t, cfg, newRecordingDoer(http.StatusCreated, createdBody))
	rpc := NewRPC(n, zap.NewNop())

	var resp Response
	assert.Error(t, rpc.Notify(nil, &resp))

	accepted := true
	assert.Error(t, rpc.NotifyAsync(&Notice{}, &accepted))
	assert.False(t, accepted)
}
