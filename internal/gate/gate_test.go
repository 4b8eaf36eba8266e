package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weld/internal/config"
	"weld/internal/logger"
	"weld/pkg/models"
)

func newNotification(url string) models.Notification {
	return models.Notification{
		ID:        "n-1",
		Source:    "eventgrid",
		Timestamp: time.Now(),
		Payload:   map[string]interface{}{"url": url},
	}
}

func TestNewGateCompilesRules(t *testing.T) {
	tests := []struct {
		name      string
		exprs     []string
		wantError bool
	}{
		{
			name:  "no rules",
			exprs: nil,
		},
		{
			name:  "valid rule",
			exprs: []string{`payload.url.endsWith(".csv")`},
		},
		{
			name:      "invalid syntax",
			exprs:     []string{`not valid cel!!!`},
			wantError: true,
		},
		{
			name:      "non-bool rule",
			exprs:     []string{`payload.url`},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(config.GateConfig{Expressions: tt.exprs}, logger.NopLogger())
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAdmitEmptyRuleSet(t *testing.T) {
	g, err := New(config.GateConfig{}, logger.NopLogger())
	require.NoError(t, err)

	ok, rules, err := g.Admit(context.Background(), newNotification("https://x/1-a.csv"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, rules)
}

func TestAdmitAllRulesMustPass(t *testing.T) {
	g, err := New(config.GateConfig{
		Expressions: []string{
			`payload.url.endsWith(".csv")`,
			`payload.url.contains("orders-inbound")`,
		},
	}, logger.NopLogger())
	require.NoError(t, err)

	ctx := context.Background()

	ok, rules, err := g.Admit(ctx, newNotification("https://store/orders-inbound/1-a.csv"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"rule-0", "rule-1"}, rules)

	ok, _, err = g.Admit(ctx, newNotification("https://store/other/1-a.csv"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _, err = g.Admit(ctx, newNotification("https://store/orders-inbound/1-a.json"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAdmitFallbackOnEvaluationError(t *testing.T) {
	// payload.missing causes a runtime evaluation error on an empty payload
	tests := []struct {
		name     string
		onError  string
		expected bool
	}{
		{name: "deny fallback", onError: "deny", expected: false},
		{name: "default is deny", onError: "", expected: false},
		{name: "allow fallback", onError: "allow", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(config.GateConfig{
				Expressions: []string{`payload.missing == "x"`},
				Fallback:    config.FallbackConfig{OnError: tt.onError},
			}, logger.NopLogger())
			require.NoError(t, err)

			msg := models.Notification{
				ID:      "n-1",
				Payload: map[string]interface{}{},
			}

			ok, _, err := g.Admit(context.Background(), msg)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
		})
	}
}

func TestStamp(t *testing.T) {
	msg := newNotification("https://x/1-a.csv")
	Stamp(&msg, []string{"rule-0"})

	require.NotNil(t, msg.Metadata.Gate)
	assert.Equal(t, []string{"rule-0"}, msg.Metadata.Gate.Rules)
	assert.False(t, msg.Metadata.Gate.PassedAt.IsZero())
}
