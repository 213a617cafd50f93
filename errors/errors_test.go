package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_Format(t *testing.T) {
	base := stderrors.New("connection refused")
	err := Wrap(base, "Store", "Create", "persist rule")

	assert.Equal(t, "Store.Create: persist rule failed: connection refused", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Nil(t, Wrap(nil, "Store", "Create", "persist rule"))
}

func TestClassifiedWrappers(t *testing.T) {
	base := stderrors.New("boom")

	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		check func(error) bool
		class ErrorClass
	}{
		{"transient", WrapTransient, IsTransient, ErrorTransient},
		{"invalid", WrapInvalid, IsInvalid, ErrorInvalid},
		{"fatal", WrapFatal, IsFatal, ErrorFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.wrap(base, "Engine", "AddRule", "do thing")
			require.Error(t, err)
			assert.True(t, tt.check(err))
			assert.Equal(t, tt.class, Classify(err))
			assert.ErrorIs(t, err, base)
			assert.Nil(t, tt.wrap(nil, "Engine", "AddRule", "do thing"))
		})
	}
}

func TestIsTransient_Heuristics(t *testing.T) {
	assert.True(t, IsTransient(ErrConnectionTimeout))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(stderrors.New("dial tcp: i/o timeout")))
	assert.False(t, IsTransient(stderrors.New("malformed payload")))
	assert.False(t, IsTransient(nil))
}

func TestIsInvalid_Sentinels(t *testing.T) {
	assert.True(t, IsInvalid(ErrValidationFailed))
	assert.True(t, IsInvalid(ErrPermissionDenied))
	assert.True(t, IsInvalid(fmt.Errorf("add: %w", ErrRuleExists)))
	assert.False(t, IsInvalid(ErrRuleNotFound))
}

func TestClassify_Defaults(t *testing.T) {
	// Unknown errors default to transient so callers may retry
	assert.Equal(t, ErrorTransient, Classify(stderrors.New("mystery")))
	assert.Equal(t, ErrorFatal, Classify(ErrInvalidConfig))
}

func TestRetryConfig_ShouldRetry(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.True(t, cfg.ShouldRetry(ErrConnectionLost, 0))
	assert.False(t, cfg.ShouldRetry(ErrConnectionLost, cfg.MaxRetries))
	assert.False(t, cfg.ShouldRetry(ErrValidationFailed, 0))
	assert.False(t, cfg.ShouldRetry(nil, 0))
}

func TestRetryConfig_ToRetryConfig(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BackoffFactor: 2.0}
	converted := cfg.ToRetryConfig()

	assert.Equal(t, 4, converted.MaxAttempts) // retries + initial attempt
	assert.True(t, converted.AddJitter)
}
