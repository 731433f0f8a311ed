package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"classified", NewError(KindNavigation, "x"), KindNavigation},
		{"wrapped", fmt.Errorf("outer: %w", AuthError(ReasonTimeout, "login", nil)), KindAuthentication},
		{"deadline", context.DeadlineExceeded, KindGateTimeout},
		{"plain", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrapError_KeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("chrome exited")
	err := WrapError(cause, KindSessionLaunch, "browser: launch")
	assert.True(t, errors.Is(err, cause))
	assert.True(t, err.Retryable)
	assert.Contains(t, err.Error(), "session_launch_failure")
}

func TestAuthError_Reason(t *testing.T) {
	t.Parallel()

	err := AuthError(ReasonBadCredentials, "password rejected twice", nil)
	assert.Equal(t, ReasonBadCredentials, ReasonOf(err))
	assert.Equal(t, "password rejected twice (bad_credentials)", PublicMessage(err))
}

func TestPublicMessage_HidesInternals(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "internal error", PublicMessage(errors.New("password=hunter2")))
	assert.Equal(t, "request deadline exceeded", PublicMessage(context.DeadlineExceeded))
	wrapped := WrapError(errors.New("secret detail"), KindNavigation, "navigate")
	assert.Equal(t, "navigate", PublicMessage(wrapped))
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(NewTransientError(errors.New("x"))))
	assert.True(t, IsTransient(errors.New("page load error net::ERR_TIMED_OUT")))
	assert.False(t, IsTransient(errors.New("selector not found")))
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRetryable(NewError(KindGateTimeout, "x")))
	assert.False(t, IsRetryable(NewError(KindCacheUnavailable, "x")))
	assert.True(t, IsRetryable(errors.New("websocket: close 1006")))
	assert.True(t, IsKind(NewError(KindNavigation, "x"), KindNavigation))
}
