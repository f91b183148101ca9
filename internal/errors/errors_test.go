package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("disk read failed")

	// When: wrapping it
	appErr := New(ErrCodeExtractionFailed, "extract notes.md", originalErr)

	// Then: the chain still reaches the original
	require.NotNil(t, appErr)
	assert.Equal(t, originalErr, errors.Unwrap(appErr))
	assert.True(t, errors.Is(appErr, originalErr))
}

func TestAppError_Error_ReturnsFormattedMessage(t *testing.T) {
	err := New(ErrCodeSearchTimeout, "query exceeded 30s", nil)
	assert.Equal(t, "[ERR_301_SEARCH_TIMEOUT] query exceeded 30s", err.Error())
}

func TestAppError_Is_MatchesSentinelThroughWrapping(t *testing.T) {
	// Given: a timeout wrapped by fmt.Errorf
	err := fmt.Errorf("hybrid search: %w", New(ErrCodeSearchTimeout, "deadline", context.DeadlineExceeded))

	// Then: both the sentinel and the cause match, the other kind does not
	assert.True(t, errors.Is(err, ErrSearchTimeout))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, ErrRetrievalUnavailable))
}

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeDimensionMismatch, CategoryConfig, SeverityFatal, false},
		{ErrCodeCorruptIndex, CategoryIO, SeverityError, false},
		{ErrCodePersistFailed, CategoryIO, SeverityWarning, true},
		{ErrCodeRetrievalUnavailable, CategoryRetrieval, SeverityWarning, true},
		{ErrCodeInvalidK, CategoryValidation, SeverityError, false},
		{ErrCodeInternal, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestIsFatal_FindsWrappedAppError(t *testing.T) {
	err := fmt.Errorf("startup: %w", New(ErrCodeDimensionMismatch, "index has 256 dims", nil))
	assert.True(t, IsFatal(err))
	assert.Equal(t, ErrCodeDimensionMismatch, GetCode(err))
	assert.False(t, IsFatal(errors.New("plain")))
	assert.Equal(t, "", GetCode(errors.New("plain")))
}

func TestFormatForCLI_IncludesHintAndCode(t *testing.T) {
	err := New(ErrCodeDataDirLocked, "data directory is in use", nil).
		WithSuggestion("stop the other lfsearch process")

	out := FormatForCLI(err)

	assert.Contains(t, out, "Error: data directory is in use")
	assert.Contains(t, out, "Hint: stop the other lfsearch process")
	assert.Contains(t, out, "Code: ERR_207_DATA_DIR_LOCKED")
}

func TestFormatForCLI_WrapsPlainErrors(t *testing.T) {
	out := FormatForCLI(errors.New("boom"))
	assert.Contains(t, out, "Error: boom")
	assert.Contains(t, out, ErrCodeInternal)
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}

	got, err := Retry(context.Background(), cfg, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetry_ReturnsLastErrorWhenExhausted(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
	sentinel := errors.New("down")

	_, err := Retry(context.Background(), cfg, func() (string, error) { return "", sentinel })

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
}

func TestRetry_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Retry(ctx, DefaultRetryConfig(), func() (int, error) { return 1, nil })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestBreaker_OpensAfterMaxFailuresAndRecovers(t *testing.T) {
	// Given: a breaker with a controllable clock
	now := time.Unix(1000, 0)
	b := NewBreaker("embedder", 2, time.Minute)
	b.now = func() time.Time { return now }
	fail := func() error { return errors.New("refused") }

	// When: two consecutive failures
	_ = b.Do(fail)
	_ = b.Do(fail)

	// Then: calls are rejected without running
	assert.Equal(t, StateOpen, b.State())
	ran := false
	err := b.Do(func() error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, ran)

	// When: the reset timeout passes and the probe succeeds
	now = now.Add(2 * time.Minute)
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Do(func() error { return nil }))

	// Then: the breaker is closed again
	assert.Equal(t, StateClosed, b.State())
}
