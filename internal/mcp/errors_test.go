package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
)

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_AppErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid k", apperrors.ValidationError(apperrors.ErrCodeInvalidK, "k out of range"), ErrCodeInvalidParams},
		{"invalid mode", apperrors.ValidationError(apperrors.ErrCodeInvalidMode, "bad mode"), ErrCodeInvalidParams},
		{"invalid path", apperrors.ValidationError(apperrors.ErrCodeInvalidPath, "outside root"), ErrCodeInvalidParams},
		{"file not found", apperrors.New(apperrors.ErrCodeFileNotFound, "gone", nil), ErrCodeFileNotFound},
		{"file too large", apperrors.New(apperrors.ErrCodeFileTooLarge, "big", nil), ErrCodeFileTooLarge},
		{"unsupported", apperrors.New(apperrors.ErrCodeUnsupportedFile, "exe", nil), ErrCodeInvalidParams},
		{"timeout", apperrors.New(apperrors.ErrCodeSearchTimeout, "slow", nil), ErrCodeTimeout},
		{"retrieval", apperrors.New(apperrors.ErrCodeRetrievalUnavailable, "down", nil), ErrCodeRetrievalUnavailable},
		{"embedding", apperrors.New(apperrors.ErrCodeEmbeddingFailed, "offline", nil), ErrCodeEmbeddingFailed},
		{"corrupt", apperrors.New(apperrors.ErrCodeCorruptIndex, "bad crc", nil), ErrCodeIndexUnavailable},
		{"config", apperrors.ConfigError("bad yaml", nil), ErrCodeInternalError},
		{"wrapped", fmt.Errorf("search: %w", apperrors.New(apperrors.ErrCodeSearchTimeout, "slow", nil)), ErrCodeTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, apperrors.GetCode(tt.err), got.AppCode)
		})
	}
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	err := apperrors.ValidationError(apperrors.ErrCodeInvalidK, "k must be between 1 and 50").
		WithSuggestion("Use the default of 10")

	got := MapError(err)

	assert.Equal(t, "k must be between 1 and 50. Use the default of 10", got.Message)
	assert.Contains(t, got.Error(), "ERR_403_INVALID_K")
}

func TestMapError_ContextErrors(t *testing.T) {
	assert.Equal(t, ErrCodeTimeout, MapError(context.DeadlineExceeded).Code)
	assert.Equal(t, ErrCodeTimeout, MapError(context.Canceled).Code)
}

func TestMapError_Unknown(t *testing.T) {
	got := MapError(errors.New("boom"))

	assert.Equal(t, ErrCodeInternalError, got.Code)
	assert.Equal(t, "Internal server error.", got.Message)
	assert.NotContains(t, got.Message, "boom")
}

func TestMapError_PassesMCPErrorThrough(t *testing.T) {
	in := NewInvalidParamsError("file_path is required")

	assert.Same(t, in, MapError(in))
	assert.Equal(t, "MCP error -32602: file_path is required", in.Error())
}
