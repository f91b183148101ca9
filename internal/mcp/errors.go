// Package mcp exposes the search engine and index to MCP clients over stdio
// or streamable HTTP.
package mcp

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/M6saw0/local-file-search-and-monitoring/internal/errors"
)

// MCP error codes. The -320xx range is reserved for the server.
const (
	ErrCodeIndexUnavailable     = -32001
	ErrCodeEmbeddingFailed      = -32002
	ErrCodeTimeout              = -32003
	ErrCodeFileNotFound         = -32004
	ErrCodeFileTooLarge         = -32005
	ErrCodeRetrievalUnavailable = -32006

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is a protocol error with a JSON-RPC code. AppCode carries the
// application error code when the error came from one.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	AppCode string `json:"app_code,omitempty"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	if e.AppCode != "" {
		return fmt.Sprintf("MCP error %d [%s]: %s", e.Code, e.AppCode, e.Message)
	}
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	if ae, ok := apperrors.As(err); ok {
		return mapAppError(ae)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

func mapAppError(ae *apperrors.AppError) *MCPError {
	message := ae.Message
	if ae.Suggestion != "" {
		message = fmt.Sprintf("%s. %s", ae.Message, ae.Suggestion)
	}
	out := &MCPError{Code: ErrCodeInternalError, Message: message, AppCode: ae.Code}

	switch ae.Code {
	case apperrors.ErrCodeFileNotFound:
		out.Code = ErrCodeFileNotFound
	case apperrors.ErrCodeFileTooLarge:
		out.Code = ErrCodeFileTooLarge
	case apperrors.ErrCodeUnsupportedFile:
		out.Code = ErrCodeInvalidParams
	case apperrors.ErrCodeCorruptIndex, apperrors.ErrCodeDataDirLocked:
		out.Code = ErrCodeIndexUnavailable
	case apperrors.ErrCodeSearchTimeout:
		out.Code = ErrCodeTimeout
	case apperrors.ErrCodeRetrievalUnavailable:
		out.Code = ErrCodeRetrievalUnavailable
	case apperrors.ErrCodeEmbeddingFailed:
		out.Code = ErrCodeEmbeddingFailed
	default:
		if ae.Category == apperrors.CategoryValidation {
			out.Code = ErrCodeInvalidParams
		}
	}
	return out
}
