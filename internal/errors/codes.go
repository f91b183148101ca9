// Package errors provides structured error handling for lfsearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (files, artifacts, data directory)
//   - 3XX: Retrieval errors (timeouts, unavailable retrievers, embedding)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryRetrieval indicates query-time retrieval errors.
	CategoryRetrieval Category = "RETRIEVAL"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid     = "ERR_101_CONFIG_INVALID"
	ErrCodeDimensionMismatch = "ERR_102_DIMENSION_MISMATCH"
	ErrCodeWatchRootMissing  = "ERR_103_WATCH_ROOT_MISSING"

	// IO errors (200-299)
	ErrCodeFileNotFound     = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFileTooLarge     = "ERR_202_FILE_TOO_LARGE"
	ErrCodeUnsupportedFile  = "ERR_203_UNSUPPORTED_FILE"
	ErrCodeExtractionFailed = "ERR_204_EXTRACTION_FAILED"
	ErrCodeCorruptIndex     = "ERR_205_CORRUPT_INDEX"
	ErrCodePersistFailed    = "ERR_206_PERSIST_FAILED"
	ErrCodeDataDirLocked    = "ERR_207_DATA_DIR_LOCKED"

	// Retrieval errors (300-399)
	ErrCodeSearchTimeout        = "ERR_301_SEARCH_TIMEOUT"
	ErrCodeRetrievalUnavailable = "ERR_302_RETRIEVAL_UNAVAILABLE"
	ErrCodeEmbeddingFailed      = "ERR_303_EMBEDDING_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidQuery  = "ERR_401_INVALID_QUERY"
	ErrCodeInvalidMode   = "ERR_402_INVALID_MODE"
	ErrCodeInvalidK      = "ERR_403_INVALID_K"
	ErrCodeInvalidWeight = "ERR_404_INVALID_WEIGHT"
	ErrCodeInvalidPath   = "ERR_405_INVALID_PATH"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryRetrieval
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeDimensionMismatch, ErrCodeWatchRootMissing, ErrCodeDataDirLocked:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeSearchTimeout, ErrCodeRetrievalUnavailable, ErrCodeEmbeddingFailed, ErrCodePersistFailed:
		return true
	default:
		return false
	}
}
