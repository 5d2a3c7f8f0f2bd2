// Package errors provides structured error handling for indexmirror.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: State persistence errors
//   - 3XX: Source (provider) errors
//   - 4XX: Index errors
//   - 5XX: Sync engine errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryState indicates watermark persistence errors.
	CategoryState Category = "STATE"
	// CategorySource indicates provider (data source) errors.
	CategorySource Category = "SOURCE"
	// CategoryIndex indicates search index errors.
	CategoryIndex Category = "INDEX"
	// CategorySync indicates sync engine errors.
	CategorySync Category = "SYNC"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// State errors (200-299)
	ErrCodeStateWrite   = "ERR_201_STATE_WRITE"
	ErrCodeStateCorrupt = "ERR_202_STATE_CORRUPT"

	// Source errors (300-399)
	ErrCodeSourceUnavailable = "ERR_301_SOURCE_UNAVAILABLE"
	ErrCodeSourceQuery       = "ERR_302_SOURCE_QUERY"
	ErrCodeRecordMalformed   = "ERR_303_RECORD_MALFORMED"

	// Index errors (400-499)
	ErrCodeIndexOpen  = "ERR_401_INDEX_OPEN"
	ErrCodeIndexWrite = "ERR_402_INDEX_WRITE"

	// Sync errors (500-599)
	ErrCodePassFailed = "ERR_501_PASS_FAILED"
	ErrCodeOwnerBusy  = "ERR_502_OWNER_BUSY"
)

// categoryFromCode derives the category from a code's number range.
func categoryFromCode(code string) Category {
	if len(code) < 5 {
		return CategorySync
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryState
	case '3':
		return CategorySource
	case '4':
		return CategoryIndex
	default:
		return CategorySync
	}
}

// retryableCodes lists codes for transient conditions: a later trigger
// may succeed without any operator intervention.
var retryableCodes = map[string]bool{
	ErrCodeSourceUnavailable: true,
	ErrCodeSourceQuery:       true,
	ErrCodeIndexWrite:        true,
	ErrCodePassFailed:        true,
}

func isRetryableCode(code string) bool {
	return retryableCodes[code]
}
