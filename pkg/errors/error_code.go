package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeMissingParameter     ErrorCode = 109
	ErrCodeInvalidVersion       ErrorCode = 110

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound          ErrorCode = 200
	ErrCodeDataSourceUnavailable ErrorCode = 201
	ErrCodeQueryFailed           ErrorCode = 202
	ErrCodeMissingQuote          ErrorCode = 203
	ErrCodeFetchTimeout          ErrorCode = 204
	ErrCodeEmptyUniverse         ErrorCode = 205

	// Risk errors (300-399)
	ErrCodeComputationFault ErrorCode = 300

	// Portfolio errors (400-499)
	ErrCodeInsufficientFunds ErrorCode = 400
	ErrCodeLotTooSmall       ErrorCode = 401
	ErrCodeExposureExceeded  ErrorCode = 402

	// Backtest errors (600-699)
	ErrCodeBacktestStateNil      ErrorCode = 600
	ErrCodeBacktestInitFailed    ErrorCode = 601
	ErrCodeBacktestConfigError   ErrorCode = 602
	ErrCodeBacktestDataPathError ErrorCode = 603
	ErrCodeBacktestNoDataPaths   ErrorCode = 606
	ErrCodeBacktestNoResultsDir  ErrorCode = 607
	ErrCodeBacktestNoDatasource  ErrorCode = 608

	// Callback errors (800-899)
	ErrCodeCallbackFailed ErrorCode = 800
)
