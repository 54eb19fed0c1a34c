package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ErrorTestSuite struct {
	suite.Suite
}

func TestErrorSuite(t *testing.T) {
	suite.Run(t, new(ErrorTestSuite))
}

func (suite *ErrorTestSuite) TestNewError() {
	err := New(ErrCodeInvalidConfiguration, "max_stock_list must be greater than 0")
	suite.NotNil(err)
	suite.Equal(ErrCodeInvalidConfiguration, err.Code)
	suite.Equal("max_stock_list must be greater than 0", err.Message)
	suite.Nil(err.Cause)
}

func (suite *ErrorTestSuite) TestNewfError() {
	err := Newf(ErrCodeInvalidParameter, "invalid parameter: %s", "std_risk")
	suite.Equal(ErrCodeInvalidParameter, err.Code)
	suite.Equal("invalid parameter: std_risk", err.Message)
}

func (suite *ErrorTestSuite) TestWrapfError() {
	cause := errors.New("underlying error")
	err := Wrapf(ErrCodeQueryFailed, cause, "failed to read series for %s", "AAPL")
	suite.Equal(ErrCodeQueryFailed, err.Code)
	suite.Equal("failed to read series for AAPL", err.Message)
	suite.Equal(cause, err.Cause)
}

func (suite *ErrorTestSuite) TestErrorString() {
	suite.Equal("[101] bad config", New(ErrCodeInvalidConfiguration, "bad config").Error())

	cause := errors.New("underlying error")
	err := Wrap(ErrCodeDataNotFound, "data not found", cause)
	suite.Equal("[200] data not found: underlying error", err.Error())
	suite.Equal(cause, err.Unwrap())
}

func (suite *ErrorTestSuite) TestGetCode() {
	suite.Equal(ErrCodeInsufficientFunds, GetCode(New(ErrCodeInsufficientFunds, "no cash")))
	suite.Equal(ErrCodeUnknown, GetCode(errors.New("standard error")))

	// the outermost code wins
	inner := New(ErrCodeDataNotFound, "data not found")
	outer := Wrap(ErrCodeFetchTimeout, "fetch timed out", inner)
	suite.Equal(ErrCodeFetchTimeout, GetCode(outer))

	// codes survive fmt wrapping
	wrapped := fmt.Errorf("run failed: %w", New(ErrCodeInvalidConfiguration, "bad"))
	suite.True(HasCode(wrapped, ErrCodeInvalidConfiguration))
}

func (suite *ErrorTestSuite) TestIsAndAs() {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeDataNotFound, "data not found", cause)
	suite.True(Is(err, cause))

	var argoErr *Error
	suite.True(As(err, &argoErr))
	suite.Equal(ErrCodeDataNotFound, argoErr.Code)
}

func (suite *ErrorTestSuite) TestErrorCodeValues() {
	suite.Equal(ErrorCode(1), ErrCodeUnknown)
	suite.Equal(ErrorCode(101), ErrCodeInvalidConfiguration)
	suite.Equal(ErrorCode(203), ErrCodeMissingQuote)
	suite.Equal(ErrorCode(300), ErrCodeComputationFault)
	suite.Equal(ErrorCode(400), ErrCodeInsufficientFunds)
	suite.Equal(ErrorCode(600), ErrCodeBacktestStateNil)
	suite.Equal(ErrorCode(800), ErrCodeCallbackFailed)
}

func (suite *ErrorTestSuite) TestMissingQuoteError() {
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	err := NewMissingQuoteError("AAPL", date)
	suite.Equal("no quote for AAPL on 2024-03-04", err.Error())
	suite.True(IsMissingQuoteError(err))
	suite.True(IsMissingQuoteError(fmt.Errorf("skip: %w", err)))
	suite.False(IsMissingQuoteError(errors.New("standard error")))
	suite.False(IsMissingQuoteError(nil))
}
