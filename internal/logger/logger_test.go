package logger

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zapcore"
)

type LoggerTestSuite struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}

func (suite *LoggerTestSuite) TestNewLogger() {
	logger, err := NewLogger()
	suite.NoError(err)
	suite.NotNil(logger)
	suite.NotNil(logger.Logger)
	suite.True(logger.Core().Enabled(zapcore.InfoLevel))
	suite.False(logger.Core().Enabled(zapcore.DebugLevel))
}

func (suite *LoggerTestSuite) TestNewLoggerWithLevel() {
	tests := []struct {
		name         string
		level        string
		debugEnabled bool
		infoEnabled  bool
	}{
		{"debug", "debug", true, true},
		{"warn", "warn", false, false},
		{"unknown falls back to info", "verbose", false, true},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			logger, err := NewLoggerWithLevel(tc.level)
			suite.Require().NoError(err)
			suite.Equal(tc.debugEnabled, logger.Core().Enabled(zapcore.DebugLevel))
			suite.Equal(tc.infoEnabled, logger.Core().Enabled(zapcore.InfoLevel))
		})
	}
}

func (suite *LoggerTestSuite) TestLoggerSyncNilLogger() {
	logger := &Logger{Logger: nil}

	err := logger.Sync()
	suite.NoError(err)
}

func (suite *LoggerTestSuite) TestNopLogger() {
	logger := NewNopLogger()
	suite.NotNil(logger.Logger)

	// These should not panic
	logger.Info("test info message")
	logger.Warn("test warn message")
	suite.NoError(logger.Sync())
}
