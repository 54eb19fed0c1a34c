package engine

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-equity/internal/log"
	"github.com/rxtech-lab/argo-equity/internal/logger"
	"github.com/rxtech-lab/argo-equity/internal/types"
	"go.uber.org/zap"
)

// BacktestLog records the simulator's skipped and degraded decisions in DuckDB
// so they can be exported next to the ledger.
type BacktestLog struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewBacktestLog creates a new instance of BacktestLog.
func NewBacktestLog(logger *logger.Logger) (*BacktestLog, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))

		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		db.Close()

		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logStorage := &BacktestLog{
		logger: logger,
		db:     db,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	if err := logStorage.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	return logStorage, nil
}

// Log implements log.Log.
func (l *BacktestLog) Log(entry log.LogEntry) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("backtest log or database is nil")
	}

	var nextID int

	err := l.db.QueryRow("SELECT nextval('log_id_seq')").Scan(&nextID)
	if err != nil {
		return fmt.Errorf("failed to get next ID from sequence: %w", err)
	}

	var fieldsJSON string

	if len(entry.Fields) > 0 {
		fieldsBytes, err := json.Marshal(entry.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields to JSON: %w", err)
		}

		fieldsJSON = string(fieldsBytes)
	}

	_, err = l.sq.
		Insert("logs").
		Columns("id", "timestamp", "symbol", "level", "event", "message", "fields").
		Values(nextID, entry.Timestamp, entry.Symbol, string(entry.Level), string(entry.Event), entry.Message, fieldsJSON).
		RunWith(l.db).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}

	return nil
}

// Record is a shorthand for Log that builds the entry from its parts.
func (l *BacktestLog) Record(date time.Time, symbol string, level types.LogLevel, event log.Event, message string, fields map[string]string) error {
	return l.Log(log.LogEntry{
		Timestamp: date,
		Symbol:    symbol,
		Level:     level,
		Event:     event,
		Message:   message,
		Fields:    fields,
	})
}

// GetLogs implements log.Log.
func (l *BacktestLog) GetLogs() ([]log.LogEntry, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("backtest log or database is nil")
	}

	return l.query(l.sq.Select("timestamp", "symbol", "level", "event", "message", "fields").
		From("logs").
		OrderBy("id ASC"))
}

// GetLogsByEvent returns the entries of one event kind in insertion order.
func (l *BacktestLog) GetLogsByEvent(event log.Event) ([]log.LogEntry, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("backtest log or database is nil")
	}

	return l.query(l.sq.Select("timestamp", "symbol", "level", "event", "message", "fields").
		From("logs").
		Where(squirrel.Eq{"event": string(event)}).
		OrderBy("id ASC"))
}

// CountByEvent returns how many entries were recorded per event kind.
func (l *BacktestLog) CountByEvent() (map[log.Event]int, error) {
	if l == nil || l.db == nil {
		return nil, fmt.Errorf("backtest log or database is nil")
	}

	rows, err := l.sq.Select("event", "COUNT(*)").
		From("logs").
		GroupBy("event").
		RunWith(l.db).
		Query()
	if err != nil {
		return nil, fmt.Errorf("failed to count logs: %w", err)
	}
	defer rows.Close()

	counts := make(map[log.Event]int)

	for rows.Next() {
		var event string

		var count int

		if err := rows.Scan(&event, &count); err != nil {
			return nil, fmt.Errorf("failed to scan log count: %w", err)
		}

		counts[log.Event(event)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating log counts: %w", err)
	}

	return counts, nil
}

func (l *BacktestLog) query(builder squirrel.SelectBuilder) ([]log.LogEntry, error) {
	rows, err := builder.RunWith(l.db).Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var logs []log.LogEntry

	for rows.Next() {
		var entry log.LogEntry

		var levelStr, eventStr string

		var fieldsJSON sql.NullString

		err := rows.Scan(
			&entry.Timestamp,
			&entry.Symbol,
			&levelStr,
			&eventStr,
			&entry.Message,
			&fieldsJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}

		entry.Level = types.LogLevel(levelStr)
		entry.Event = log.Event(eventStr)

		if fieldsJSON.Valid && fieldsJSON.String != "" {
			var fields map[string]string
			if err := json.Unmarshal([]byte(fieldsJSON.String), &fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields from JSON: %w", err)
			}

			entry.Fields = fields
		}

		logs = append(logs, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating logs: %w", err)
	}

	return logs, nil
}

// Write exports the log to logs.parquet in the given directory.
func (l *BacktestLog) Write(path string) error {
	if l == nil || l.db == nil || l.logger == nil {
		return fmt.Errorf("backtest log, database, or logger is nil")
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	logsPath := filepath.Join(path, LogsFileName)

	_, err := l.db.Exec(fmt.Sprintf(`COPY (SELECT * FROM logs ORDER BY id) TO '%s' (FORMAT PARQUET)`, quotePath(logsPath)))
	if err != nil {
		return fmt.Errorf("failed to export logs to Parquet: %w", err)
	}

	l.logger.Debug("Exported decision log", zap.String("logs", logsPath))

	return nil
}

// Cleanup drops every entry and restarts the id sequence.
func (l *BacktestLog) Cleanup() error {
	if l == nil || l.db == nil {
		return fmt.Errorf("backtest log or database is nil")
	}

	_, err := l.db.Exec(`
		DROP TABLE IF EXISTS logs;
		DROP SEQUENCE IF EXISTS log_id_seq;
	`)
	if err != nil {
		return fmt.Errorf("failed to cleanup logs table: %w", err)
	}

	return l.initialize()
}

// Close closes the database connection.
func (l *BacktestLog) Close() error {
	if l == nil || l.db == nil {
		return nil
	}

	return l.db.Close()
}

func (l *BacktestLog) initialize() error {
	if l == nil || l.db == nil {
		return fmt.Errorf("backtest log or database is nil")
	}

	_, err := l.db.Exec(`CREATE SEQUENCE IF NOT EXISTS log_id_seq`)
	if err != nil {
		return fmt.Errorf("failed to create sequence: %w", err)
	}

	_, err = l.db.Exec(`
		CREATE TABLE IF NOT EXISTS logs (
			id INTEGER PRIMARY KEY,
			timestamp TIMESTAMP,
			symbol TEXT,
			level TEXT,
			event TEXT,
			message TEXT,
			fields TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create logs table: %w", err)
	}

	return nil
}
