// Package middleware provides conn.Interceptor implementations that wrap
// every round trip a connection makes.
package middleware

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/shrek82/persist/conn"
)

// SlowLog logs statements that take longer than the specified threshold.
type SlowLog struct {
	Threshold time.Duration
	logger    *log.Logger
	file      *os.File
}

// NewSlowLog creates a new SlowLog.
// threshold: statements taking longer than this will be logged.
// logPath: path to the log file. If empty, logs to standard output.
func NewSlowLog(threshold time.Duration, logPath string) (*SlowLog, error) {
	m := &SlowLog{Threshold: threshold}
	if logPath == "" {
		m.SetOutput(os.Stdout)
		return m, nil
	}
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open slow log file: %w", err)
	}
	m.file = f
	m.SetOutput(f)
	return m, nil
}

// SetOutput sets the output destination for the logger.
func (m *SlowLog) SetOutput(w io.Writer) {
	m.logger = log.New(w, "[SLOW SQL] ", log.LstdFlags)
}

// Close closes the log file, if any.
func (m *SlowLog) Close() error {
	if m.file != nil {
		return m.file.Close()
	}
	return nil
}

func (m *SlowLog) Intercept(ctx context.Context, op *conn.Op, next conn.Handler) error {
	start := time.Now()
	err := next(ctx, op)
	duration := time.Since(start)

	if duration >= m.Threshold {
		m.logger.Printf("duration=%v | conn=%s | %s | sql=%s | args=%v | rows=%d | err=%v",
			duration, op.ConnID, op.Kind, op.SQL, op.Args, rows(op), err)
	}
	return err
}

func rows(op *conn.Op) int64 {
	if op.Kind == conn.OpQuery {
		return int64(op.RowsReturned)
	}
	return op.RowsAffected
}
