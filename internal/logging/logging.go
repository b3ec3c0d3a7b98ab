package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Setup builds the application logger. With an empty logDir it logs to
// stderr; otherwise each run gets its own session directory and only the
// newest maxLogsToKeep sessions survive.
func Setup(logDir, level string, maxLogsToKeep int) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	if logDir != "" {
		if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create logs directory: %w", err)
		}
		if err := rotateLogSessions(logDir, maxLogsToKeep); err != nil {
			return nil, fmt.Errorf("failed to rotate log sessions: %w", err)
		}

		sessionDir := filepath.Join(logDir, time.Now().Format("2006-01-02_15-04-05"))
		if err := os.MkdirAll(sessionDir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
		config.OutputPaths = []string{filepath.Join(sessionDir, "main.log")}
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// rotateLogSessions removes the oldest sessions so that, with the one about
// to be created, at most maxLogsToKeep remain.
func rotateLogSessions(logDir string, maxLogsToKeep int) error {
	if maxLogsToKeep <= 0 {
		return nil
	}

	sessions, err := filepath.Glob(filepath.Join(logDir, "*"))
	if err != nil {
		return err
	}
	if len(sessions) < maxLogsToKeep {
		return nil
	}

	// oldest first
	sort.Slice(sessions, func(i, j int) bool {
		iInfo, _ := os.Stat(sessions[i])
		jInfo, _ := os.Stat(sessions[j])
		return iInfo.ModTime().Before(jInfo.ModTime())
	})

	for i := range len(sessions) - maxLogsToKeep + 1 {
		if err := os.RemoveAll(sessions[i]); err != nil {
			return err
		}
	}
	return nil
}
