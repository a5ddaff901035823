// Package logging provides the shared structured logger. Logs are JSON
// lines written to a per-run file under the pulseboard config dir; when
// debug mode is off everything is discarded.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Logger is the process-wide logger. It is never nil; before Initialize
// it discards everything.
var Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))

// EnvDebug enables debug logging in child processes and tests.
const EnvDebug = "PULSEBOARD_DEBUG"

const maxLogFiles = 50

// Initialize configures the global logger. With debug false and no
// explicit file the logger stays discarded.
func Initialize(debug bool, debugFile, logDir string) error {
	if os.Getenv(EnvDebug) == "1" {
		debug = true
	}
	if !debug && debugFile == "" {
		Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
		return nil
	}

	logFilePath := debugFile
	if logFilePath == "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
		if err := rotateLogs(logDir, maxLogFiles); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: log rotation failed: %v\n", err)
		}
		logFilePath = filepath.Join(logDir, uuid.New().String()+".log")
	} else if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	Logger = slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug}))
	Logger.Info("debug logging initialized", "log_file", logFilePath)
	return nil
}

// rotateLogs deletes the oldest .log files so the directory stays under
// max entries after the next file is created.
func rotateLogs(logDir string, max int) error {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		return err
	}

	type logFile struct {
		path    string
		modTime time.Time
	}
	var files []logFile
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".log" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, logFile{path: filepath.Join(logDir, entry.Name()), modTime: info.ModTime()})
	}
	if len(files) < max {
		return nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })
	numToDelete := len(files) - max + 1
	for i := 0; i < numToDelete && i < len(files); i++ {
		if err := os.Remove(files[i].path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to delete old log file %s: %v\n", files[i].path, err)
		}
	}
	return nil
}
