package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mwiater/detrun/internal/runconfig"
)

var (
	mu      sync.Mutex
	logFile *os.File
)

// Init routes the standard logger to console (if non-nil) and to the file at
// logPath (if non-empty). Calling Init again replaces the previous file.
func Init(logPath string, console io.Writer) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writers []io.Writer
	if console != nil {
		writers = append(writers, console)
	}

	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = file
		writers = append(writers, logFile)
	}

	if len(writers) == 0 {
		log.SetOutput(io.Discard)
		return nil
	}
	log.SetOutput(io.MultiWriter(writers...))
	return nil
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	err := logFile.Close()
	logFile = nil
	return err
}

func LogEvent(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Println(msg)
}

// LogLaunch records the exact command line a run is started with.
func LogLaunch(run string, argv []string) {
	log.Println(buildLaunchMessage(run, argv))
}

// LogExit records how a run finished.
func LogExit(run string, exitCode int, elapsed time.Duration, err error) {
	parts := []string{"[EXIT]", fmt.Sprintf("run=%s", runName(run)), fmt.Sprintf("code=%d", exitCode), fmt.Sprintf("elapsed=%s", elapsed.Round(time.Millisecond))}
	if err != nil {
		parts = append(parts, fmt.Sprintf("error=%s", formatPayload(err.Error())))
	}
	log.Println(strings.Join(parts, " "))
}

// LogPayload records a structured value, e.g. a resolved run configuration.
func LogPayload(label string, payload any) {
	log.Printf("[%s] %s", strings.ToUpper(strings.TrimSpace(label)), formatPayload(payload))
}

func buildLaunchMessage(run string, argv []string) string {
	parts := []string{"[LAUNCH]", fmt.Sprintf("run=%s", runName(run))}
	if len(argv) == 0 {
		parts = append(parts, "argv=[]")
	} else {
		parts = append(parts, fmt.Sprintf("argv=%s", runconfig.QuoteArgs(argv)))
	}
	return strings.Join(parts, " ")
}

func runName(run string) string {
	if v := strings.TrimSpace(run); v != "" {
		return v
	}
	return "default"
}

func formatPayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return "null"
	case string:
		if strings.TrimSpace(v) == "" {
			return `""`
		}
		return v
	case []byte:
		if len(v) == 0 {
			return "[]"
		}
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
