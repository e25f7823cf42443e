package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EnableDebug is a build flag that can be overridden at build time:
// go build -ldflags "-X github.com/standardbeagle/wsgrep/internal/debug.EnableDebug=true"
var EnableDebug = "false"

// StreamMode tracks whether the process is currently emitting the JSON
// progress stream on stdout; when true all debug output is suppressed
// so it can never be interleaved with wire-format frames.
var StreamMode = false

// debugOutput is the writer for debug output (nil means no output)
var debugOutput io.Writer

// debugFile holds the open file handle if debug output goes to a file
var debugFile *os.File

// debugMutex protects access to debug output
var debugMutex sync.Mutex

// SetStreamMode toggles stream-safe mode (see StreamMode).
func SetStreamMode(enabled bool) {
	StreamMode = enabled
}

// SetDebugOutput sets a custom writer for debug output.
// Pass nil to disable debug output entirely.
func SetDebugOutput(w io.Writer) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugOutput = w
}

// InitDebugLogFile initializes debug logging to a timestamped file under
// the OS temp directory and returns its path.
func InitDebugLogFile() (string, error) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	logDir := filepath.Join(os.TempDir(), "wsgrep-debug-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create debug log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02T150405")
	logPath := filepath.Join(logDir, fmt.Sprintf("debug-%s.log", timestamp))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create debug log file: %w", err)
	}

	debugFile = file
	debugOutput = file
	return logPath, nil
}

// CloseDebugLog closes the debug log file if one is open.
func CloseDebugLog() error {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debugFile != nil {
		err := debugFile.Close()
		debugFile = nil
		debugOutput = nil
		return err
	}
	return nil
}

// IsDebugEnabled reports whether debug output should be produced.
func IsDebugEnabled() bool {
	// Never write debug text while the wire protocol owns stdout.
	if StreamMode {
		return false
	}

	if EnableDebug == "true" {
		return true
	}

	if v := os.Getenv("DEBUG"); v == "1" || v == "true" {
		return true
	}

	return false
}

func getDebugWriter() io.Writer {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	return debugOutput
}

// Log provides structured debug logging tagged with a component name.
func Log(component, format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	w := getDebugWriter()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG:%s] "+format+"\n", append([]interface{}{component}, args...)...)
}

// LogWalk logs file-walker (C3) activity.
func LogWalk(format string, args ...interface{}) { Log("WALK", format, args...) }

// LogGrep logs grep-driver/grep-parser (C4/C5) activity.
func LogGrep(format string, args ...interface{}) { Log("GREP", format, args...) }

// LogCache logs scoring/cache (C7) activity.
func LogCache(format string, args ...interface{}) { Log("CACHE", format, args...) }

// LogService logs search-service (C8) dispatch/cancellation activity.
func LogService(format string, args ...interface{}) { Log("SERVICE", format, args...) }

// CatastrophicError records an internal invariant violation (spec §7,
// error kind 5: missing file header, malformed color markers, ...). In
// stream mode this is suppressed so it never corrupts the wire
// protocol; callers still surface the failure as a terminal error item.
func CatastrophicError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if !StreamMode {
		if w := getDebugWriter(); w != nil {
			fmt.Fprintf(w, "[CATASTROPHIC] %s\n", msg)
		}
	}
}
