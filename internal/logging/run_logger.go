package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RunLogger writes a detailed, human readable log for a single assessment run.
// All methods are safe to call on a nil receiver.
type RunLogger struct {
	runID     string
	path      string
	logFile   *os.File
	mutex     sync.Mutex
	startTime time.Time
}

var (
	currentLogger *RunLogger
	loggerMutex   sync.Mutex
)

// StartRunLogging opens <dir>/logs/run_<id>_<timestamp>.log and makes it the
// current logger. Any previous logger is closed.
func StartRunLogging(dir, runID string) (*RunLogger, error) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if currentLogger != nil {
		currentLogger.Close()
	}

	logDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	logPath := filepath.Join(logDir, fmt.Sprintf("run_%s_%s.log", runID, timestamp))

	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger := &RunLogger{
		runID:     runID,
		path:      logPath,
		logFile:   logFile,
		startTime: time.Now(),
	}
	currentLogger = logger
	logger.writeHeader()

	return logger, nil
}

// GetCurrentLogger returns the active run logger, or nil.
func GetCurrentLogger() *RunLogger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	return currentLogger
}

// Path returns the log file location.
func (r *RunLogger) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

// Log writes a timestamped line to the run log
func (r *RunLogger) Log(format string, args ...interface{}) {
	if r == nil {
		return
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.logFile == nil {
		return
	}

	timestamp := time.Now().Format("15:04:05.000")
	elapsed := time.Since(r.startTime)
	logMessage := fmt.Sprintf(format, args...)

	r.logFile.WriteString(fmt.Sprintf("[%s] [+%v] %s\n", timestamp, elapsed.Round(time.Millisecond), logMessage))
	r.logFile.Sync()

	log.Debug().Str("run_id", r.runID).Msg(logMessage)
}

// LogSection writes a section header
func (r *RunLogger) LogSection(title string) {
	if r == nil {
		return
	}

	separator := strings.Repeat("=", 80)
	r.Log("%s", separator)
	r.Log("= %s", title)
	r.Log("%s", separator)
}

// LogRequest records an LLM prompt
func (r *RunLogger) LogRequest(stage, model, prompt string) {
	if r == nil {
		return
	}

	r.LogSection(fmt.Sprintf("LLM REQUEST - %s", stage))
	r.Log("Model: %s", model)
	r.Log("Prompt length: %d characters", len(prompt))
	r.Log("--- PROMPT START ---")
	r.writeRaw(prompt)
	r.Log("--- PROMPT END ---")
}

// LogResponse records an LLM response
func (r *RunLogger) LogResponse(stage, response string) {
	if r == nil {
		return
	}

	r.LogSection(fmt.Sprintf("LLM RESPONSE - %s", stage))
	r.Log("Response length: %d characters", len(response))
	r.Log("--- RESPONSE START ---")
	r.writeRaw(response)
	r.Log("--- RESPONSE END ---")
}

// LogError logs an error with context
func (r *RunLogger) LogError(context string, err error) {
	if r == nil {
		return
	}

	r.Log("ERROR in %s: %v", context, err)
}

// Close finalizes the log file
func (r *RunLogger) Close() {
	if r == nil {
		return
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.logFile == nil {
		return
	}

	// written directly, Log would deadlock on the mutex
	timestamp := time.Now().Format("15:04:05.000")
	elapsed := time.Since(r.startTime)
	r.logFile.WriteString(fmt.Sprintf("[%s] [+%v] Run logging completed. Total duration: %v\n",
		timestamp, elapsed.Round(time.Millisecond), elapsed))
	r.logFile.Sync()
	r.logFile.Close()
	r.logFile = nil
}

func (r *RunLogger) writeRaw(s string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.logFile != nil {
		r.logFile.WriteString(s + "\n")
	}
}

func (r *RunLogger) writeHeader() {
	header := fmt.Sprintf(`HARDGATE ASSESSMENT LOG
Run ID: %s
Start Time: %s
Log Format: [HH:MM:SS.mmm] [+duration] message

`, r.runID, r.startTime.Format("2006-01-02 15:04:05"))

	r.logFile.WriteString(header)
	r.logFile.Sync()
}
