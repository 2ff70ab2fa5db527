package logger

import (
	"log"
	"time"
)

// Debug logs a debug message with consistent format
// Format: [DEBUG] timestamp=... user_id=... action=... details=...
func Debug(userID int64, action, details string) {
	write("DEBUG", userID, action, details)
}

// Info logs a lifecycle event (startup, shutdown, worker ticks) in the same layout as Debug
func Info(action, details string) {
	write("INFO", 0, action, details)
}

// Error logs a failure together with the error value
func Error(userID int64, action string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	write("ERROR", userID, action, details)
}

func write(level string, userID int64, action, details string) {
	timestamp := time.Now().Format(time.RFC3339)
	log.Printf("[%s] timestamp=%s user_id=%d action=%s details=%s", level, timestamp, userID, action, details)
}
