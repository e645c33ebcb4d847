package go_realmd

import (
	"os"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// LogInit initializes the logger with the specified level.
// The level is one of DEBUG, INFO, WARNING, ERROR or FATAL.
func LogInit(level int) {
	logger.InitializeGoI2PLogger()

	switch level {
	case DEBUG, INFO:
		os.Setenv("DEBUG_I2P", "debug")
	case WARNING:
		os.Setenv("DEBUG_I2P", "warn")
	case ERROR:
		os.Setenv("DEBUG_I2P", "error")
	case FATAL:
		os.Setenv("DEBUG_I2P", "fatal")
		os.Setenv("WARNFAIL_I2P", "true")
	default:
		os.Setenv("DEBUG_I2P", "debug")
	}
	log = logger.GetGoI2PLogger()
}

// Debug logs a debug message with optional arguments.
func Debug(message string, args ...interface{}) {
	if len(args) == 0 {
		log.Debug(message)
		return
	}
	log.Debugf(message, args...)
}

// Info logs an info message with optional arguments.
// Info maps to Warn level in the logger.
func Info(message string, args ...interface{}) {
	if len(args) == 0 {
		log.Warn(message)
		return
	}
	log.Warnf(message, args...)
}

// Warning logs a warning message with optional arguments.
func Warning(message string, args ...interface{}) {
	if len(args) == 0 {
		log.Warn(message)
		return
	}
	log.Warnf(message, args...)
}

// Error logs an error message with optional arguments.
func Error(message string, args ...interface{}) {
	if len(args) == 0 {
		log.Error(message)
		return
	}
	log.Errorf(message, args...)
}
