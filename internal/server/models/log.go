package models

import (
	"fmt"
	"strings"
	"time"
)

type LogLevel string

const (
	LogInfo  LogLevel = "INFO"
	LogWarn  LogLevel = "WARN"
	LogError LogLevel = "ERROR"
)

func ParseLogLevel(s string) (LogLevel, error) {
	switch LogLevel(strings.ToUpper(s)) {
	case LogInfo:
		return LogInfo, nil
	case LogWarn:
		return LogWarn, nil
	case LogError:
		return LogError, nil
	}
	return "", fmt.Errorf("unknown log level %q", s)
}

// SessionLog is an append-only event row attached to a session.
type SessionLog struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
