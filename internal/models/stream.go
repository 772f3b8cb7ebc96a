package models

import "time"

// LogLevel is the severity assigned to one build-output line.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// SystemEvent marks a lifecycle transition on the log stream.
type SystemEvent string

const (
	EventBuildStarted     SystemEvent = "build_started"
	EventBuildSucceeded   SystemEvent = "build_succeeded"
	EventBuildFailed      SystemEvent = "build_failed"
	EventBuildCancelled   SystemEvent = "build_cancelled"
	EventSimulatorBooting SystemEvent = "simulator_booting"
	EventSimulatorBooted  SystemEvent = "simulator_booted"
	EventAppInstalling    SystemEvent = "app_installing"
	EventAppInstalled     SystemEvent = "app_installed"
	EventAppLaunching     SystemEvent = "app_launching"
	EventAppLaunched      SystemEvent = "app_launched"
)

// StreamMessage is one structured message on a build's log stream:
// either a classified build-output line or a system event.
type StreamMessage struct {
	Type      string      `json:"type"` // "build_output" or "system_event"
	Timestamp time.Time   `json:"timestamp"`
	Level     LogLevel    `json:"level,omitempty"`
	Event     SystemEvent `json:"event,omitempty"`
	Message   string      `json:"message"`
}

// BuildOutput creates a build-output stream message.
func BuildOutput(level LogLevel, message string) *StreamMessage {
	return &StreamMessage{
		Type:      "build_output",
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
	}
}

// SystemEventMessage creates a system-event stream message.
func SystemEventMessage(event SystemEvent, message string) *StreamMessage {
	return &StreamMessage{
		Type:      "system_event",
		Timestamp: time.Now().UTC(),
		Event:     event,
		Message:   message,
	}
}
