package audit

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Operation represents the type of auditable operation
type Operation string

const (
	OpSessionStart   Operation = "session.start"
	OpSessionStop    Operation = "session.stop"
	OpSessionPause   Operation = "session.pause"
	OpSessionResume  Operation = "session.resume"
	OpScheduleCreate Operation = "schedule.create"
	OpScheduleUpdate Operation = "schedule.update"
	OpScheduleDelete Operation = "schedule.delete"
	OpScheduleRun    Operation = "schedule.run"
)

// Event represents an audit log entry
type Event struct {
	Timestamp  time.Time              `json:"timestamp"`
	Operation  Operation              `json:"operation"`
	SessionID  string                 `json:"session_id,omitempty"`
	ScheduleID string                 `json:"schedule_id,omitempty"`
	AgentType  string                 `json:"agent_type,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	Success    bool                   `json:"success"`
	Error      string                 `json:"error,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Logger handles audit logging
type Logger struct {
	logger  *slog.Logger
	enabled bool
	mu      sync.RWMutex
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Default returns the default audit logger
func Default() *Logger {
	once.Do(func() {
		defaultLogger = New(true)
	})
	return defaultLogger
}

// New creates a new audit logger
func New(enabled bool) *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return &Logger{
		logger:  slog.New(handler),
		enabled: enabled,
	}
}

// SetEnabled enables or disables audit logging
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// Log records an audit event
func (l *Logger) Log(event *Event) {
	l.mu.RLock()
	enabled := l.enabled
	l.mu.RUnlock()

	if !enabled {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	attrs := []any{
		slog.String("audit", "true"),
		slog.String("operation", string(event.Operation)),
		slog.Bool("success", event.Success),
	}

	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.ScheduleID != "" {
		attrs = append(attrs, slog.String("schedule_id", event.ScheduleID))
	}
	if event.AgentType != "" {
		attrs = append(attrs, slog.String("agent_type", event.AgentType))
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", event.RequestID))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	if event.Details != nil {
		detailsJSON, _ := json.Marshal(event.Details)
		attrs = append(attrs, slog.String("details", string(detailsJSON)))
	}

	l.logger.Info("AUDIT", attrs...)
}

// LogSuccess records a successful operation
func (l *Logger) LogSuccess(op Operation, sessionID, agentType string) {
	l.Log(&Event{
		Operation: op,
		SessionID: sessionID,
		AgentType: agentType,
		Success:   true,
	})
}

// LogFailure records a failed operation
func (l *Logger) LogFailure(op Operation, sessionID, agentType string, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	l.Log(&Event{
		Operation: op,
		SessionID: sessionID,
		AgentType: agentType,
		Success:   false,
		Error:     errMsg,
	})
}

// Convenience functions using default logger

func Log(event *Event) {
	Default().Log(event)
}

func LogSuccess(op Operation, sessionID, agentType string) {
	Default().LogSuccess(op, sessionID, agentType)
}

func LogFailure(op Operation, sessionID, agentType string, err error) {
	Default().LogFailure(op, sessionID, agentType, err)
}
