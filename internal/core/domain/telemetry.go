package domain

// VertexStatus is the lifecycle state of a pipeline stage as reported to telemetry.
type VertexStatus string

const (
	// VertexStatusPending indicates the stage has not started.
	VertexStatusPending VertexStatus = "pending"
	// VertexStatusRunning indicates the stage is executing.
	VertexStatusRunning VertexStatus = "running"
	// VertexStatusCompleted indicates the stage committed a new layer.
	VertexStatusCompleted VertexStatus = "completed"
	// VertexStatusFailed indicates the stage failed and nothing was committed.
	VertexStatusFailed VertexStatus = "failed"
	// VertexStatusCached indicates the stage reused a layer from the cache.
	VertexStatusCached VertexStatus = "cached"
)

// IsTerminal checks if a status is a terminal state.
func (s VertexStatus) IsTerminal() bool {
	switch s {
	case VertexStatusCompleted, VertexStatusFailed, VertexStatusCached:
		return true
	default:
		return false
	}
}

// LogLevel represents the severity of a log message, mirroring the standard slog levels.
type LogLevel int

const (
	// LogLevelDebug represents debug-level verbosity.
	LogLevelDebug LogLevel = -4
	// LogLevelInfo represents informational verbosity.
	LogLevelInfo LogLevel = 0
	// LogLevelWarn represents warning verbosity.
	LogLevelWarn LogLevel = 4
	// LogLevelError represents error verbosity.
	LogLevelError LogLevel = 8
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}
