package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new structured logger.
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", getHostname()).
		Logger()

	return &Logger{
		logger: logger,
	}
}

// WithSession adds session_id context to logger.
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("session_id", sessionID).Logger(),
	}
}

// WithTask adds task_id context to logger.
func (l *Logger) WithTask(taskID uint64) *Logger {
	return &Logger{
		logger: l.logger.With().Uint64("task_id", taskID).Logger(),
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message.
func (l *Logger) Error(err error, msg string) {
	l.logger.Error().Err(err).Msg(msg)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(err error, msg string) {
	l.logger.Fatal().Err(err).Msg(msg)
}

// SessionConnected logs a newly accepted worker session.
func (l *Logger) SessionConnected(sessionID, address string) {
	l.logger.Info().
		Str("session_id", sessionID).
		Str("address", address).
		Msg("worker session connected")
}

// SessionZombied logs a session crossing the heartbeat timeout (§4.I).
func (l *Logger) SessionZombied(sessionID string, sinceLastHeartbeat time.Duration) {
	l.logger.Warn().
		Str("session_id", sessionID).
		Float64("since_last_heartbeat_seconds", sinceLastHeartbeat.Seconds()).
		Msg("session heartbeat timed out, marked zombie")
}

// SessionDespawned logs a zombie session exhausting its retries (§4.I).
func (l *Logger) SessionDespawned(sessionID string, retries int) {
	l.logger.Warn().
		Str("session_id", sessionID).
		Int("retries", retries).
		Msg("session despawned after exhausting zombie retries")
}

// TaskScheduled logs a task being bound to a device by the scheduler (§4.G).
func (l *Logger) TaskScheduled(taskID uint64, module, sessionID string) {
	l.logger.Info().
		Uint64("task_id", taskID).
		Str("module", module).
		Str("session_id", sessionID).
		Msg("task scheduled to device")
}

// ChunkSent logs one module chunk handed to the distributor's outbound
// queue (§4.H).
func (l *Logger) ChunkSent(taskID uint64, chunkIndex, totalChunks uint32) {
	l.logger.Debug().
		Uint64("task_id", taskID).
		Uint32("chunk_index", chunkIndex).
		Uint32("total_chunks", totalChunks).
		Msg("module chunk enqueued")
}

// TaskCompleted logs a task reaching Completed with its result vector
// length (§4.F ClientResult handling).
func (l *Logger) TaskCompleted(taskID uint64, module string, resultCount int, duration time.Duration) {
	l.logger.Info().
		Uint64("task_id", taskID).
		Str("module", module).
		Int("result_count", resultCount).
		Float64("duration_seconds", duration.Seconds()).
		Msg("task completed")
}

// TaskFailed logs a task reaching Failed, with the reason.
func (l *Logger) TaskFailed(taskID uint64, module, reason string) {
	l.logger.Warn().
		Uint64("task_id", taskID).
		Str("module", module).
		Str("reason", reason).
		Msg("task failed")
}

// Helper function to get hostname.
func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
