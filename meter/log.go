package meter

import (
	"context"
	"log/slog"

	"github.com/ineyio/chatstream"
)

// LogMeter logs streaming calls using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ chatstream.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnRequest(e chatstream.RequestEvent) {
	m.Logger.Debug("request",
		"request_id", e.RequestID,
		"provider", e.Provider,
		"model", e.Model,
		"messages", e.Messages,
		"estimated_tokens", e.EstimatedIn,
	)
}

func (m *LogMeter) OnResult(e chatstream.ResultEvent) {
	if !e.Success {
		m.Logger.Warn("result_error",
			"request_id", e.RequestID,
			"provider", e.Provider,
			"model", e.Model,
			"duration_ms", e.Duration.Milliseconds(),
			"skipped_lines", e.SkippedLines,
			"error", e.Error,
		)
		return
	}

	level := slog.LevelInfo
	if e.SkippedLines > 0 {
		level = slog.LevelWarn
	}
	m.Logger.Log(context.Background(), level, "result",
		"request_id", e.RequestID,
		"provider", e.Provider,
		"model", e.Model,
		"completed", e.Completed,
		"duration_ms", e.Duration.Milliseconds(),
		"input_tokens", e.Usage.InputTokens,
		"output_tokens", e.Usage.OutputTokens,
		"cost_usd", e.Cost,
		"skipped_lines", e.SkippedLines,
	)
}
