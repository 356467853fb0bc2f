package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.Logger
}

func NewLogger(level string) (*Logger, error) {
	config := zap.NewProductionConfig()

	// Parse log level
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{logger}, nil
}

// WithDocument tags log entries with a document identity (slug plus optional
// language), the way entries are referred to throughout the pipeline.
func (l *Logger) WithDocument(slug, language string) *zap.Logger {
	if language != "" {
		return l.With(zap.String("slug", slug), zap.String("language", language))
	}
	return l.With(zap.String("slug", slug))
}
