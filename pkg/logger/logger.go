package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel defines the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// Logger - обертка над zap.SugaredLogger.
// Поддерживает и printf-стиль (Infof), и key-value стиль (Infow).
type Logger struct {
	*zap.SugaredLogger
}

// New создает JSON логгер для production окружения.
func New(level LogLevel) *Logger {
	return build(zap.NewProductionConfig(), level)
}

// NewDevelopment создает человекочитаемый консольный логгер.
func NewDevelopment(level LogLevel) *Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return build(cfg, level)
}

// NewNop возвращает логгер, который ничего не пишет. Используется в тестах.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func build(cfg zap.Config, level LogLevel) *Logger {
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.DisableStacktrace = level > DEBUG

	base, err := cfg.Build()
	if err != nil {
		// Конфигурация статическая, ошибка сборки здесь означает баг
		base = zap.NewExample()
	}
	return &Logger{SugaredLogger: base.Sugar()}
}

// ParseLevel переводит строку из конфигурации в LogLevel. Неизвестное значение = INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Named возвращает дочерний логгер с именем компонента.
func (l *Logger) Named(name string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.Named(name)}
}

// With возвращает дочерний логгер с постоянными полями.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(args...)}
}

// Desugar отдает базовый *zap.Logger для библиотек, которые его требуют.
func (l *Logger) Desugar() *zap.Logger {
	return l.SugaredLogger.Desugar()
}
