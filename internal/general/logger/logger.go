package logger

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes single-line JSON entries shaped as
// {timestamp, level, service, hostname, action, message, request_id, booking_id, details, error}.
type Logger struct {
	zap *zap.Logger
}

// New creates a structured logger for the given service at DEBUG level.
func New(service string) *Logger {
	return NewWithLevel(service, "debug")
}

// NewWithLevel creates a structured logger for the given service and minimum level.
func NewWithLevel(service, level string) *Logger {
	hn, err := os.Hostname()
	if err != nil || strings.TrimSpace(hn) == "" {
		hn = "unknown-hostname"
	}

	if strings.TrimSpace(service) == "" {
		service = "unknown-service"
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncoderConfig.CallerKey = ""
	cfg.InitialFields = map[string]any{
		"service":  service,
		"hostname": hn,
	}

	z, err := cfg.Build()
	if err != nil {
		// stay JSON-shaped even if the config is rejected
		z = zap.New(zapcore.NewCore(
			zapcore.NewJSONEncoder(cfg.EncoderConfig),
			zapcore.AddSync(os.Stdout),
			zapcore.DebugLevel,
		)).With(zap.String("service", service), zap.String("hostname", hn))
	}

	return &Logger{zap: z}
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() {
	_ = l.zap.Sync()
}

// Debug writes a DEBUG line with optional details.
func (l *Logger) Debug(ctx context.Context, action, msg string, details any) {
	l.zap.Debug(strings.TrimSpace(msg), l.fields(ctx, action, details)...)
}

// Info writes an INFO line with optional details.
func (l *Logger) Info(ctx context.Context, action, msg string, details any) {
	l.zap.Info(strings.TrimSpace(msg), l.fields(ctx, action, details)...)
}

// Warn writes a WARN line with optional details.
func (l *Logger) Warn(ctx context.Context, action, msg string, details any) {
	l.zap.Warn(strings.TrimSpace(msg), l.fields(ctx, action, details)...)
}

// Error writes an ERROR line and attaches the error with a stack trace.
func (l *Logger) Error(ctx context.Context, action, msg string, err error, details any) {
	fields := l.fields(ctx, action, details)
	if err != nil {
		fields = append(fields, zap.NamedError("error", err))
	}
	fields = append(fields, zap.StackSkip("stack", 1))
	l.zap.Error(strings.TrimSpace(msg), fields...)
}

func (l *Logger) fields(ctx context.Context, action string, details any) []zap.Field {
	fields := make([]zap.Field, 0, 5)
	fields = append(fields, zap.String("action", safeAction(action)))
	if id := requestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := bookingID(ctx); id != "" {
		fields = append(fields, zap.String("booking_id", id))
	}
	if details != nil {
		fields = append(fields, zap.Any("details", details))
	}
	return fields
}

// ------------ Context helpers -------------

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "dispatch_request_id"
	ctxKeyBookingID ctxKey = "dispatch_booking_id"
)

// WithRequestID returns a new context carrying request_id.
func (l *Logger) WithRequestID(ctx context.Context, reqID string) context.Context {
	if strings.TrimSpace(reqID) == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRequestID, reqID)
}

// WithBookingID returns a new context carrying booking_id.
func (l *Logger) WithBookingID(ctx context.Context, bookingID string) context.Context {
	if strings.TrimSpace(bookingID) == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyBookingID, bookingID)
}

func requestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return s
	}
	return ""
}

func bookingID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(ctxKeyBookingID).(string); ok {
		return s
	}
	return ""
}

// ----- Small utilities -----

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func safeAction(a string) string {
	a = strings.TrimSpace(a)
	if a == "" {
		return "unspecified"
	}
	return a
}
