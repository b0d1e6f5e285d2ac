// Package logger wraps zap behind a small context-aware interface.  A
// request-scoped logger can be stored in a context with WithContext; every
// call on the Logger prefers that one over the root logger.
package logger

import (
    "context"
    "os"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
)

type Logger interface {
    Debug(ctx context.Context, args ...any)
    Debugf(ctx context.Context, template string, args ...any)
    Info(ctx context.Context, args ...any)
    Infof(ctx context.Context, template string, args ...any)
    Warn(ctx context.Context, args ...any)
    Warnf(ctx context.Context, template string, args ...any)
    Error(ctx context.Context, args ...any)
    Errorf(ctx context.Context, template string, args ...any)
    Fatal(ctx context.Context, args ...any)
    Fatalf(ctx context.Context, template string, args ...any)
    // With returns a child logger carrying the given key/value pairs.
    With(keysAndValues ...any) Logger
    // WithContext stores a child logger carrying keysAndValues in ctx.
    WithContext(ctx context.Context, keysAndValues ...any) context.Context
}

type ZapConfig struct {
    Level    string
    Mode     string
    Encoding string
}

type zapLogger struct {
    sugarLogger *zap.SugaredLogger
}

// New builds a zap-backed Logger writing to stderr.
func New(cfg ZapConfig) Logger {
    return &zapLogger{sugarLogger: build(cfg)}
}

// NewNop returns a Logger that discards everything.  Tests use it.
func NewNop() Logger {
    return &zapLogger{sugarLogger: zap.NewNop().Sugar()}
}

var logLevelMap = map[string]zapcore.Level{
    "debug":  zapcore.DebugLevel,
    "info":   zapcore.InfoLevel,
    "warn":   zapcore.WarnLevel,
    "error":  zapcore.ErrorLevel,
    "fatal":  zapcore.FatalLevel,
    "panic":  zapcore.PanicLevel,
    "dpanic": zapcore.DPanicLevel,
}

func build(cfg ZapConfig) *zap.SugaredLogger {
    level, ok := logLevelMap[cfg.Level]
    if !ok {
        level = zapcore.InfoLevel
    }

    var encoderCfg zapcore.EncoderConfig
    if cfg.Mode == "production" {
        encoderCfg = zap.NewProductionEncoderConfig()
    } else {
        encoderCfg = zap.NewDevelopmentEncoderConfig()
    }
    encoderCfg.LevelKey = "level"
    encoderCfg.CallerKey = "caller"
    encoderCfg.TimeKey = "time"
    encoderCfg.NameKey = "logger"
    encoderCfg.MessageKey = "msg"
    encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

    var encoder zapcore.Encoder
    if cfg.Encoding == "console" {
        encoder = zapcore.NewConsoleEncoder(encoderCfg)
    } else {
        encoder = zapcore.NewJSONEncoder(encoderCfg)
    }

    core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), zap.NewAtomicLevelAt(level))
    return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

type loggerKey struct{}

func (l *zapLogger) ctx(ctx context.Context) *zap.SugaredLogger {
    if ctx == nil {
        return l.sugarLogger
    }
    if s, _ := ctx.Value(loggerKey{}).(*zap.SugaredLogger); s != nil {
        return s
    }
    return l.sugarLogger
}

func (l *zapLogger) With(keysAndValues ...any) Logger {
    return &zapLogger{sugarLogger: l.sugarLogger.With(keysAndValues...)}
}

func (l *zapLogger) WithContext(ctx context.Context, keysAndValues ...any) context.Context {
    return context.WithValue(ctx, loggerKey{}, l.ctx(ctx).With(keysAndValues...))
}

func (l *zapLogger) Debug(ctx context.Context, args ...any) { l.ctx(ctx).Debug(args...) }

func (l *zapLogger) Debugf(ctx context.Context, template string, args ...any) {
    l.ctx(ctx).Debugf(template, args...)
}

func (l *zapLogger) Info(ctx context.Context, args ...any) { l.ctx(ctx).Info(args...) }

func (l *zapLogger) Infof(ctx context.Context, template string, args ...any) {
    l.ctx(ctx).Infof(template, args...)
}

func (l *zapLogger) Warn(ctx context.Context, args ...any) { l.ctx(ctx).Warn(args...) }

func (l *zapLogger) Warnf(ctx context.Context, template string, args ...any) {
    l.ctx(ctx).Warnf(template, args...)
}

func (l *zapLogger) Error(ctx context.Context, args ...any) { l.ctx(ctx).Error(args...) }

func (l *zapLogger) Errorf(ctx context.Context, template string, args ...any) {
    l.ctx(ctx).Errorf(template, args...)
}

func (l *zapLogger) Fatal(ctx context.Context, args ...any) { l.ctx(ctx).Fatal(args...) }

func (l *zapLogger) Fatalf(ctx context.Context, template string, args ...any) {
    l.ctx(ctx).Fatalf(template, args...)
}
