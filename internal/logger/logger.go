package logger

import (
	"os"
	"time"

	"medshop/internal/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	contextKey   = "logger"
	RequestIDKey = "X-Request-ID"
)

// New builds the process logger. Production writes JSON, development writes
// coloured console lines. A configured log file is rotated by lumberjack and
// receives JSON in both modes.
func New(env string, cfg config.LogConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}
	atom := zap.NewAtomicLevelAt(level)

	var consoleEncoder zapcore.Encoder
	if env == "production" {
		consoleEncoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), atom),
	}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   false,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotator),
			atom,
		))
	}

	log := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	log.Info("Logger initialized", zap.String("level", level.String()), zap.String("file", cfg.File))
	return log, nil
}

// Middleware logs every request and stores a request-scoped logger in the context.
func Middleware(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetString(RequestIDKey)
		if requestID == "" {
			requestID = c.GetHeader(RequestIDKey)
		}
		reqLog := base.With(zap.String("request_id", requestID))
		c.Set(contextKey, reqLog)

		c.Next()

		fields := []zapcore.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		switch {
		case c.Writer.Status() >= 500:
			reqLog.Error("HTTP request failed", fields...)
		case c.Writer.Status() >= 400:
			reqLog.Warn("HTTP request rejected", fields...)
		default:
			reqLog.Info("HTTP request completed", fields...)
		}
	}
}

// FromContext returns the request-scoped logger, falling back to the global one.
func FromContext(c *gin.Context) *zap.Logger {
	if l, ok := c.Get(contextKey); ok {
		if log, ok := l.(*zap.Logger); ok {
			return log
		}
	}
	return zap.L()
}
