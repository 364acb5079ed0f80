package middleware

import (
	"time"

	"github.com/annel0/room-scanner/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// TraceHeader заголовок ответа с trace-ID запроса
const TraceHeader = "X-Trace-ID"

// RequestLogger снабжает каждый HTTP-запрос trace-ID и пишет краткие логи.
// Служебные пути (/health, /metrics) пишутся на уровне DEBUG.
type RequestLogger struct {
	logger *logging.Logger
	quiet  map[string]bool
}

// NewRequestLogger создает middleware; logger == nil — глобальный логгер
func NewRequestLogger(logger *logging.Logger) *RequestLogger {
	if logger == nil {
		logger = logging.Default()
	}
	return &RequestLogger{
		logger: logger,
		quiet:  map[string]bool{"/health": true, "/metrics": true},
	}
}

func (rl *RequestLogger) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Пытаемся извлечь trace-id из OpenTelemetry, если уже создан.
		span := trace.SpanFromContext(c.Request.Context())
		var traceID string
		if span.SpanContext().IsValid() {
			traceID = span.SpanContext().TraceID().String()
		} else {
			traceID = uuid.NewString()
		}
		c.Set("trace_id", traceID)
		c.Header(TraceHeader, traceID)

		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		logf := rl.logger.Info
		if rl.quiet[path] {
			logf = rl.logger.Debug
		}
		logf("[HTTP] %s %s %d %s ip=%s trace=%s",
			c.Request.Method, path, c.Writer.Status(), time.Since(start), c.ClientIP(), traceID)
	}
}
