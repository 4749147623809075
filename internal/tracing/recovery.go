package tracing

import (
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"github.com/customeros/mercure/internal/logger"
)

func logPanic(span opentracing.Span, recovered any, stack []byte) {
	ext.Error.Set(span, true)
	span.LogKV(
		"event", "error",
		"error.object", recovered,
		"stack", string(stack),
	)
}

// RecoveryWithJaeger records a handler panic on a panic-recovery span, child
// of the request span when there is one, and re-panics so gin.Recovery
// answers 500.
func RecoveryWithJaeger(tracer opentracing.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			var opts []opentracing.StartSpanOption
			if parent := opentracing.SpanFromContext(c.Request.Context()); parent != nil {
				opts = append(opts, opentracing.ChildOf(parent.Context()))
			}
			span := tracer.StartSpan("panic-recovery", opts...)
			logPanic(span, r, debug.Stack())
			span.Finish()
			panic(r)
		}()
		c.Next()
	}
}

// RecoverAndLogToJaeger must be deferred directly. Background goroutines
// (cron jobs, queue consumers) use it so one panic does not stop the loop.
func RecoverAndLogToJaeger(appLogger logger.Logger) {
	r := recover()
	if r == nil {
		return
	}
	span := opentracing.GlobalTracer().StartSpan("panic-recovery")
	defer span.Finish()

	stack := debug.Stack()
	logPanic(span, r, stack)
	appLogger.Errorf("Recovered from panic: %v\nStack trace:\n%s", r, stack)
}
