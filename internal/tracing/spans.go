package tracing

import (
	"context"
	"net/http"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

const uberTraceIdKey = "uber-trace-id"

// startServerSpan continues the remote trace found in carrier, or starts a
// new root span when there is none.
func startServerSpan(ctx context.Context, operationName string, format interface{}, carrier interface{}) (context.Context, opentracing.Span) {
	tracer := opentracing.GlobalTracer()
	var opts []opentracing.StartSpanOption
	if remote, err := tracer.Extract(format, carrier); err == nil {
		opts = append(opts, ext.RPCServerOption(remote))
	}
	span := tracer.StartSpan(operationName, opts...)
	return opentracing.ContextWithSpan(ctx, span), span
}

func StartHttpServerTracerSpanWithHeader(ctx context.Context, operationName string, headers http.Header) (context.Context, opentracing.Span) {
	return startServerSpan(ctx, operationName, opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(headers))
}

// StartRabbitMQMessageTracerSpanWithHeader continues the trace whose id was
// stored in the event metadata by the publisher.
func StartRabbitMQMessageTracerSpanWithHeader(ctx context.Context, operationName string, uberTraceId string) (context.Context, opentracing.Span) {
	return startServerSpan(ctx, operationName, opentracing.TextMap, opentracing.TextMapCarrier{uberTraceIdKey: uberTraceId})
}

func StartTracerSpan(ctx context.Context, operationName string) (opentracing.Span, context.Context) {
	span := opentracing.GlobalTracer().StartSpan(operationName)
	return span, opentracing.ContextWithSpan(ctx, span)
}

// ExtractTextMapCarrier serializes spanCtx. The carrier is empty when the
// tracer cannot inject it (noop tracer).
func ExtractTextMapCarrier(spanCtx opentracing.SpanContext) opentracing.TextMapCarrier {
	carrier := make(opentracing.TextMapCarrier)
	if err := opentracing.GlobalTracer().Inject(spanCtx, opentracing.TextMap, carrier); err != nil {
		return make(opentracing.TextMapCarrier)
	}
	return carrier
}

func UberTraceId(spanCtx opentracing.SpanContext) string {
	return ExtractTextMapCarrier(spanCtx)[uberTraceIdKey]
}

func GetTraceId(span opentracing.Span) string {
	traceId, _, _ := strings.Cut(UberTraceId(span.Context()), ":")
	return traceId
}
