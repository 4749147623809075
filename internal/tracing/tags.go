package tracing

import (
	"context"
	"encoding/json"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"

	"github.com/customeros/mercure/internal/utils"
)

const (
	SpanTagAppSource = "app-source"
	SpanTagCampaign  = "campaign-id"
	SpanTagEntityId  = "entity-id"
	SpanTagComponent = "component"
)

// Component is the layer a span was opened in.
type Component string

const (
	ComponentPostgresRepository Component = "postgresRepository"
	ComponentRest               Component = "rest"
	ComponentCronJob            Component = "cronJob"
	ComponentService            Component = "service"
	ComponentListener           Component = "listener"
)

func TagComponent(span opentracing.Span, component Component) {
	span.SetTag(SpanTagComponent, string(component))
}

// tagContext copies the request scoped values carried by ctx onto span.
func tagContext(ctx context.Context, span opentracing.Span, component Component) {
	custom := utils.GetContext(ctx)
	if custom.AppSource != "" {
		span.SetTag(SpanTagAppSource, custom.AppSource)
	}
	if custom.CampaignId != "" {
		span.SetTag(SpanTagCampaign, custom.CampaignId)
	}
	TagComponent(span, component)
}

func SetDefaultRestSpanTags(ctx context.Context, span opentracing.Span) {
	tagContext(ctx, span, ComponentRest)
}

func SetDefaultServiceSpanTags(ctx context.Context, span opentracing.Span) {
	tagContext(ctx, span, ComponentService)
}

func SetDefaultListenerSpanTags(ctx context.Context, span opentracing.Span) {
	tagContext(ctx, span, ComponentListener)
}

func SetDefaultPostgresRepositorySpanTags(ctx context.Context, span opentracing.Span) {
	tagContext(ctx, span, ComponentPostgresRepository)
}

func TagEntity(span opentracing.Span, entityId string) {
	if entityId == "" {
		return
	}
	span.SetTag(SpanTagEntityId, entityId)
}

// TraceErr marks span as failed. A nil err still flags the span, which
// is how request middleware reports 4xx/5xx responses.
func TraceErr(span opentracing.Span, err error, fields ...log.Field) {
	if span == nil {
		return
	}
	if err == nil {
		ext.Error.Set(span, true)
		span.LogFields(fields...)
		return
	}
	ext.LogError(span, err, fields...)
}

func LogObjectAsJson(span opentracing.Span, name string, object any) {
	if object == nil {
		span.LogFields(log.String(name, "nil"))
		return
	}
	if raw, err := json.Marshal(object); err == nil {
		span.LogFields(log.String(name, string(raw)))
		return
	}
	span.LogFields(log.Object(name, object))
}
