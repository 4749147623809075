package tracing

import (
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-client-go"
	"github.com/uber/jaeger-client-go/config"
	jaegerzap "github.com/uber/jaeger-client-go/log/zap"

	"github.com/customeros/mercure/internal/logger"
)

type JaegerConfig struct {
	Enabled      bool    `env:"JAEGER_ENABLED" envDefault:"false"`
	ServiceName  string  `env:"JAEGER_SERVICE_NAME" envDefault:"mercure"`
	Endpoint     string  `env:"JAEGER_ENDPOINT"`
	AgentHost    string  `env:"JAEGER_AGENT_HOST" envDefault:"localhost"`
	AgentPort    string  `env:"JAEGER_AGENT_PORT" envDefault:"6831"`
	SamplerType  string  `env:"JAEGER_SAMPLER_TYPE" envDefault:"const"`
	SamplerParam float64 `env:"JAEGER_SAMPLER_PARAM" envDefault:"1"`
	LogSpans     bool    `env:"JAEGER_REPORTER_LOG_SPANS" envDefault:"false"`
}

// Configuration maps JaegerConfig onto the client configuration. The
// collector endpoint wins over the agent when both are set.
func (c *JaegerConfig) Configuration() *config.Configuration {
	reporter := &config.ReporterConfig{LogSpans: c.LogSpans}
	if c.Endpoint != "" {
		reporter.CollectorEndpoint = c.Endpoint
	} else {
		reporter.LocalAgentHostPort = c.AgentHost + ":" + c.AgentPort
	}
	return &config.Configuration{
		ServiceName: c.ServiceName,
		Disabled:    !c.Enabled,
		Sampler: &config.SamplerConfig{
			Type:  c.SamplerType,
			Param: c.SamplerParam,
		},
		Reporter: reporter,
	}
}

func NewJaegerTracer(cfg *JaegerConfig, log logger.Logger) (opentracing.Tracer, io.Closer, error) {
	return cfg.Configuration().NewTracer(
		config.Logger(jaegerzap.NewLogger(log.Logger())),
		config.Tag("app", cfg.ServiceName),
		config.MaxTagValueLength(jaeger.DefaultMaxTagValueLength*4),
	)
}
