// Package hooks is the extension point of mercure. Listeners receive the
// live, mutable object of each stage and may add, edit or remove entries.
package hooks

import (
	"context"
	"sync"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mercure/dto"
	"github.com/customeros/mercure/internal/models"
	"github.com/customeros/mercure/internal/tracing"
)

type TemplateVarsContext struct {
	Campaign *models.Campaign
	Target   *models.Target
	Template *models.EmailTemplate
	Vars     []dto.TemplateVar
}

// Remove drops every variable with the given name.
func (c *TemplateVarsContext) Remove(name string) {
	kept := c.Vars[:0]
	for _, v := range c.Vars {
		if v.Name != name {
			kept = append(kept, v)
		}
	}
	c.Vars = kept
}

// Set overwrites the value of an existing variable or appends a new one.
func (c *TemplateVarsContext) Set(name, description, value string) {
	for i := range c.Vars {
		if c.Vars[i].Name == name {
			c.Vars[i].Value = value
			return
		}
	}
	c.Vars = append(c.Vars, dto.TemplateVar{Name: name, Description: description, Value: value})
}

type BeforeSendContext struct {
	Campaign   *models.Campaign
	Target     *models.Target
	Message    *dto.OutboundMessage
	Connection *dto.SMTPConnection
}

type LandingPageContext struct {
	Tracker     *models.Tracker
	Campaign    *models.Campaign
	LandingPage *models.LandingPage
	Visit       dto.Visit
	HTML        string
}

type ReportContext struct {
	Campaign *models.Campaign
	Report   *dto.CampaignReport
}

type Listener interface {
	OnBuildTemplateVars(ctx context.Context, c *TemplateVarsContext) error
	OnBeforeSend(ctx context.Context, c *BeforeSendContext) error
	OnRenderLandingPage(ctx context.Context, c *LandingPageContext) error
	OnBuildReport(ctx context.Context, c *ReportContext) error
}

// NopListener can be embedded to implement only the hooks of interest.
type NopListener struct{}

func (NopListener) OnBuildTemplateVars(context.Context, *TemplateVarsContext) error { return nil }
func (NopListener) OnBeforeSend(context.Context, *BeforeSendContext) error         { return nil }
func (NopListener) OnRenderLandingPage(context.Context, *LandingPageContext) error { return nil }
func (NopListener) OnBuildReport(context.Context, *ReportContext) error            { return nil }

// Bus calls listeners in registration order. The first error stops the
// chain and is returned to the caller.
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewBus(listeners ...Listener) *Bus {
	return &Bus{listeners: listeners}
}

func (b *Bus) Register(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

func (b *Bus) snapshot() []Listener {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Listener(nil), b.listeners...)
}

func (b *Bus) run(ctx context.Context, name string, call func(Listener) error) error {
	listeners := b.snapshot()
	if len(listeners) == 0 {
		return nil
	}
	span, _ := opentracing.StartSpanFromContext(ctx, "hooks."+name)
	defer span.Finish()
	span.SetTag("listeners", len(listeners))

	for _, l := range listeners {
		if err := call(l); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
	}
	return nil
}

func (b *Bus) BuildTemplateVars(ctx context.Context, c *TemplateVarsContext) error {
	return b.run(ctx, "BuildTemplateVars", func(l Listener) error { return l.OnBuildTemplateVars(ctx, c) })
}

func (b *Bus) BeforeSend(ctx context.Context, c *BeforeSendContext) error {
	return b.run(ctx, "BeforeSend", func(l Listener) error { return l.OnBeforeSend(ctx, c) })
}

func (b *Bus) RenderLandingPage(ctx context.Context, c *LandingPageContext) error {
	return b.run(ctx, "RenderLandingPage", func(l Listener) error { return l.OnRenderLandingPage(ctx, c) })
}

func (b *Bus) BuildReport(ctx context.Context, c *ReportContext) error {
	return b.run(ctx, "BuildReport", func(l Listener) error { return l.OnBuildReport(ctx, c) })
}
