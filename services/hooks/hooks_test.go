package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mercure/dto"
)

type recordingListener struct {
	NopListener
	name  string
	calls *[]string
	err   error
}

func (l recordingListener) OnBuildTemplateVars(_ context.Context, c *TemplateVarsContext) error {
	*l.calls = append(*l.calls, l.name)
	c.Set(l.name, "", l.name)
	return l.err
}

func TestBus_RunsInRegistrationOrder(t *testing.T) {
	var calls []string
	bus := NewBus()
	bus.Register(recordingListener{name: "first", calls: &calls})
	bus.Register(recordingListener{name: "second", calls: &calls})

	c := &TemplateVarsContext{Vars: []dto.TemplateVar{{Name: "email"}}}
	require.NoError(t, bus.BuildTemplateVars(context.Background(), c))

	assert.Equal(t, []string{"first", "second"}, calls)
	require.Len(t, c.Vars, 3)
	assert.Equal(t, "email", c.Vars[0].Name)
	assert.Equal(t, "first", c.Vars[1].Name)
	assert.Equal(t, "second", c.Vars[2].Name)
}

func TestBus_FirstErrorStopsChain(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	bus := NewBus(
		recordingListener{name: "first", calls: &calls, err: boom},
		recordingListener{name: "second", calls: &calls},
	)

	err := bus.BuildTemplateVars(context.Background(), &TemplateVarsContext{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first"}, calls)
}

func TestBus_NilAndEmpty(t *testing.T) {
	var bus *Bus
	assert.NoError(t, bus.BeforeSend(context.Background(), &BeforeSendContext{}))
	assert.NoError(t, NewBus().BuildReport(context.Background(), &ReportContext{}))
}

func TestTemplateVarsContext_RemoveAndSet(t *testing.T) {
	c := &TemplateVarsContext{Vars: []dto.TemplateVar{{Name: "email", Value: "a"}, {Name: "date"}, {Name: "email"}}}
	c.Remove("email")
	require.Len(t, c.Vars, 1)
	assert.Equal(t, "date", c.Vars[0].Name)

	c.Set("date", "", "01/01/2026")
	assert.Equal(t, "01/01/2026", c.Vars[0].Value)
}
