package chain

import (
	"context"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
	"github.com/villain-cms/villain/pkg/core/logging"
)

// Invocation is what a command sees while it runs: its step name, resolved
// parameters, the request context and a way to fire events.
type Invocation struct {
	Name    string
	Target  string
	Params  Params
	Context *Context
	Logger  *logging.Logger

	events *EventBus
}

// Ctx returns the Go context of the request.
func (inv *Invocation) Ctx() context.Context {
	return inv.Context.Context()
}

// Fire dispatches an event for this command and returns it after all
// handlers ran, so the caller can read back changes to Data.
func (inv *Invocation) Fire(name string, data map[string]any) (*Event, error) {
	if data == nil {
		data = make(map[string]any)
	}
	e := &Event{Name: name, CommandName: inv.Name, Context: inv.Context, Data: data}
	if err := inv.events.Fire(e); err != nil {
		return e, verrors.Wrapf(err, "event %s.%s", inv.Name, name).
			WithDetail("event", name)
	}
	return e, nil
}
