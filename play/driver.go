// Package play drives conversations from typed playtest commands, either
// against an in-process engine or a remote server.
package play

import (
	"github.com/nathoo/parley/engine"
	"github.com/nathoo/parley/engine/events"
	"github.com/nathoo/parley/types"
)

// Driver runs one player's conversations. Each call returns the events it
// caused, in order.
type Driver interface {
	Start(npc types.EntityRef) ([]types.Event, error)
	Select(sessionID string, index int) ([]types.Event, error)
	End(sessionID string) ([]types.Event, error)
}

// LocalDriver runs the engine in process.
type LocalDriver struct {
	engine *engine.Engine
	self   types.EntityRef
	rec    *events.Recorder
}

// NewLocal creates an engine from opts and drives it as self. Events still
// reach opts.Listener, if set.
func NewLocal(opts engine.Options, self types.EntityRef) *LocalDriver {
	rec := &events.Recorder{}
	bus := &events.Bus{}
	bus.Subscribe(rec)
	if opts.Listener != nil {
		bus.Subscribe(opts.Listener)
	}
	opts.Listener = bus
	return &LocalDriver{engine: engine.New(opts), self: self, rec: rec}
}

// Engine returns the driven engine.
func (d *LocalDriver) Engine() *engine.Engine { return d.engine }

func (d *LocalDriver) Start(npc types.EntityRef) ([]types.Event, error) {
	_, err := d.engine.StartConversation(d.self, npc)
	return d.rec.Drain(), err
}

func (d *LocalDriver) Select(sessionID string, index int) ([]types.Event, error) {
	err := d.engine.PlayerSelectedResponse(sessionID, index)
	return d.rec.Drain(), err
}

func (d *LocalDriver) End(sessionID string) ([]types.Event, error) {
	d.engine.EndConversation(sessionID, types.EndRequested)
	return d.rec.Drain(), nil
}
