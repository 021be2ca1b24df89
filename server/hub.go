// Package server hosts the dialogue engine behind a websocket endpoint.
//
// A single hub goroutine owns the engine. Connections only enqueue
// commands; the hub drains them once per tick, so the engine never sees
// concurrent calls.
package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nathoo/parley/engine"
	"github.com/nathoo/parley/engine/catalog"
	"github.com/nathoo/parley/engine/codec"
	"github.com/nathoo/parley/engine/conversation"
	"github.com/nathoo/parley/types"
)

const (
	// commandQueuePerActorLimit caps the commands one player may queue per tick.
	commandQueuePerActorLimit = 8
	// outboxSize is the number of frames buffered per connection.
	outboxSize = 64
)

// ErrQueueFull means a player sent more commands than a tick accepts.
var ErrQueueFull = errors.New("command queue full")

type commandKind uint8

const (
	cmdStart commandKind = iota + 1
	cmdSelect
	cmdEnd
	cmdDisconnect
)

// command is one queued request from a player.
type command struct {
	kind    commandKind
	actor   types.EntityRef
	npc     types.EntityRef
	session string
	index   int
}

// Subscriber receives the frames addressed to one player.
type Subscriber struct {
	player   types.EntityRef
	withText bool
	out      chan codec.Frame
	done     chan struct{}
	once     sync.Once
}

// Frames delivers outbound frames.
func (s *Subscriber) Frames() <-chan codec.Frame { return s.out }

// Done is closed when the hub drops the subscriber.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// HubConfig configures a Hub. Engine.Listener is set by the hub.
type HubConfig struct {
	Engine         engine.Options
	TickRate       time.Duration
	SessionTimeout time.Duration
	Logger         *zap.Logger
}

// Hub owns the engine and serializes every call into it.
type Hub struct {
	engine   *engine.Engine
	log      *zap.Logger
	tickRate time.Duration
	timeout  time.Duration

	mu       sync.Mutex
	queue    []command
	perActor map[types.EntityRef]int
	pending  *catalog.Catalog
	subs     map[types.EntityRef]*Subscriber
}

// NewHub creates a hub and its engine.
func NewHub(cfg HubConfig) *Hub {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		log:      log,
		tickRate: cfg.TickRate,
		timeout:  cfg.SessionTimeout,
		perActor: make(map[types.EntityRef]int),
		subs:     make(map[types.EntityRef]*Subscriber),
	}
	if h.tickRate <= 0 {
		h.tickRate = 50 * time.Millisecond
	}
	opts := cfg.Engine
	opts.Listener = h
	if opts.Logger == nil {
		opts.Logger = log
	}
	h.engine = engine.New(opts)
	return h
}

// Engine returns the hub's engine. Only call it from the hub goroutine.
func (h *Hub) Engine() *engine.Engine { return h.engine }

// Subscribe registers a connection for player. An earlier connection for
// the same player is dropped. withText false leaves page and response text
// out of PageEntered frames.
func (h *Hub) Subscribe(player types.EntityRef, withText bool) *Subscriber {
	sub := &Subscriber{
		player:   player,
		withText: withText,
		out:      make(chan codec.Frame, outboxSize),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	existing, ok := h.subs[player]
	h.subs[player] = sub
	h.mu.Unlock()
	if ok {
		existing.close()
	}
	return sub
}

// Unsubscribe removes sub and ends the player's conversations on the next
// tick. It does nothing if sub was already replaced.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	current, ok := h.subs[sub.player]
	if !ok || current != sub {
		h.mu.Unlock()
		sub.close()
		return
	}
	delete(h.subs, sub.player)
	h.queue = append(h.queue, command{kind: cmdDisconnect, actor: sub.player})
	h.mu.Unlock()
	sub.close()
}

// enqueueCommand queues cmd for the next tick. Disconnects are never
// dropped.
func (h *Hub) enqueueCommand(cmd command) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cmd.kind != cmdDisconnect && h.perActor[cmd.actor] >= commandQueuePerActorLimit {
		h.log.Warn("command dropped",
			zap.String("player", string(cmd.actor)),
			zap.Error(ErrQueueFull))
		return ErrQueueFull
	}
	h.perActor[cmd.actor]++
	h.queue = append(h.queue, cmd)
	return nil
}

// Start queues a request from player to talk to npc.
func (h *Hub) Start(player, npc types.EntityRef) error {
	return h.enqueueCommand(command{kind: cmdStart, actor: player, npc: npc})
}

// Select queues a response choice.
func (h *Hub) Select(player types.EntityRef, sessionID string, index int) error {
	return h.enqueueCommand(command{kind: cmdSelect, actor: player, session: sessionID, index: index})
}

// End queues a request to leave a conversation.
func (h *Hub) End(player types.EntityRef, sessionID string) error {
	return h.enqueueCommand(command{kind: cmdEnd, actor: player, session: sessionID})
}

// SwapCatalog installs c before the next tick's commands run. Conversations
// already open keep the dialogue they started with.
func (h *Hub) SwapCatalog(c *catalog.Catalog) {
	h.mu.Lock()
	h.pending = c
	h.mu.Unlock()
}

func (h *Hub) drainCommands() ([]command, *catalog.Catalog) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cmds := h.queue
	h.queue = nil
	clear(h.perActor)
	c := h.pending
	h.pending = nil
	return cmds, c
}

// Tick applies a pending catalog swap, runs every queued command in arrival
// order and then applies the idle timeout.
func (h *Hub) Tick(now time.Time) {
	cmds, c := h.drainCommands()
	if c != nil {
		h.engine.SetCatalog(c)
	}
	for _, cmd := range cmds {
		h.apply(cmd)
	}
	if n := h.engine.ExpireIdle(now, h.timeout); n > 0 {
		h.log.Debug("idle sessions expired", zap.Int("sessions", n))
	}
}

func (h *Hub) apply(cmd command) {
	var err error
	switch cmd.kind {
	case cmdStart:
		_, err = h.engine.StartConversation(cmd.actor, cmd.npc)
	case cmdSelect:
		if err = h.owns(cmd.actor, cmd.session); err == nil {
			err = h.engine.PlayerSelectedResponse(cmd.session, cmd.index)
		}
	case cmdEnd:
		if err = h.owns(cmd.actor, cmd.session); err == nil {
			h.engine.EndConversation(cmd.session, types.EndRequested)
		}
	case cmdDisconnect:
		h.engine.ParticipantInvalidated(cmd.actor, types.EndParticipantLost)
	}
	if err != nil {
		h.log.Debug("command refused",
			zap.String("player", string(cmd.actor)),
			zap.String("session", cmd.session),
			zap.Error(err))
		h.send(cmd.actor, codec.Error{Message: err.Error()})
	}
}

// owns rejects session ids that are not the player's own, so one player
// cannot drive another's conversation.
func (h *Hub) owns(player types.EntityRef, sessionID string) error {
	s, ok := h.engine.Sessions().Get(sessionID)
	if !ok || s.Initiator != player {
		return conversation.ErrUnknownSession
	}
	return nil
}

// Handle routes an engine event to the initiator's connection.
func (h *Hub) Handle(ev types.Event) {
	h.mu.Lock()
	sub, ok := h.subs[ev.Initiator]
	h.mu.Unlock()
	if !ok {
		return
	}
	h.deliver(sub, codec.FrameFromEvent(ev, sub.withText))
}

func (h *Hub) send(player types.EntityRef, f codec.Frame) {
	h.mu.Lock()
	sub, ok := h.subs[player]
	h.mu.Unlock()
	if ok {
		h.deliver(sub, f)
	}
}

// deliver never blocks the tick: a connection that cannot keep up is
// dropped.
func (h *Hub) deliver(sub *Subscriber, f codec.Frame) {
	select {
	case <-sub.done:
	case sub.out <- f:
	default:
		h.log.Warn("outbox full, dropping connection", zap.String("player", string(sub.player)))
		h.Unsubscribe(sub)
	}
}

// Run drives the tick loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.tickRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.Tick(now)
		}
	}
}
