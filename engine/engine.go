// Package engine is the entry point the game loop and network layer call:
// it binds NPCs to dialogues and drives conversation sessions.
//
// Like the rest of the engine it is single threaded; callers serialize
// access, one tick at a time.
package engine

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nathoo/parley/engine/catalog"
	"github.com/nathoo/parley/engine/conversation"
	"github.com/nathoo/parley/engine/events"
	"github.com/nathoo/parley/engine/predicate"
	"github.com/nathoo/parley/types"
)

// ErrNoDialogue means the NPC offers no dialogue.
var ErrNoDialogue = errors.New("npc has no dialogue")

// Binder maps an NPC to the dialogue it offers.
type Binder interface {
	DialogueFor(npc types.EntityRef) (uint16, bool)
}

// Options configures an Engine. Catalog, Registry, World and Binder are
// required.
type Options struct {
	Catalog        *catalog.Catalog
	Registry       *predicate.Registry
	World          predicate.World
	Binder         Binder
	Hooks          conversation.HookRunner
	Listener       events.Listener
	Logger         *zap.Logger
	MaxBranchDepth int
	Now            func() time.Time
}

// Engine holds the session manager and the NPC bindings.
type Engine struct {
	sessions *conversation.Manager
	binder   Binder
	log      *zap.Logger
}

// New creates an engine.
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		sessions: conversation.NewManager(conversation.Config{
			Registry:       opts.Registry,
			World:          opts.World,
			Catalog:        opts.Catalog,
			Listener:       opts.Listener,
			Hooks:          opts.Hooks,
			Logger:         log.Named("conversation"),
			MaxBranchDepth: opts.MaxBranchDepth,
			Now:            opts.Now,
		}),
		binder: opts.Binder,
		log:    log,
	}
}

// StartConversation opens the dialogue npc offers to initiator and returns
// the session id. Any conversation the initiator already has is ended.
func (e *Engine) StartConversation(initiator, npc types.EntityRef) (string, error) {
	id, ok := e.binder.DialogueFor(npc)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoDialogue, npc)
	}
	s, err := e.sessions.Start(id, initiator, npc)
	if err != nil {
		if s != nil {
			return s.ID, err
		}
		return "", err
	}
	return s.ID, nil
}

// PlayerSelectedResponse applies a player's choice. index counts visible
// responses only.
func (e *Engine) PlayerSelectedResponse(sessionID string, index int) error {
	return e.sessions.Select(sessionID, index)
}

// EndConversation ends a session. It is idempotent and reports whether the
// session was live.
func (e *Engine) EndConversation(sessionID string, reason types.EndReason) bool {
	return e.sessions.End(sessionID, reason)
}

// ParticipantInvalidated ends every conversation ref takes part in. Call it
// on disconnect, death, despawn or when ref leaves range.
func (e *Engine) ParticipantInvalidated(ref types.EntityRef, reason types.EndReason) int {
	n := e.sessions.EndParticipant(ref, reason)
	if n > 0 {
		e.log.Debug("participant invalidated",
			zap.String("entity", string(ref)),
			zap.Int("sessions", n))
	}
	return n
}

// ExpireIdle ends, with EndTimeout, every session without input for longer
// than maxIdle. It returns how many were ended.
func (e *Engine) ExpireIdle(now time.Time, maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	n := 0
	for _, id := range e.sessions.IdleSince(now.Add(-maxIdle)) {
		if e.sessions.End(id, types.EndTimeout) {
			n++
		}
	}
	return n
}

// SetCatalog swaps the catalog for conversations started from now on.
// A nil catalog makes every new conversation fail with no dialogue.
func (e *Engine) SetCatalog(c *catalog.Catalog) {
	e.sessions.SetCatalog(c)
	n := 0
	if c != nil {
		n = c.Len()
	}
	e.log.Info("catalog swapped", zap.Int("dialogues", n))
}

// Catalog returns the current catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.sessions.Catalog() }

// Sessions exposes the session manager for inspection.
func (e *Engine) Sessions() *conversation.Manager { return e.sessions }
