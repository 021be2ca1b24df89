// Package conversation runs dialogue sessions: it enters pages, filters
// responses, auto-advances branch pages and ends conversations.
//
// A Manager is not safe for concurrent use. The owning game loop serializes
// every call, one tick at a time.
package conversation

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/nathoo/parley/engine/catalog"
	"github.com/nathoo/parley/engine/dialogue"
	"github.com/nathoo/parley/engine/events"
	"github.com/nathoo/parley/engine/predicate"
	"github.com/nathoo/parley/engine/rules"
	"github.com/nathoo/parley/types"
)

// DefaultMaxBranchDepth bounds branch-to-branch chains.
const DefaultMaxBranchDepth = 32

// HookCall describes a response being taken.
type HookCall struct {
	Name       string
	SessionID  string
	Initiator  types.EntityRef
	NPC        types.EntityRef
	DialogueID uint16
	PageID     uint16
	Response   int
}

// HookRunner invokes external hooks named by responses.
type HookRunner interface {
	RunHook(call HookCall) error
}

// Config wires a Manager to its collaborators. Registry and Catalog are
// required; the rest have defaults. A nil World has no stats, so every
// stat predicate is false.
type Config struct {
	Registry       *predicate.Registry
	World          predicate.World
	Catalog        *catalog.Catalog
	Listener       events.Listener
	Hooks          HookRunner
	Logger         *zap.Logger
	MaxBranchDepth int
	MaxHistory     int
	Now            func() time.Time
}

// Manager owns every live session, keyed by initiator.
type Manager struct {
	reg      *predicate.Registry
	world    predicate.World
	cat      *catalog.Catalog
	listener events.Listener
	hooks    HookRunner
	log      *zap.Logger
	maxDepth int
	maxHist  int
	now      func() time.Time

	byInitiator map[types.EntityRef]*Session
	byID        map[string]*Session
	byNPC       map[types.EntityRef]map[string]*Session
}

// NewManager returns a manager with no sessions.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		reg:         cfg.Registry,
		world:       cfg.World,
		cat:         cfg.Catalog,
		listener:    cfg.Listener,
		hooks:       cfg.Hooks,
		log:         cfg.Logger,
		maxDepth:    cfg.MaxBranchDepth,
		maxHist:     cfg.MaxHistory,
		now:         cfg.Now,
		byInitiator: make(map[types.EntityRef]*Session),
		byID:        make(map[string]*Session),
		byNPC:       make(map[types.EntityRef]map[string]*Session),
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.world == nil {
		m.world = noStats{}
	}
	if m.maxDepth <= 0 {
		m.maxDepth = DefaultMaxBranchDepth
	}
	if m.maxHist <= 0 {
		m.maxHist = DefaultMaxHistory
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

type noStats struct{}

func (noStats) Stat(types.EntityRef, string) (float64, bool) { return 0, false }

// SetCatalog replaces the catalog used by sessions started from now on.
// Running sessions keep the dialogue they started with.
func (m *Manager) SetCatalog(c *catalog.Catalog) {
	m.cat = c
}

// Catalog returns the catalog new sessions start from.
func (m *Manager) Catalog() *catalog.Catalog { return m.cat }

// Start opens a conversation and enters its root page. An active session
// for the same initiator is ended first, even if the new one then fails to
// start.
//
// On a ContentLogicError the session is returned already ended.
func (m *Manager) Start(dialogueID uint16, initiator, npc types.EntityRef) (*Session, error) {
	if prior, ok := m.byInitiator[initiator]; ok {
		pv := &ProtocolViolation{Kind: ErrAlreadyActive, SessionID: prior.ID,
			Detail: fmt.Sprintf("%s started dialogue %d with %s", initiator, dialogueID, npc)}
		m.log.Warn("replacing active session",
			zap.String("session", prior.ID),
			zap.String("initiator", string(initiator)),
			zap.Error(pv))
		m.end(prior, types.EndReplaced)
	}

	if m.cat == nil {
		return nil, fmt.Errorf("%w: %d (no catalog)", ErrDialogueNotFound, dialogueID)
	}
	d, ok := m.cat.Get(dialogueID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrDialogueNotFound, dialogueID)
	}
	env := m.env(initiator, npc)
	if !rules.EvalAllConditions(d.Pages[0].Conditions, env) {
		return nil, fmt.Errorf("%w: dialogue %d for %s", ErrRootGated, dialogueID, initiator)
	}

	now := m.now()
	s := &Session{
		ID:         xid.New().String(),
		DialogueID: dialogueID,
		Initiator:  initiator,
		NPC:        npc,
		State:      Uninitialized,
		StartedAt:  now,
		LastInput:  now,
		dialogue:   d,
		maxHistory: m.maxHist,
	}
	m.add(s)
	m.log.Debug("session started",
		zap.String("session", s.ID),
		zap.Uint16("dialogue", dialogueID),
		zap.String("initiator", string(initiator)),
		zap.String("npc", string(npc)))

	s.State = AwaitingPageEntry
	if err := m.enter(s, 0, env); err != nil {
		return s, err
	}
	return s, nil
}

// Select takes the visible response at index, which counts positions in the
// filtered list, not authoring order. Any violation ends the session.
func (m *Manager) Select(sessionID string, index int) error {
	s, ok := m.byID[sessionID]
	if !ok {
		return m.violation(nil, &ProtocolViolation{Kind: ErrUnknownSession, SessionID: sessionID})
	}
	if s.State != AwaitingResponse {
		return m.violation(s, &ProtocolViolation{Kind: ErrNotAwaitingResponse, SessionID: sessionID,
			Detail: "state " + s.State.String()})
	}
	if index < 0 || index >= len(s.visible) {
		return m.violation(s, &ProtocolViolation{Kind: ErrIndexOutOfRange, SessionID: sessionID,
			Detail: fmt.Sprintf("index %d, %d visible", index, len(s.visible))})
	}

	s.LastInput = m.now()
	raw := s.visible[index]
	page := s.Page()
	resp := &page.Responses[raw]
	s.record(Transition{FromPage: page.ID, Response: raw, At: s.LastInput})
	m.runHooks(s, page.ID, raw, resp)

	if dialogue.IsEnd(resp.Target) {
		m.end(s, types.EndCompleted)
		return nil
	}
	s.State = AwaitingPageEntry
	return m.enter(s, resp.Target.PageID, m.env(s.Initiator, s.NPC))
}

// End ends a session. It reports whether the session was live; ending an
// ended or unknown session is a no-op.
func (m *Manager) End(sessionID string, reason types.EndReason) bool {
	s, ok := m.byID[sessionID]
	if !ok {
		return false
	}
	m.end(s, reason)
	return true
}

// EndParticipant ends every session in which ref is the initiator or the
// NPC and returns how many were ended.
func (m *Manager) EndParticipant(ref types.EntityRef, reason types.EndReason) int {
	var doomed []*Session
	if s, ok := m.byInitiator[ref]; ok {
		doomed = append(doomed, s)
	}
	for _, s := range m.byNPC[ref] {
		if s.Initiator != ref {
			doomed = append(doomed, s)
		}
	}
	sort.Slice(doomed, func(i, j int) bool { return doomed[i].ID < doomed[j].ID })
	for _, s := range doomed {
		m.end(s, reason)
	}
	return len(doomed)
}

// Get returns a live session by id.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	s, ok := m.byID[sessionID]
	return s, ok
}

// ForInitiator returns the initiator's live session.
func (m *Manager) ForInitiator(ref types.EntityRef) (*Session, bool) {
	s, ok := m.byInitiator[ref]
	return s, ok
}

// Len returns the number of live sessions.
func (m *Manager) Len() int { return len(m.byID) }

// IdleSince returns, sorted, the ids of sessions whose last input is before t.
func (m *Manager) IdleSince(t time.Time) []string {
	var ids []string
	for id, s := range m.byID {
		if s.LastInput.Before(t) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// enter runs page entry as a loop: branch pages are auto-advanced until a
// page that waits for input is reached, the conversation ends, or the
// branch chain exceeds the depth limit.
func (m *Manager) enter(s *Session, pageID uint16, env rules.Env) error {
	d := s.dialogue
	hops := 0
	for {
		s.PageID = pageID
		page := &d.Pages[pageID]

		if !page.IsBranch {
			s.visible = rules.VisibleResponses(page, d, env)
			s.State = AwaitingResponse
			m.emitPage(s, page)
			return nil
		}

		if hops >= m.maxDepth {
			return m.contentError(s, ErrRecursionLimit)
		}
		hops++
		s.State = AutoAdvancing
		s.visible = nil

		idx, ok := rules.SelectBranch(page, d, env)
		if !ok {
			return m.contentError(s, ErrNoBranchMatch)
		}
		resp := &page.Responses[idx]
		s.record(Transition{FromPage: pageID, Response: idx, Auto: true, At: m.now()})
		m.runHooks(s, pageID, idx, resp)
		m.log.Debug("branch selected",
			zap.String("session", s.ID),
			zap.Uint16("dialogue", s.DialogueID),
			zap.Uint16("page", pageID),
			zap.Int("response", idx))

		if dialogue.IsEnd(resp.Target) {
			m.end(s, types.EndCompleted)
			return nil
		}
		pageID = resp.Target.PageID
		s.State = AwaitingPageEntry
	}
}

func (m *Manager) env(initiator, npc types.EntityRef) rules.Env {
	return rules.Env{Registry: m.reg, World: m.world, Initiator: initiator, NPC: npc}
}

func (m *Manager) add(s *Session) {
	m.byInitiator[s.Initiator] = s
	m.byID[s.ID] = s
	if m.byNPC[s.NPC] == nil {
		m.byNPC[s.NPC] = make(map[string]*Session)
	}
	m.byNPC[s.NPC][s.ID] = s
}

func (m *Manager) remove(s *Session) {
	if cur, ok := m.byInitiator[s.Initiator]; ok && cur == s {
		delete(m.byInitiator, s.Initiator)
	}
	delete(m.byID, s.ID)
	if set := m.byNPC[s.NPC]; set != nil {
		delete(set, s.ID)
		if len(set) == 0 {
			delete(m.byNPC, s.NPC)
		}
	}
}

func (m *Manager) end(s *Session, reason types.EndReason) {
	if s.State == Ended {
		return
	}
	m.remove(s)
	s.State = Ended
	s.visible = nil
	m.log.Debug("session ended",
		zap.String("session", s.ID),
		zap.Uint16("dialogue", s.DialogueID),
		zap.Uint8("reason", uint8(reason)))
	m.emit(types.Event{
		Kind:       types.EventConversationEnded,
		SessionID:  s.ID,
		Initiator:  s.Initiator,
		NPC:        s.NPC,
		DialogueID: s.DialogueID,
		PageID:     s.PageID,
		Reason:     reason,
	})
}

func (m *Manager) violation(s *Session, pv *ProtocolViolation) error {
	m.log.Warn("protocol violation",
		zap.String("session", pv.SessionID),
		zap.Error(pv))
	if s != nil {
		m.end(s, types.EndProtocolViolation)
	}
	return pv
}

func (m *Manager) contentError(s *Session, kind error) error {
	ce := &ContentLogicError{Kind: kind, SessionID: s.ID, DialogueID: s.DialogueID, PageID: s.PageID}
	m.log.Warn("content logic error",
		zap.String("session", s.ID),
		zap.Uint16("dialogue", s.DialogueID),
		zap.Uint16("page", s.PageID),
		zap.Error(ce))
	m.end(s, types.EndContentError)
	return ce
}

func (m *Manager) runHooks(s *Session, pageID uint16, idx int, resp *types.Response) {
	if m.hooks == nil {
		return
	}
	for _, name := range resp.Hooks {
		call := HookCall{
			Name:       name,
			SessionID:  s.ID,
			Initiator:  s.Initiator,
			NPC:        s.NPC,
			DialogueID: s.DialogueID,
			PageID:     pageID,
			Response:   idx,
		}
		if err := m.hooks.RunHook(call); err != nil {
			m.log.Warn("hook failed",
				zap.String("hook", name),
				zap.String("session", s.ID),
				zap.Uint16("dialogue", s.DialogueID),
				zap.Uint16("page", pageID),
				zap.Error(err))
		}
	}
}

func (m *Manager) emitPage(s *Session, page *types.Page) {
	visible := make([]types.VisibleResponse, len(s.visible))
	for i, raw := range s.visible {
		visible[i] = types.VisibleResponse{Index: uint8(raw), Text: page.Responses[raw].Text}
	}
	m.emit(types.Event{
		Kind:       types.EventPageEntered,
		SessionID:  s.ID,
		Initiator:  s.Initiator,
		NPC:        s.NPC,
		DialogueID: s.DialogueID,
		PageID:     page.ID,
		Text:       page.Text,
		Responses:  visible,
	})
}

func (m *Manager) emit(ev types.Event) {
	if m.listener != nil {
		m.listener.Handle(ev)
	}
}
