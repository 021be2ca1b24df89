package play

import (
	"fmt"
	"strings"

	"github.com/nathoo/parley/engine/parser"
	"github.com/nathoo/parley/engine/resolve"
	"github.com/nathoo/parley/engine/state"
	"github.com/nathoo/parley/types"
)

// Options configures a Player.
type Options struct {
	Driver Driver
	World  *state.World
	Self   types.EntityRef
	// Editable allows the stat command. Only true when World is the world
	// the driver's engine reads.
	Editable bool
}

// Player turns playtest commands into driver calls and formatted output.
type Player struct {
	driver   Driver
	world    *state.World
	self     types.EntityRef
	editable bool

	session string
	current *types.Event
}

// New creates a player.
func New(opts Options) *Player {
	self := opts.Self
	if self == "" && opts.World != nil {
		self = opts.World.Player()
	}
	return &Player{
		driver:   opts.Driver,
		world:    opts.World,
		self:     self,
		editable: opts.Editable,
	}
}

// Self returns the player's entity.
func (p *Player) Self() types.EntityRef { return p.self }

// World returns the local world.
func (p *Player) World() *state.World { return p.world }

// Editable reports whether stats may be changed from the prompt.
func (p *Player) Editable() bool { return p.editable }

// Session returns the open session id, or "".
func (p *Player) Session() string { return p.session }

// Current returns the page the open conversation is waiting on.
func (p *Player) Current() (types.Event, bool) {
	if p.current == nil {
		return types.Event{}, false
	}
	return *p.current, true
}

// Step processes one command.
func (p *Player) Step(input string) types.Result {
	intent := parser.Parse(input)
	switch intent.Verb {
	case "":
		return types.Result{}
	case parser.VerbTalk:
		return p.talk(intent)
	case parser.VerbChoose:
		return p.choose(intent)
	case parser.VerbEnd:
		return p.end()
	case parser.VerbLook:
		return p.look()
	case parser.VerbStat:
		return p.stat(intent)
	case parser.VerbWho:
		return p.who()
	case parser.VerbHelp:
		return output(helpLines...)
	default:
		return output("I don't understand that. Type 'help' for commands.")
	}
}

func (p *Player) talk(intent types.Intent) types.Result {
	if intent.Object == "" {
		return output("Talk to whom?")
	}
	npc, err := resolve.NPC(p.world, intent.Object)
	if err != nil {
		return output(capitalize(err.Error()) + ".")
	}
	evs, err := p.driver.Start(npc)
	return p.result(evs, err)
}

func (p *Player) choose(intent types.Intent) types.Result {
	idx, ok := parser.Choice(intent)
	if !ok {
		return output("Choose a response by its number.")
	}
	if p.session == "" {
		return output("You are not talking to anyone.")
	}
	evs, err := p.driver.Select(p.session, idx)
	return p.result(evs, err)
}

func (p *Player) end() types.Result {
	if p.session == "" {
		return output("You are not talking to anyone.")
	}
	evs, err := p.driver.End(p.session)
	return p.result(evs, err)
}

func (p *Player) look() types.Result {
	if p.current == nil {
		return output("You are not talking to anyone. Try 'who' or 'talk <npc>'.")
	}
	return output(p.format(*p.current)...)
}

func (p *Player) stat(intent types.Intent) types.Result {
	if !p.editable {
		return output("Stats live on the server; 'stat' only works in local play.")
	}
	name, value, ok := parser.StatArgs(intent)
	if !ok {
		return output("Usage: stat <entity> <stat> <value>")
	}
	ref, err := resolve.Entity(p.world, intent.Object)
	if err != nil {
		return output(capitalize(err.Error()) + ".")
	}
	if err := p.world.SetStat(ref, name, value); err != nil {
		return output(err.Error())
	}
	return output(fmt.Sprintf("%s %s = %g", p.world.DisplayName(ref), name, value))
}

func (p *Player) who() types.Result {
	var lines []string
	for _, e := range p.world.Entities() {
		if e.Dialogue == nil || e.ID == p.self {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s (%s)", p.world.DisplayName(e.ID), e.ID))
	}
	if len(lines) == 0 {
		return output("Nobody here has anything to say.")
	}
	return output(append([]string{"You can talk to:"}, lines...)...)
}

// result applies events to the player's view and formats them.
func (p *Player) result(evs []types.Event, err error) types.Result {
	res := types.Result{Events: evs}
	for _, ev := range evs {
		p.apply(ev)
		res.Output = append(res.Output, p.format(ev)...)
	}
	if err != nil {
		res.Output = append(res.Output, fmt.Sprintf("[error: %v]", err))
	}
	return res
}

func (p *Player) apply(ev types.Event) {
	switch ev.Kind {
	case types.EventPageEntered:
		cur := ev
		p.session = ev.SessionID
		p.current = &cur
	case types.EventConversationEnded:
		if ev.SessionID == p.session {
			p.session = ""
			p.current = nil
		}
	}
}

func (p *Player) format(ev types.Event) []string {
	name := string(ev.NPC)
	if p.world != nil {
		name = p.world.DisplayName(ev.NPC)
	}
	switch ev.Kind {
	case types.EventPageEntered:
		var lines []string
		if ev.Text != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", name, ev.Text))
		}
		if len(ev.Responses) == 0 {
			lines = append(lines, "  (nothing more to say; type 'end' to leave)")
		}
		for i, r := range ev.Responses {
			lines = append(lines, fmt.Sprintf("  %d. %s", i+1, r.Text))
		}
		return lines
	case types.EventConversationEnded:
		return []string{fmt.Sprintf("[conversation with %s ended: %s]", name, ReasonName(ev.Reason))}
	}
	return nil
}

var helpLines = []string{
	"Commands:",
	"  who                         — List who you can talk to",
	"  talk <npc> (t)              — Start a conversation",
	"  <n> / choose <n>            — Pick response n",
	"  end (bye)                   — Leave the conversation",
	"  look (l)                    — Show the current page again",
	"  stat <entity> <stat> <val>  — Change a stat (local play)",
}

var reasonNames = map[types.EndReason]string{
	types.EndCompleted:         "completed",
	types.EndRequested:         "requested",
	types.EndReplaced:          "replaced",
	types.EndParticipantLost:   "participant lost",
	types.EndTimeout:           "timeout",
	types.EndProtocolViolation: "protocol violation",
	types.EndContentError:      "content error",
}

// ReasonName returns a short description of an end reason.
func ReasonName(r types.EndReason) string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", r)
}

func output(lines ...string) types.Result {
	return types.Result{Output: lines}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
