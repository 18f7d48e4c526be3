package main

import (
	"slices"
	"time"
)

// Phase is the top-level game phase.
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhasePrologue Phase = "prologue"
	PhaseNight    Phase = "night"
	PhaseDay      Phase = "day"
	PhaseVoting   Phase = "voting"
	PhaseEnd      Phase = "end"
)

// EmotionalState colors a character's behavior after a related death.
type EmotionalState string

const (
	EmotionNormal EmotionalState = "normal"
	EmotionVirtue EmotionalState = "virtue"
	EmotionVice   EmotionalState = "vice"
)

// MessageType classifies a log entry.
type MessageType string

const (
	MessageSystem   MessageType = "system"
	MessageSpeech   MessageType = "speech"
	MessageVote     MessageType = "vote"
	MessageDeath    MessageType = "death"
	MessageAction   MessageType = "action"
	MessagePrompt   MessageType = "prompt"
	MessageThinking MessageType = "thinking"
)

// SystemSender is the sender name of narrator messages.
const SystemSender = "system"

type Player struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	EnglishName    string         `json:"english_name,omitempty"`
	Role           Role           `json:"role"`
	IsAlive        bool           `json:"is_alive"`
	IsAI           bool           `json:"is_ai"`
	EmotionalState EmotionalState `json:"emotional_state"`
	Personality    string         `json:"personality"`
	Gender         string         `json:"gender,omitempty"`
	Occupation     string         `json:"occupation,omitempty"`
	Trait          string         `json:"trait,omitempty"`
	Height         string         `json:"height,omitempty"`
	BloodType      string         `json:"blood_type,omitempty"`
}

// Message is one entry in the append-only game log.
// Audience restricts who may see it; empty means everyone.
type Message struct {
	ID        string      `json:"id"`
	Sender    string      `json:"sender"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Phase     Phase       `json:"phase,omitempty"`
	Round     int         `json:"round,omitempty"`
	Audience  []string    `json:"audience,omitempty"`
}

// visibleTo reports whether the named player may see m.
func (m Message) visibleTo(name string) bool {
	return len(m.Audience) == 0 || slices.Contains(m.Audience, name)
}

// NightState is the bookkeeping of the night in progress.
type NightState struct {
	Protected     string            `json:"protected,omitempty"`
	LastProtected string            `json:"last_protected,omitempty"`
	KillVotes     map[string]string `json:"kill_votes,omitempty"`
	VoteOrder     []string          `json:"vote_order,omitempty"`
}

// Investigation is a listener's private result.
type Investigation struct {
	Round    int    `json:"round"`
	Listener string `json:"listener"`
	Target   string `json:"target"`
	IsMarked bool   `json:"is_marked"`
}

type GameState struct {
	Phase              Phase      `json:"phase"`
	NightPhase         NightPhase `json:"night_phase,omitempty"`
	Round              int        `json:"round"`
	Players            []Player   `json:"players"`
	Messages           []Message  `json:"messages"`
	CurrentPlayerIndex int        `json:"current_player_index"`
	Winner             Faction    `json:"winner,omitempty"`
	WaitingForNextStep bool       `json:"waiting_for_next_step"`

	Night          NightState        `json:"night"`
	Votes          map[string]string `json:"votes,omitempty"`
	VoteOrder      []string          `json:"vote_order,omitempty"`
	Investigations []Investigation   `json:"investigations,omitempty"`
	Autopsies      []string          `json:"autopsies,omitempty"`
	LastDeath      string            `json:"last_death,omitempty"`
	Examined       string            `json:"examined,omitempty"`
	MeetingHeld    bool              `json:"meeting_held,omitempty"`
}

// Clone returns a deep copy, so a step can run on it and be discarded on failure.
func (g *GameState) Clone() *GameState {
	c := *g
	c.Players = slices.Clone(g.Players)
	c.Messages = make([]Message, len(g.Messages))
	for i, m := range g.Messages {
		m.Audience = slices.Clone(m.Audience)
		c.Messages[i] = m
	}
	c.Night.KillVotes = cloneMap(g.Night.KillVotes)
	c.Night.VoteOrder = slices.Clone(g.Night.VoteOrder)
	c.Votes = cloneMap(g.Votes)
	c.VoteOrder = slices.Clone(g.VoteOrder)
	c.Investigations = slices.Clone(g.Investigations)
	c.Autopsies = slices.Clone(g.Autopsies)
	return &c
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (g *GameState) alivePlayers() []Player {
	var alive []Player
	for _, p := range g.Players {
		if p.IsAlive {
			alive = append(alive, p)
		}
	}
	return alive
}

func (g *GameState) aliveNames() []string {
	var names []string
	for _, p := range g.Players {
		if p.IsAlive {
			names = append(names, p.Name)
		}
	}
	return names
}

// player returns a pointer into Players for the named player, or nil.
func (g *GameState) player(name string) *Player {
	for i := range g.Players {
		if g.Players[i].Name == name {
			return &g.Players[i]
		}
	}
	return nil
}

// EligibleActors is the filtered list CurrentPlayerIndex points into.
// Night with a sub-phase: alive players whose role acts in it. Day and voting: all alive.
func (g *GameState) EligibleActors() []Player {
	switch g.Phase {
	case PhaseNight:
		if g.NightPhase == NightNone {
			return nil
		}
		var actors []Player
		for _, p := range g.Players {
			if p.IsAlive && p.Role.ActsIn(g.NightPhase) {
				actors = append(actors, p)
			}
		}
		return actors
	case PhaseDay, PhaseVoting:
		return g.alivePlayers()
	default:
		return nil
	}
}

// CurrentActor maps CurrentPlayerIndex back to a player. ok is false once the list is exhausted.
func (g *GameState) CurrentActor() (Player, bool) {
	actors := g.EligibleActors()
	if g.CurrentPlayerIndex < 0 || g.CurrentPlayerIndex >= len(actors) {
		return Player{}, false
	}
	return actors[g.CurrentPlayerIndex], true
}

// markedNames lists alive marked players.
func (g *GameState) markedNames() []string {
	var names []string
	for _, p := range g.Players {
		if p.IsAlive && p.Role.IsMarked() {
			names = append(names, p.Name)
		}
	}
	return names
}

// otherTwins lists the living twins other than name.
func (g *GameState) otherTwins(name string) []string {
	var twins []string
	for _, p := range g.Players {
		if p.IsAlive && p.Role == RoleTwin && p.Name != name {
			twins = append(twins, p.Name)
		}
	}
	return twins
}

// visibleHistory returns the last limit messages the named player may see.
// Prompts and reasoning are the log's record of a turn, never part of anyone's memory.
func (g *GameState) visibleHistory(name string, limit int) []Message {
	var visible []Message
	for _, m := range g.Messages {
		if m.Type == MessagePrompt || m.Type == MessageThinking {
			continue
		}
		if m.visibleTo(name) {
			visible = append(visible, m)
		}
	}
	if limit > 0 && len(visible) > limit {
		visible = visible[len(visible)-limit:]
	}
	return visible
}

// publicHistory renders public messages as lines, for the storyteller.
func (g *GameState) publicHistory() []string {
	var lines []string
	for _, m := range g.Messages {
		if len(m.Audience) == 0 && m.Type != MessagePrompt && m.Type != MessageThinking {
			lines = append(lines, m.Sender+": "+m.Content)
		}
	}
	return lines
}
