package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidConfig     = errors.New("invalid game config")
	ErrInvalidCredential = errors.New("AI credential missing or rejected")
	ErrNoActiveGame      = errors.New("no active game")
	ErrStepInProgress    = errors.New("a step is already in progress")
	ErrPendingRetry      = errors.New("last step failed; retry or clear the error first")
	ErrNothingToRetry    = errors.New("no failed step to retry")
	ErrGameOver          = errors.New("game is over")
	ErrMalformedResponse = errors.New("malformed AI response")
	ErrSaveNotFound      = errors.New("saved game not found")
	ErrEmptySaveName     = errors.New("save name is empty")
	ErrInvalidMeeting    = errors.New("secret meeting not allowed")
)

// Session holds one game and its in-flight bookkeeping.
type Session struct {
	mu         sync.Mutex
	rng        Source
	state      *GameState
	processing bool
	lastError  error
	generation uint64
	// credential is the AI key accepted at start; the game's turns run under it.
	credential string
}

// NewSession returns an empty session drawing randomness from rng.
func NewSession(rng Source) *Session {
	return &Session{rng: rng}
}

// Snapshot is a copy of a session that callers may read freely.
type Snapshot struct {
	State      *GameState `json:"state"`
	LastError  string     `json:"last_error,omitempty"`
	Processing bool       `json:"processing"`
}

// Controller runs game operations on sessions. It owns the collaborators, never the state.
type Controller struct {
	agent        Agent
	validator    CredentialValidator
	store        SaveStore
	storyteller  Storyteller
	content      *Content
	events       *EventTable
	now          func() time.Time
	newID        func() string
	eventChance  float64
	historyLimit int
	onChange     func(*Session)
}

type ControllerOption func(*Controller)

func WithStoryteller(st Storyteller) ControllerOption {
	return func(c *Controller) { c.storyteller = st }
}

func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

func WithEventChance(p float64) ControllerOption {
	return func(c *Controller) { c.eventChance = p }
}

func WithHistoryLimit(n int) ControllerOption {
	return func(c *Controller) { c.historyLimit = n }
}

// WithOnChange registers a callback run after every committed change to a session.
func WithOnChange(fn func(*Session)) ControllerOption {
	return func(c *Controller) { c.onChange = fn }
}

func NewController(agent Agent, validator CredentialValidator, store SaveStore, content *Content, opts ...ControllerOption) *Controller {
	c := &Controller{
		agent:        agent,
		validator:    validator,
		store:        store,
		content:      content,
		events:       NewEventTable(content.Events),
		now:          time.Now,
		newID:        func() string { return uuid.NewString() },
		eventChance:  0.3,
		historyLimit: 40,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) changed(s *Session) {
	if c.onChange != nil {
		c.onChange(s)
	}
}

// Snapshot returns a deep copy of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Processing: s.processing}
	if s.state != nil {
		snap.State = s.state.Clone()
	}
	if s.lastError != nil {
		snap.LastError = s.lastError.Error()
	}
	return snap
}

// LastError returns the recorded step failure, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// ============================================================================
// Start / reset
// ============================================================================

// StartGame validates cfg, then replaces the session's game with a fresh one in the prologue.
func (c *Controller) StartGame(ctx context.Context, s *Session, cfg GameConfig) error {
	if err := cfg.validate(len(c.content.Cast)); err != nil {
		return err
	}
	credential := strings.TrimSpace(cfg.Credential)
	if !c.validator.Validate(ctx, credential) {
		return ErrInvalidCredential
	}

	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		return ErrStepInProgress
	}
	players := assignRoles(c.content.Cast[:cfg.PlayerCount], cfg.Roles, s.rng, c.newID)
	g := &GameState{
		Phase:              PhasePrologue,
		Round:              0,
		Players:            players,
		WaitingForNextStep: true,
	}
	c.appendSystem(g, fmt.Sprintf("Snow has sealed Whitefire Pass. %d travelers wait out the storm at the inn, and some of them bear the Mark.", len(players)))
	s.state = g
	s.credential = credential
	s.lastError = nil
	s.generation++
	s.mu.Unlock()

	logger.Infof("Game started: %d players", len(players))
	DebugLog("StartGame", "roles=%v", cfg.Roles)
	c.changed(s)
	return nil
}

// ResetGame drops the session's game.
func (c *Controller) ResetGame(s *Session) {
	s.mu.Lock()
	s.state = nil
	s.credential = ""
	s.lastError = nil
	s.generation++
	s.mu.Unlock()

	logger.Infof("Game reset")
	c.changed(s)
}

// ClearError forgets the recorded failure without touching the game.
func (c *Controller) ClearError(s *Session) {
	s.mu.Lock()
	s.lastError = nil
	s.mu.Unlock()
	c.changed(s)
}

// ============================================================================
// Stepping
// ============================================================================

// ExecuteNextStep advances the game by one unit of progress.
func (c *Controller) ExecuteNextStep(ctx context.Context, s *Session) error {
	return c.runStep(ctx, s, false)
}

// RetryCurrentStep re-attempts the step that last failed.
func (c *Controller) RetryCurrentStep(ctx context.Context, s *Session) error {
	return c.runStep(ctx, s, true)
}

// begin claims the session and hands back a clone to work on, with the credential its turns run under.
func (s *Session) begin(retry bool) (*GameState, uint64, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == nil:
		return nil, 0, "", ErrNoActiveGame
	case s.processing:
		return nil, 0, "", ErrStepInProgress
	case retry && s.lastError == nil:
		return nil, 0, "", ErrNothingToRetry
	case !retry && s.lastError != nil:
		return nil, 0, "", ErrPendingRetry
	case s.state.Phase == PhaseEnd:
		return nil, 0, "", ErrGameOver
	}
	s.processing = true
	return s.state.Clone(), s.generation, s.credential, nil
}

// finish commits working on success; on failure the committed state is left as it was.
func (s *Session) finish(working *GameState, gen uint64, stepErr error, recordErr bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processing = false
	if gen != s.generation {
		return
	}
	if stepErr != nil {
		if recordErr {
			s.lastError = stepErr
		}
		return
	}
	s.state = working
	s.lastError = nil
}

func (c *Controller) runStep(ctx context.Context, s *Session, retry bool) error {
	working, gen, credential, err := s.begin(retry)
	if err != nil {
		return err
	}
	c.changed(s)

	stepErr := c.step(withCredential(ctx, credential), s.rng, working)
	if stepErr != nil {
		logError("ExecuteNextStep", stepErr)
	}
	s.finish(working, gen, stepErr, true)
	c.changed(s)
	return stepErr
}

// step dispatches on the phase. It only touches g, never the session.
func (c *Controller) step(ctx context.Context, rng Source, g *GameState) error {
	g.WaitingForNextStep = false
	defer func() { g.WaitingForNextStep = g.Phase != PhaseEnd }()

	switch g.Phase {
	case PhasePrologue:
		c.transitionToNight(g, 1)
		return nil
	case PhaseNight:
		return c.nightStep(ctx, rng, g)
	case PhaseDay:
		return c.dayStep(ctx, g)
	case PhaseVoting:
		return c.votingStep(ctx, rng, g)
	case PhaseEnd:
		return ErrGameOver
	default:
		return ErrNoActiveGame
	}
}

// ask runs one agent turn and interprets the reply.
func (c *Controller) ask(ctx context.Context, g *GameState, turn Turn) (string, error) {
	turn.Phase = g.Phase
	turn.NightPhase = g.NightPhase
	turn.Round = g.Round
	turn.History = g.visibleHistory(turn.Actor.Name, c.historyLimit)
	for _, tie := range c.content.Relationships.For(turn.Actor.Name) {
		if g.player(tie.Target) != nil {
			turn.Ties = append(turn.Ties, tie)
		}
	}
	if turn.Actor.Role == RoleTwin {
		turn.Twins = g.otherTwins(turn.Actor.Name)
	}
	c.appendMessage(g, turn.Actor.Name, MessagePrompt, buildTurnPrompt(turn), turn.Actor.Name)

	reply, err := c.agent.Act(ctx, turn)
	if err != nil {
		return "", err
	}
	thinking, reply := splitThinking(reply)
	if thinking != "" {
		c.appendMessage(g, turn.Actor.Name, MessageThinking, thinking, turn.Actor.Name)
	}
	return interpretReply(turn, reply)
}

// ============================================================================
// Messages
// ============================================================================

func (c *Controller) appendMessage(g *GameState, sender string, typ MessageType, content string, audience ...string) {
	g.Messages = append(g.Messages, Message{
		ID:        c.newID(),
		Sender:    sender,
		Type:      typ,
		Content:   content,
		Timestamp: c.now(),
		Phase:     g.Phase,
		Round:     g.Round,
		Audience:  audience,
	})
}

func (c *Controller) appendSystem(g *GameState, content string) {
	c.appendMessage(g, SystemSender, MessageSystem, content)
}

// ============================================================================
// Saves
// ============================================================================

// SaveGame stores a snapshot of the session's game under name.
func (c *Controller) SaveGame(ctx context.Context, s *Session, name string) (string, error) {
	if name == "" {
		return "", ErrEmptySaveName
	}
	s.mu.Lock()
	if s.state == nil {
		s.mu.Unlock()
		return "", ErrNoActiveGame
	}
	state := s.state.Clone()
	s.mu.Unlock()

	id, err := c.store.Save(ctx, name, state)
	if err != nil {
		return "", fmt.Errorf("save %q: %w", name, err)
	}
	logger.Infof("Game saved: %s (%s)", name, id)
	return id, nil
}

// LoadGame replaces the session's game with the saved snapshot.
func (c *Controller) LoadGame(ctx context.Context, s *Session, id string) error {
	saved, err := c.store.Load(ctx, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		return ErrStepInProgress
	}
	s.state = saved.State
	s.lastError = nil
	s.generation++
	s.mu.Unlock()

	logger.Infof("Game loaded: %s (%s)", saved.Name, id)
	c.changed(s)
	return nil
}

// DeleteGame removes a saved game.
func (c *Controller) DeleteGame(ctx context.Context, id string) error {
	return c.store.Delete(ctx, id)
}

// GetSavedGames lists saves, most recent first.
func (c *Controller) GetSavedGames(ctx context.Context) ([]SavedGame, error) {
	return c.store.List(ctx)
}
