package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// ============================================================================
// Test logger
// ============================================================================

// TestLogger routes test diagnostics through zap into t.Log.
type TestLogger struct {
	*zap.SugaredLogger
}

func NewTestLogger(t *testing.T) *TestLogger {
	return &TestLogger{zaptest.NewLogger(t, zaptest.Level(zap.DebugLevel)).Sugar()}
}

// Debug logs a formatted debug line.
func (tl *TestLogger) Debug(format string, args ...any) {
	tl.Debugf(format, args...)
}

// ============================================================================
// Doubles
// ============================================================================

var errUpstream = errors.New("upstream unavailable")

// mockAgent picks the first candidate and says a stock line, unless told otherwise.
// It records each turn and the credential the turn ran under.
type mockAgent struct {
	mu          sync.Mutex
	calls       []Turn
	credentials []string
	failures    int
	reply       func(Turn) (string, error)
}

func (m *mockAgent) Act(ctx context.Context, turn Turn) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, turn)
	m.credentials = append(m.credentials, credentialFrom(ctx))
	if m.failures > 0 {
		m.failures--
		m.mu.Unlock()
		return "", errUpstream
	}
	reply := m.reply
	m.mu.Unlock()

	if reply != nil {
		return reply(turn)
	}
	return defaultReply(turn), nil
}

func (m *mockAgent) failNext(n int) {
	m.mu.Lock()
	m.failures = n
	m.mu.Unlock()
}

func (m *mockAgent) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func defaultReply(turn Turn) string {
	if turn.Kind.isChoice() {
		return turn.Candidates[0]
	}
	return fmt.Sprintf("%s keeps their own counsel.", turn.Actor.Name)
}

type stubValidator bool

func (v stubValidator) Validate(_ context.Context, credential string) bool {
	return bool(v) && credential != ""
}

type mockStoryteller struct {
	text string
	err  error
}

func (m *mockStoryteller) Tell(_ context.Context, _ []string, onChunk func(string)) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if onChunk != nil {
		onChunk(m.text)
	}
	return m.text, nil
}

// fakeClock advances one second per reading.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 12, 21, 18, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// ============================================================================
// Test context
// ============================================================================

// TestContext holds an isolated controller, session and database.
type TestContext struct {
	t       *testing.T
	logger  *TestLogger
	content *Content
	ctrl    *Controller
	session *Session
	agent   *mockAgent
	store   *sqlStore
	db      *sqlx.DB
	clock   *fakeClock
}

func newTestRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

// newTestContext builds a controller over a private in-memory database.
// Events are off unless opts turn them on.
func newTestContext(t *testing.T, opts ...ControllerOption) *TestContext {
	t.Helper()
	logger := NewTestLogger(t)

	content, err := loadContent()
	if err != nil {
		t.Fatalf("Failed to load content: %v", err)
	}

	testDB, err := openDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })

	clock := newFakeClock()
	store := newSQLStore(testDB, clock.Now)
	agent := &mockAgent{}

	all := append([]ControllerOption{WithClock(clock.Now), WithEventChance(0)}, opts...)
	ctrl := NewController(agent, stubValidator(true), store, content, all...)

	return &TestContext{
		t:       t,
		logger:  logger,
		content: content,
		ctrl:    ctrl,
		session: NewSession(newTestRNG(42)),
		agent:   agent,
		store:   store,
		db:      testDB,
		clock:   clock,
	}
}

// logDB dumps the test database into the test log.
func (tc *TestContext) logDB(context string) {
	tc.logger.Info(dumpDB(tc.db, context))
}

func (tc *TestContext) start(roles ...Role) {
	tc.t.Helper()
	cfg := GameConfig{PlayerCount: len(roles), Roles: roles, Credential: "test-key"}
	if err := tc.ctrl.StartGame(context.Background(), tc.session, cfg); err != nil {
		tc.t.Fatalf("StartGame: %v", err)
	}
}

func (tc *TestContext) step() error {
	return tc.ctrl.ExecuteNextStep(context.Background(), tc.session)
}

// mustStep advances once and fails the test on error.
func (tc *TestContext) mustStep() {
	tc.t.Helper()
	if err := tc.step(); err != nil {
		tc.logDB("FAIL: step error")
		tc.t.Fatalf("ExecuteNextStep: %v", err)
	}
}

// stepUntil advances until cond holds, giving up after limit steps.
func (tc *TestContext) stepUntil(limit int, cond func(*GameState) bool) {
	tc.t.Helper()
	for i := 0; i < limit; i++ {
		if cond(tc.state()) {
			return
		}
		tc.mustStep()
	}
	if !cond(tc.state()) {
		tc.t.Fatalf("condition not reached after %d steps (phase %s)", limit, tc.state().Phase)
	}
}

// state returns a copy of the committed game.
func (tc *TestContext) state() *GameState {
	return tc.session.Snapshot().State
}

// setState replaces the committed game, for tests that need a precise position.
func (tc *TestContext) setState(g *GameState) {
	tc.session.mu.Lock()
	tc.session.state = g
	tc.session.mu.Unlock()
}

// testPlayers builds alive players named P1..Pn with the given roles.
func testPlayers(roles ...Role) []Player {
	players := make([]Player, len(roles))
	for i, r := range roles {
		players[i] = Player{
			ID:             fmt.Sprintf("id-%d", i+1),
			Name:           fmt.Sprintf("P%d", i+1),
			Role:           r,
			IsAlive:        true,
			IsAI:           true,
			EmotionalState: EmotionNormal,
		}
	}
	return players
}
