package main

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"
)

// TurnKind is what an actor is asked to produce.
type TurnKind string

const (
	TurnSpeech  TurnKind = "speech"
	TurnVote    TurnKind = "vote"
	TurnProtect TurnKind = "protect"
	TurnListen  TurnKind = "listen"
	TurnDiscuss TurnKind = "discuss"
	TurnKill    TurnKind = "kill"
	TurnMeeting TurnKind = "meeting"
)

// isChoice reports whether the reply must name one of the candidates.
func (k TurnKind) isChoice() bool {
	switch k {
	case TurnVote, TurnProtect, TurnListen, TurnKill:
		return true
	}
	return false
}

// Turn is everything an agent sees when asked to act.
type Turn struct {
	Kind       TurnKind
	Actor      Player
	Phase      Phase
	NightPhase NightPhase
	Round      int
	History    []Message
	Candidates []string
	Allies     []string
	Partner    string
	// Twins lists the other living twins, for a twin actor.
	Twins []string
	Ties  []CharacterRelationship
}

// Agent produces speech or decisions for AI-driven players.
type Agent interface {
	Act(ctx context.Context, turn Turn) (string, error)
}

// CredentialValidator checks the AI backend credential before a game starts.
type CredentialValidator interface {
	Validate(ctx context.Context, credential string) bool
}

type credentialKey struct{}

// withCredential attaches the AI credential a game was started with.
func withCredential(ctx context.Context, credential string) context.Context {
	return context.WithValue(ctx, credentialKey{}, credential)
}

// credentialFrom returns the credential attached by withCredential, or "".
func credentialFrom(ctx context.Context) string {
	credential, _ := ctx.Value(credentialKey{}).(string)
	return credential
}

var thinkRe = regexp.MustCompile(`(?s)<think>(.*?)</think>`)

// splitThinking separates the <think> blocks reasoning models emit from the reply itself.
func splitThinking(reply string) (thinking, rest string) {
	var parts []string
	for _, m := range thinkRe.FindAllStringSubmatch(reply, -1) {
		if t := strings.TrimSpace(m[1]); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n"), thinkRe.ReplaceAllString(reply, "")
}

// interpretReply turns a raw agent reply into speech text or a candidate name.
func interpretReply(turn Turn, reply string) (string, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("%s from %s: empty reply: %w", turn.Kind, turn.Actor.Name, ErrMalformedResponse)
	}
	if !turn.Kind.isChoice() {
		return reply, nil
	}
	name, err := matchCandidate(reply, turn.Candidates)
	if err != nil {
		return "", fmt.Errorf("%s from %s: %w", turn.Kind, turn.Actor.Name, err)
	}
	return name, nil
}

// matchCandidate accepts an exact name, or a reply that mentions exactly one candidate.
func matchCandidate(reply string, candidates []string) (string, error) {
	clean := strings.Trim(reply, " \t\r\n\"'`.,!。，！「」")
	for _, c := range candidates {
		if strings.EqualFold(clean, c) {
			return c, nil
		}
	}
	var found []string
	for _, c := range candidates {
		if strings.Contains(reply, c) {
			found = append(found, c)
		}
	}
	if len(found) == 1 {
		return found[0], nil
	}
	return "", fmt.Errorf("reply %q names %d of %d candidates: %w", reply, len(found), len(candidates), ErrMalformedResponse)
}

// ============================================================================
// langchaingo agent
// ============================================================================

const agentSystemPrompt = `You are a traveler trapped at Whitefire Pass, an isolated mountain inn cut off by snow. Some among you bear the Mark and kill by night. Stay in character. Never mention that you are an AI.`

type llmAgent struct {
	models   *modelPool
	limiter  *rate.Limiter
	callOpts []llms.CallOption
}

// newLimiter paces AI calls to perMinute; zero or less disables pacing.
func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

func newLLMAgent(models *modelPool, cfg AppConfig) *llmAgent {
	return &llmAgent{models: models, limiter: newLimiter(cfg.AIRatePerMinute), callOpts: buildCallOpts(cfg)}
}

func (a *llmAgent) Act(ctx context.Context, turn Turn) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for AI slot: %w", err)
	}
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, agentSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, buildTurnPrompt(turn)),
	}
	llm, err := a.models.get(ctx, credentialFrom(ctx))
	if err != nil {
		return "", err
	}
	resp, err := llm.GenerateContent(ctx, messages, a.callOpts...)
	if err != nil {
		return "", fmt.Errorf("generate %s for %s: %w", turn.Kind, turn.Actor.Name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate %s for %s: no choices: %w", turn.Kind, turn.Actor.Name, ErrMalformedResponse)
	}
	DebugLog("llmAgent.Act", "%s (%s) -> %q", turn.Actor.Name, turn.Kind, resp.Choices[0].Content)
	return resp.Choices[0].Content, nil
}

// buildTurnPrompt renders persona, role, visible history and the instruction for this turn.
func buildTurnPrompt(turn Turn) string {
	var b strings.Builder
	p := turn.Actor
	info := p.Role.Info()

	fmt.Fprintf(&b, "You are %s", p.Name)
	if p.EnglishName != "" {
		fmt.Fprintf(&b, " (%s)", p.EnglishName)
	}
	if p.Occupation != "" {
		fmt.Fprintf(&b, ", a %s", p.Occupation)
	}
	b.WriteString(".\n")
	if p.Personality != "" {
		fmt.Fprintf(&b, "Personality: %s\n", p.Personality)
	}
	fmt.Fprintf(&b, "Your secret role: %s. %s\n", info.Title, info.Description)
	switch p.EmotionalState {
	case EmotionVirtue:
		b.WriteString("Grief has hardened your resolve: you act selflessly and speak with conviction.\n")
	case EmotionVice:
		b.WriteString("Grief has soured you: you are bitter, suspicious and quick to accuse.\n")
	}
	if len(turn.Allies) > 0 {
		fmt.Fprintf(&b, "Your fellow marked: %s\n", strings.Join(turn.Allies, ", "))
	}
	if len(turn.Twins) > 0 {
		fmt.Fprintf(&b, "Your twin, sworn to the same oath: %s\n", strings.Join(turn.Twins, ", "))
	}
	if len(turn.Ties) > 0 {
		ties := make([]string, len(turn.Ties))
		for i, t := range turn.Ties {
			ties[i] = fmt.Sprintf("%s (%s)", t.Target, t.Type.Label())
		}
		fmt.Fprintf(&b, "People you are bound to: %s\n", strings.Join(ties, ", "))
	}
	fmt.Fprintf(&b, "It is %s of round %d.\n", turn.Phase, turn.Round)

	if len(turn.History) > 0 {
		b.WriteString("\nWhat you have witnessed:\n")
		for _, m := range turn.History {
			fmt.Fprintf(&b, "- %s: %s\n", m.Sender, m.Content)
		}
	}

	b.WriteString("\n")
	switch turn.Kind {
	case TurnSpeech:
		b.WriteString("Speak to the others in two or three sentences. Reply with your words only.")
	case TurnDiscuss:
		b.WriteString("Whisper to your fellow marked about whom to take tonight. Two sentences. Reply with your words only.")
	case TurnMeeting:
		fmt.Fprintf(&b, "You meet %s alone. Say what you would never say in front of the others. Two sentences.", turn.Partner)
	case TurnVote:
		b.WriteString("Vote for the traveler to sacrifice.")
	case TurnProtect:
		b.WriteString("Choose whose door to bar tonight.")
	case TurnListen:
		b.WriteString("Choose whose heart to listen to tonight.")
	case TurnKill:
		b.WriteString("Choose tonight's victim.")
	}
	if turn.Kind.isChoice() {
		fmt.Fprintf(&b, " Reply with exactly one name from: %s", strings.Join(turn.Candidates, ", "))
	}
	return b.String()
}

// ============================================================================
// Credential validation
// ============================================================================

// llmValidator accepts a credential if a one-token completion with it succeeds.
type llmValidator struct {
	cfg     AppConfig
	timeout time.Duration
}

func (v llmValidator) Validate(ctx context.Context, credential string) bool {
	if strings.TrimSpace(credential) == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	cfg := v.cfg
	cfg.AIAPIKey = credential
	model, err := newModel(ctx, cfg)
	if err != nil {
		logger.Warnf("Validator: %v", err)
		return false
	}
	if _, err := llms.GenerateFromSinglePrompt(ctx, model, "Reply with OK.", llms.WithMaxTokens(4)); err != nil {
		logger.Warnf("Validator: credential rejected by %s: %v", cfg.AIProvider, err)
		return false
	}
	return true
}
