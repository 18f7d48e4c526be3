package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const storytellerSystemPrompt = `You are the narrator of a snowbound gothic mystery at Whitefire Pass. When a traveler dies, you tell a short atmospheric passage about their fate. Keep it to 2-3 sentences. Never reveal who bears the Mark.`

const storyTimeout = 30 * time.Second

// Storyteller generates a dramatic story after deaths in the game.
// onChunk is called with each text chunk as it streams in.
type Storyteller interface {
	Tell(ctx context.Context, history []string, onChunk func(string)) (string, error)
}

type llmStoryteller struct {
	models       *modelPool
	systemPrompt string
	callOpts     []llms.CallOption
}

func (s *llmStoryteller) Tell(ctx context.Context, history []string, onChunk func(string)) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, s.systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman,
			"What has happened so far:\n"+strings.Join(history, "\n")+
				"\n\nTell a short dramatic story (2-3 sentences) about the traveler who just died."),
	}

	var fullText strings.Builder
	opts := append(append([]llms.CallOption(nil), s.callOpts...), llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		text := string(chunk)
		fullText.WriteString(text)
		if onChunk != nil {
			onChunk(text)
		}
		return nil
	}))

	llm, err := s.models.get(ctx, credentialFrom(ctx))
	if err != nil {
		return "", err
	}
	_, err = llm.GenerateContent(ctx, messages, opts...)
	return strings.TrimSpace(fullText.String()), err
}

// buildCallOpts builds LLM call options from the config.
func buildCallOpts(cfg AppConfig) []llms.CallOption {
	var opts []llms.CallOption

	if cfg.AITemperature != "" {
		if f, err := strconv.ParseFloat(cfg.AITemperature, 64); err == nil {
			opts = append(opts, llms.WithTemperature(f))
		} else {
			logger.Warnf("AI: invalid temperature %q: %v", cfg.AITemperature, err)
		}
	}

	return opts
}

// newModel builds the langchaingo model for the configured provider.
func newModel(ctx context.Context, cfg AppConfig) (llms.Model, error) {
	model := cfg.AIModel

	switch cfg.AIProvider {
	case "ollama":
		llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(cfg.AIURL))
		if err != nil {
			return nil, fmt.Errorf("init Ollama (%s at %s): %w", model, cfg.AIURL, err)
		}
		return llm, nil
	case "openai":
		opts := []openai.Option{openai.WithModel(model)}
		if cfg.AIAPIKey != "" {
			opts = append(opts, openai.WithToken(cfg.AIAPIKey))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("init OpenAI (%s): %w", model, err)
		}
		return llm, nil
	case "claude":
		opts := []anthropic.Option{anthropic.WithModel(model)}
		if cfg.AIAPIKey != "" {
			opts = append(opts, anthropic.WithToken(cfg.AIAPIKey))
		}
		llm, err := anthropic.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("init Claude (%s): %w", model, err)
		}
		return llm, nil
	case "gemini":
		opts := []googleai.Option{googleai.WithDefaultModel(model)}
		if cfg.AIAPIKey != "" {
			opts = append(opts, googleai.WithAPIKey(cfg.AIAPIKey))
		}
		llm, err := googleai.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("init Gemini (%s): %w", model, err)
		}
		return llm, nil
	case "groq":
		llm, err := openai.New(
			openai.WithModel(model),
			openai.WithBaseURL("https://api.groq.com/openai/v1"),
			openai.WithToken(cfg.AIAPIKey),
		)
		if err != nil {
			return nil, fmt.Errorf("init Groq (%s): %w", model, err)
		}
		return llm, nil
	case "openai-compatible":
		if cfg.AIURL == "" {
			return nil, fmt.Errorf("ai_url is required for openai-compatible provider: %w", ErrInvalidConfig)
		}
		opts := []openai.Option{
			openai.WithModel(model),
			openai.WithBaseURL(cfg.AIURL),
		}
		if cfg.AIAPIKey != "" {
			opts = append(opts, openai.WithToken(cfg.AIAPIKey))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("init openai-compatible (%s at %s): %w", model, cfg.AIURL, err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unknown ai_provider %q: %w", cfg.AIProvider, ErrInvalidConfig)
	}
}

// modelPool hands out the model for a game's credential. The startup model serves the
// configured key; any other credential gets its own model from build, built once.
type modelPool struct {
	base  llms.Model
	cfg   AppConfig
	build func(ctx context.Context, cfg AppConfig) (llms.Model, error)

	mu     sync.Mutex
	models map[string]llms.Model
}

func newModelPool(base llms.Model, cfg AppConfig) *modelPool {
	return &modelPool{base: base, cfg: cfg, build: newModel, models: make(map[string]llms.Model)}
}

func (p *modelPool) get(ctx context.Context, credential string) (llms.Model, error) {
	if credential == "" || credential == p.cfg.AIAPIKey {
		return p.base, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if llm, ok := p.models[credential]; ok {
		return llm, nil
	}
	cfg := p.cfg
	cfg.AIAPIKey = credential
	llm, err := p.build(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("model for game credential: %w", err)
	}
	p.models[credential] = llm
	return llm, nil
}

// newStoryteller returns nil when the storyteller is disabled.
func newStoryteller(models *modelPool, cfg AppConfig) Storyteller {
	if !cfg.StorytellerEnabled || models == nil {
		logger.Infof("Storyteller: disabled (set storyteller_enabled to enable)")
		return nil
	}
	logger.Infof("Storyteller: %s model=%s", cfg.AIProvider, cfg.AIModel)
	return &llmStoryteller{models: models, systemPrompt: storytellerSystemPrompt, callOpts: buildCallOpts(cfg)}
}

// tellStory asks the storyteller for a passage about the latest death.
// Failures only drop the flavor text.
func tellStory(ctx context.Context, st Storyteller, history []string) string {
	if st == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, storyTimeout)
	defer cancel()

	text, err := st.Tell(ctx, history, nil)
	if err != nil {
		logger.Warnf("Storyteller: %v", err)
		return ""
	}
	return text
}
