// Package llm provides the Gemini-backed repair and review collaborators.
package llm

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	genai "google.golang.org/genai"

	"codemedic/internal/checks"
	"codemedic/internal/repair"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("llm: empty response")

// Generator produces a completion for a system and user prompt.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Options configures a Gemini client.
type Options struct {
	APIKey      string
	Model       string
	Temperature float32
	Logger      *zap.Logger
}

// Gemini is a thin wrapper around the official genai client.
type Gemini struct {
	cli         *genai.Client
	model       string
	temperature float32
	logger      *zap.Logger
}

// NewGemini builds a client for the Gemini API. An empty APIKey lets the
// genai client fall back to GEMINI_API_KEY / GOOGLE_API_KEY.
func NewGemini(ctx context.Context, opts Options) (*Gemini, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: opts.APIKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gemini{cli: cli, model: opts.Model, temperature: opts.Temperature, logger: logger}, nil
}

func (g *Gemini) Name() string { return "Gemini:" + g.model }

// Generate implements Generator.
func (g *Gemini) Generate(ctx context.Context, system, user string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
	}
	resp, err := g.cli.Models.GenerateContent(ctx, g.model, genai.Text(user), cfg)
	if err != nil {
		g.logger.Warn("gemini request failed", zap.String("model", g.model), zap.Error(err))
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && !p.Thought {
			b.WriteString(p.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

// Repairer implements repair.Repairer on a Generator.
type Repairer struct {
	Gen Generator
}

func (r *Repairer) Repair(ctx context.Context, req repair.Request) (string, error) {
	return r.Gen.Generate(ctx, fixerSystem, repairPrompt(req))
}

// Reviewer implements checks.Reviewer on a Generator using the
// "PASS" / "FAIL: reason" protocol.
type Reviewer struct {
	Gen Generator
}

func (r *Reviewer) Review(ctx context.Context, code, context string) (checks.Verdict, error) {
	resp, err := r.Gen.Generate(ctx, reviewSystem, reviewPromptFor(code, context))
	if err != nil {
		return checks.Verdict{}, err
	}
	return ParseVerdict(resp)
}

// ParseVerdict reads a review response. Anything other than PASS is a
// failure; the text after "FAIL:" (or the whole response) is the reason.
func ParseVerdict(resp string) (checks.Verdict, error) {
	s := strings.TrimSpace(resp)
	s = strings.Trim(s, "`*_ \n\t")
	if s == "" {
		return checks.Verdict{}, ErrEmptyResponse
	}
	upper := strings.ToUpper(s)
	switch {
	case upper == "PASS" || strings.HasPrefix(upper, "PASS\n") || strings.HasPrefix(upper, "PASS."):
		return checks.Verdict{Pass: true}, nil
	case strings.HasPrefix(upper, "FAIL"):
		reason := strings.TrimSpace(strings.TrimLeft(s[len("FAIL"):], ":- "))
		if reason == "" {
			reason = "reviewer reported a logic problem"
		}
		return checks.Verdict{Pass: false, Reason: reason}, nil
	default:
		return checks.Verdict{Pass: false, Reason: s}, nil
	}
}
