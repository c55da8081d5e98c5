package advisor

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"coinsentry/internal/domain"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/trace"
)

const systemPrompt = `You are a professional cryptocurrency trading analyst.
Analyze the market data and respond with at most one trade setup per asset in exactly this format:
ACTION: BUY/SELL/HOLD
CONFIDENCE: 0.0-1.0
ENTRY: $price
STOP: $price
TARGET: $price
REASON: brief explanation`

// Advisor asks the language model for a trade proposal and parses only the
// structured numeric fields out of the free-text response. The surrounding
// prose is passed through untouched.
type Advisor struct {
	tracer  trace.Tracer
	client  openai.Client
	model   string
	enabled bool
}

func New(tracer trace.Tracer, apiKey, baseURL, model string) *Advisor {
	a := &Advisor{tracer: tracer, model: model}
	if apiKey == "" {
		return a
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	a.client = openai.NewClient(opts...)
	a.enabled = true
	return a
}

func (a *Advisor) Enabled() bool { return a.enabled }

// Propose returns parsed signals and the raw analysis text for coinID. A
// disabled advisor proposes nothing; a response with no parseable setup is
// not an error.
func (a *Advisor) Propose(ctx context.Context, coinID, marketContext string) ([]domain.ProposedSignal, string, error) {
	ctx, span := a.tracer.Start(ctx, "advisor.propose")
	defer span.End()

	if !a.enabled {
		return nil, "", nil
	}

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(fmt.Sprintf("Analyze %s:\n%s", strings.ToUpper(coinID), marketContext)),
		},
		MaxTokens:   openai.Int(400),
		Temperature: openai.Float(0.7),
	})
	if err != nil {
		return nil, "", fmt.Errorf("advisor completion for %s: %w", coinID, err)
	}
	if len(resp.Choices) == 0 {
		return nil, "", nil
	}

	content := resp.Choices[0].Message.Content
	return ParseSignals(content), content, nil
}

var (
	actionRe     = regexp.MustCompile(`(?i)ACTION:\s*(BUY|SELL|HOLD)`)
	confidenceRe = regexp.MustCompile(`(?i)CONFIDENCE:\s*([0-9.]+)`)
	entryRe      = regexp.MustCompile(`(?i)ENTRY:\s*\$?([0-9,.]+)`)
	stopRe       = regexp.MustCompile(`(?i)STOP:\s*\$?([0-9,.]+)`)
	targetRe     = regexp.MustCompile(`(?i)TARGET:\s*\$?([0-9,.]+)`)
	reasonRe     = regexp.MustCompile(`(?i)REASON:\s*(.+)`)
)

// ParseSignals extracts structured trade setups from an analysis response.
// Setups missing the required action, confidence or entry are skipped; a
// missing stop or target leaves the field nil.
func ParseSignals(content string) []domain.ProposedSignal {
	matches := actionRe.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return nil
	}

	signals := make([]domain.ProposedSignal, 0, len(matches))
	for i, m := range matches {
		start := m[0]
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		block := content[start:end]

		action := domain.SignalAction(strings.ToUpper(content[m[2]:m[3]]))
		confidence, okConf := matchFloat(confidenceRe, block)
		entry, okEntry := matchFloat(entryRe, block)
		if !okConf || !okEntry {
			continue
		}

		sig := domain.ProposedSignal{
			Action:     action,
			Confidence: confidence,
			EntryPoint: entry,
		}
		if stop, ok := matchFloat(stopRe, block); ok {
			sig.StopLoss = &stop
		}
		if target, ok := matchFloat(targetRe, block); ok {
			sig.TakeProfit = &target
		}
		if rm := reasonRe.FindStringSubmatch(block); rm != nil {
			sig.Reasoning = strings.TrimSpace(rm[1])
		}
		signals = append(signals, sig)
	}
	return signals
}

func matchFloat(re *regexp.Regexp, block string) (float64, bool) {
	m := re.FindStringSubmatch(block)
	if m == nil {
		return 0, false
	}
	raw := strings.TrimSuffix(strings.ReplaceAll(m[1], ",", ""), ".")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
