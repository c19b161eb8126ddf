package providers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/kham-river/water-quality-monitor/internal/water"
)

// ErrEmptyAnswer is returned when the model produced no text.
var ErrEmptyAnswer = errors.New("no response from AI")

const systemPrompt = `You are an environmental water-quality assistant for river monitoring in India and globally.
- Answer ONLY questions about water quality, hydrology, environmental standards, pollution control, mitigation, public health impacts from water, and related environmental regulations and best practices.
- If a question is outside these topics (e.g., coding, finance, personal advice, unrelated general knowledge), politely refuse and say you only answer water-quality and environmental questions.
- Prefer Indian (CPCB, BIS IS 10500) and global (WHO, EPA, UNEP) standards and cite them generally (no fabricated URLs).
- Be concise, structured, and actionable. Use short bullet points when helpful.
- Keep each answer under 100 words. Avoid filler and repetition.
- If provided parameter context (name, value, normal range, station), tailor advice to that context.
- Avoid hallucinations. If unsure, say what would be needed to answer.`

const answerInstructions = "Instructions: Provide India/global-standard-aligned guidance. Include concrete mitigation steps, monitoring cadence, and when to escalate. Keep to the domain; refuse if out of scope. Limit to <= 100 words; avoid fluff."

// AssistantConfig configures the chat assistant.
type AssistantConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	MaxRetries  int
}

// ChatAssistant answers questions through an OpenAI-compatible chat API.
type ChatAssistant struct {
	client openai.Client
	cfg    AssistantConfig
	log    *zap.Logger
}

func NewChatAssistant(cfg AssistantConfig, log *zap.Logger) *ChatAssistant {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = "llama3-70b-8192"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 220
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &ChatAssistant{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		log:    log,
	}
}

func (a *ChatAssistant) Configured() bool {
	return strings.TrimSpace(a.cfg.APIKey) != ""
}

func (a *ChatAssistant) Model() string {
	return a.cfg.Model
}

// Ask sends q with its reading context and returns the trimmed answer.
func (a *ChatAssistant) Ask(ctx context.Context, q water.Question) (string, error) {
	if !a.Configured() {
		return "", water.ErrAssistantUnavailable
	}

	maxTokens := a.cfg.MaxTokens
	if q.MaxTokens > 0 {
		maxTokens = q.MaxTokens
	}
	temperature := a.cfg.Temperature
	if q.Temperature != nil {
		temperature = *q.Temperature
	}

	chat, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(BuildUserContent(q)),
		},
		Model:       openai.ChatModel(a.cfg.Model),
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(int64(maxTokens)),
	})
	if err != nil {
		a.log.Error("chat completion failed", zap.String("model", a.cfg.Model), zap.Error(err))
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(chat.Choices) == 0 {
		return "", ErrEmptyAnswer
	}
	answer := strings.TrimSpace(chat.Choices[0].Message.Content)
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	return answer, nil
}

// BuildUserContent renders the context block, the question and the answer
// instructions.
func BuildUserContent(q water.Question) string {
	var ctxLines []string
	if q.Parameter != "" {
		ctxLines = append(ctxLines, "Parameter: "+string(q.Parameter))
	}
	if q.Value != nil {
		ctxLines = append(ctxLines, "Observed value: "+strconv.FormatFloat(*q.Value, 'f', -1, 64))
	}
	if s, ok := q.Standards[q.Parameter]; ok && q.Parameter != "" && s.Bounded() {
		line := fmt.Sprintf("Normal range for %s: %s – %s %s", q.Parameter, bound(s.Min), bound(s.Max), s.Unit)
		ctxLines = append(ctxLines, strings.TrimSpace(line))
	}
	if q.StationName != "" {
		ctxLines = append(ctxLines, "Station: "+q.StationName)
	}

	parts := make([]string, 0, 3)
	if len(ctxLines) > 0 {
		parts = append(parts, "Context:\n"+strings.Join(ctxLines, "\n"))
	}
	parts = append(parts, "Question: "+strings.TrimSpace(q.Text), answerInstructions)
	return strings.Join(parts, "\n\n")
}

func bound(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
