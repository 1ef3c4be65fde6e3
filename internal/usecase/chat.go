package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"hot-mess-coach/internal/domain"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

// Recorder observes upstream calls. *metrics.Collector satisfies it.
type Recorder interface {
	ObserveUpstream(outcome string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveUpstream(string, time.Duration) {}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type ChatService struct {
	llm              LLMClient
	model            string
	apiKeyConfigured bool
	recorder         Recorder
	now              func() time.Time
}

type ChatInput struct {
	Message string
}

type ChatOutput struct {
	Reply string
}

// NewChatService wires the relay usecase. llm may be nil only when no API key
// is configured; every Reply then fails with ErrorConfiguration.
func NewChatService(llm LLMClient, model string, apiKeyConfigured bool, rec Recorder) (*ChatService, error) {
	if apiKeyConfigured && llm == nil {
		return nil, errors.New("usecase: llm client must not be nil when an api key is configured")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("usecase: model must not be empty")
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &ChatService{
		llm:              llm,
		model:            model,
		apiKeyConfigured: apiKeyConfigured,
		recorder:         rec,
		now:              time.Now,
	}, nil
}

// APIKeyConfigured reports whether Reply can reach the upstream provider.
func (s *ChatService) APIKeyConfigured() bool {
	return s.apiKeyConfigured
}

func (s *ChatService) Reply(ctx context.Context, in ChatInput) (ChatOutput, error) {
	if strings.TrimSpace(in.Message) == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if !s.apiKeyConfigured {
		return ChatOutput{}, newError(ErrorConfiguration, "api_key_missing", nil)
	}

	start := s.now()
	reply, err := s.llm.Chat(ctx, s.model, buildPromptMessages(in.Message))
	elapsed := s.now().Sub(start)
	if err != nil {
		s.recorder.ObserveUpstream(OutcomeError, elapsed)
		attrs := []any{"model", s.model, "err", err, "elapsed", elapsed}
		if status, ok := upstreamStatusCode(err); ok {
			attrs = append(attrs, "upstream_status", status)
		}
		slog.WarnContext(ctx, "upstream completion failed", attrs...)
		return ChatOutput{}, newError(ErrorUpstream, "openai_error", err)
	}
	s.recorder.ObserveUpstream(OutcomeSuccess, elapsed)

	return ChatOutput{Reply: reply}, nil
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
