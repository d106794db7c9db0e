package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/sellwise/sellwise/internal/coreerrors"
	"github.com/sellwise/sellwise/internal/observability"
	"github.com/sellwise/sellwise/server/finops"
	"github.com/sellwise/sellwise/server/llm"
)

// ChatRequest is one user turn. An empty SessionID starts a new session.
type ChatRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is the assistant's reply. When Degraded is set the providers
// were unavailable and Reply holds a fallback notice; Error carries the
// failure code for the client.
type ChatResponse struct {
	SessionID string `json:"sessionId"`
	Reply     string `json:"reply"`
	Provider  string `json:"provider,omitempty"`
	Degraded  bool   `json:"degraded,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Pipeline handles a chat turn end to end: load the session context, build
// the prompt from business data and history, invoke a provider through the
// load balancer and record both sides of the exchange back into the context.
type Pipeline struct {
	manager  *Manager
	balancer *llm.LoadBalancer
	costs    *finops.CostMonitor
	logger   *slog.Logger
}

// NewPipeline creates a chat pipeline. costs may be nil to skip spend
// tracking.
func NewPipeline(manager *Manager, balancer *llm.LoadBalancer, costs *finops.CostMonitor, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		manager:  manager,
		balancer: balancer,
		costs:    costs,
		logger:   logger,
	}
}

// Chat processes one user turn. Provider exhaustion does not surface as an
// error: the caller gets a degraded response with the failure code, and the
// user's message is still recorded so the turn is not lost.
func (p *Pipeline) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req == nil || req.UserID == "" {
		return nil, coreerrors.Identity("userId is required")
	}
	if req.Message == "" {
		return nil, coreerrors.Validation("message must not be empty")
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = shortuuid.New()
	}

	reqCtx := observability.NewRequestContext(p.logger, req.UserID, sessionID)
	ctx = observability.WithRequestContext(ctx, reqCtx)
	reqCtx.Debug("chat turn started")

	conv, err := p.manager.GetContext(ctx, req.UserID, sessionID)
	if err != nil {
		return nil, err
	}
	conv.AppendMessage(RoleUser, req.Message)

	resp, err := p.balancer.Execute(ctx, &llm.GenerateRequest{
		Messages: p.buildPrompt(conv),
	})
	if err != nil {
		// Persist the user's turn even though no reply was generated.
		if _, uerr := p.manager.UpdateContext(ctx, conv); uerr != nil {
			reqCtx.Error("failed to persist context after provider failure", uerr)
		}

		if coreerrors.HasCode(err, coreerrors.ErrCodeProviderExhausted) {
			reqCtx.Warn("all providers exhausted, returning degraded response",
				slog.Int64(observability.LogFieldDuration, reqCtx.Duration().Milliseconds()))
			return &ChatResponse{
				SessionID: sessionID,
				Reply:     "The assistant is temporarily unavailable. Your message has been saved; please try again shortly.",
				Degraded:  true,
				Error:     string(coreerrors.ErrCodeProviderExhausted),
			}, nil
		}
		return nil, err
	}

	conv.AppendMessage(RoleAssistant, resp.Content)
	if _, err := p.manager.UpdateContext(ctx, conv); err != nil {
		return nil, err
	}

	if p.costs != nil {
		p.costs.Record(finops.UsageRecord{
			Provider:     resp.Model,
			PromptTokens: resp.PromptTokens,
			OutputTokens: resp.OutputTokens,
			Latency:      reqCtx.Duration(),
			Timestamp:    time.Now(),
		})
	}

	reqCtx.Info("chat turn completed",
		slog.String(observability.LogFieldProvider, resp.Model),
		slog.Int64(observability.LogFieldDuration, reqCtx.Duration().Milliseconds()))

	return &ChatResponse{
		SessionID: sessionID,
		Reply:     resp.Content,
		Provider:  resp.Model,
	}, nil
}

// buildPrompt converts the session context into provider messages: a system
// preamble carrying the business snapshot and preferences, followed by the
// conversation history.
func (p *Pipeline) buildPrompt(conv *ConversationContext) []llm.Message {
	messages := make([]llm.Message, 0, len(conv.ConversationHistory)+1)
	messages = append(messages, llm.Message{
		Role:    RoleSystem,
		Content: p.systemPreamble(conv),
	})
	for _, msg := range conv.ConversationHistory {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	return messages
}

func (p *Pipeline) systemPreamble(conv *ConversationContext) string {
	data := conv.BusinessData
	preamble := fmt.Sprintf(
		"You are a business assistant for a marketplace seller. "+
			"Current snapshot: total revenue %.2f %s across %d orders. "+
			"Answer in %s and use the %s timezone for dates.",
		data.TotalRevenue,
		conv.UserPreferences.Currency,
		data.TotalOrders,
		conv.UserPreferences.Language,
		conv.UserPreferences.Timezone,
	)

	if n := conv.RecommendationCount(); n > 0 {
		preamble += fmt.Sprintf(" There are %d open recommendations for the seller.", n)
	}
	for _, ms := range data.Marketplaces {
		preamble += fmt.Sprintf(" Marketplace %s is %s.", ms.Marketplace, ms.Status)
	}
	return preamble
}
