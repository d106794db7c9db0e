// Package assistant implements the conversation context engine: a
// cache-backed, TTL-driven store of per-session state that stays bounded in
// size, is refreshed on a schedule, validated on load and compressed when it
// grows too large.
package assistant

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message roles within a conversation history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationMessage is one entry of a session's message history.
type ConversationMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TopProduct is one entry of the capped best-sellers list.
type TopProduct struct {
	SKU       string  `json:"sku"`
	Name      string  `json:"name"`
	UnitsSold int     `json:"unitsSold"`
	Revenue   float64 `json:"revenue"`
}

// TrendPoint is one entry of the capped revenue trend series.
type TrendPoint struct {
	Date    time.Time `json:"date"`
	Revenue float64   `json:"revenue"`
	Orders  int       `json:"orders"`
}

// MarketplaceStatus describes one connected marketplace. Marketplace and
// Status are the identity fields the compressor reduces entries to.
type MarketplaceStatus struct {
	Marketplace string         `json:"marketplace"`
	Status      string         `json:"status"`
	LastSync    time.Time      `json:"lastSync,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// BusinessData is the bounded per-user business snapshot embedded in a
// conversation context.
type BusinessData struct {
	TotalRevenue float64             `json:"totalRevenue"`
	TotalOrders  int                 `json:"totalOrders"`
	TopProducts  []TopProduct        `json:"topProducts"`
	RevenueTrend []TrendPoint        `json:"revenueTrend"`
	Marketplaces []MarketplaceStatus `json:"marketplaces"`
	LastUpdated  time.Time           `json:"lastUpdated"`
}

// Recommendation is one suggested action for the user, bucketed by category.
type Recommendation struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Priority    int       `json:"priority"` // higher means more important
	CreatedAt   time.Time `json:"createdAt"`
}

// UserPreferences carries per-user presentation settings.
type UserPreferences struct {
	Language             string `json:"language"`
	Timezone             string `json:"timezone"`
	Currency             string `json:"currency"`
	NotificationsEnabled bool   `json:"notificationsEnabled"`
}

// DefaultPreferences returns the preferences a new context starts with.
func DefaultPreferences() UserPreferences {
	return UserPreferences{
		Language:             "en",
		Timezone:             "UTC",
		Currency:             "USD",
		NotificationsEnabled: true,
	}
}

// ConversationContext is the unit of per-session state. (UserID, SessionID)
// uniquely identifies at most one logical context; the history is ordered by
// timestamp and message IDs are unique within a context.
type ConversationContext struct {
	UserID              string                      `json:"userId"`
	SessionID           string                      `json:"sessionId"`
	BusinessData        BusinessData                `json:"businessData"`
	Recommendations     map[string][]Recommendation `json:"recommendations"`
	ConversationHistory []ConversationMessage       `json:"conversationHistory"`
	UserPreferences     UserPreferences             `json:"userPreferences"`
	LastUpdated         time.Time                   `json:"lastUpdated"`
}

// NewConversationContext creates a default context for a never-seen session:
// empty history, zeroed business snapshot, default preferences.
func NewConversationContext(userID, sessionID string) *ConversationContext {
	now := time.Now()
	return &ConversationContext{
		UserID:              userID,
		SessionID:           sessionID,
		BusinessData:        BusinessData{LastUpdated: now},
		Recommendations:     make(map[string][]Recommendation),
		ConversationHistory: []ConversationMessage{},
		UserPreferences:     DefaultPreferences(),
		LastUpdated:         now,
	}
}

// Clone returns a deep copy. Cache and callers never share live references.
func (c *ConversationContext) Clone() *ConversationContext {
	out := *c

	out.BusinessData.TopProducts = append([]TopProduct(nil), c.BusinessData.TopProducts...)
	out.BusinessData.RevenueTrend = append([]TrendPoint(nil), c.BusinessData.RevenueTrend...)
	out.BusinessData.Marketplaces = make([]MarketplaceStatus, len(c.BusinessData.Marketplaces))
	for i, ms := range c.BusinessData.Marketplaces {
		out.BusinessData.Marketplaces[i] = ms
		if ms.Details != nil {
			details := make(map[string]any, len(ms.Details))
			for k, v := range ms.Details {
				details[k] = v
			}
			out.BusinessData.Marketplaces[i].Details = details
		}
	}

	if c.Recommendations != nil {
		out.Recommendations = make(map[string][]Recommendation, len(c.Recommendations))
		for category, recs := range c.Recommendations {
			out.Recommendations[category] = append([]Recommendation(nil), recs...)
		}
	}

	out.ConversationHistory = append([]ConversationMessage(nil), c.ConversationHistory...)
	return &out
}

// AppendMessage adds a message with a generated ID and current timestamp.
func (c *ConversationContext) AppendMessage(role, content string) ConversationMessage {
	msg := ConversationMessage{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	c.ConversationHistory = append(c.ConversationHistory, msg)
	return msg
}

// RecommendationCount returns the aggregate number of recommendations across
// all categories.
func (c *ConversationContext) RecommendationCount() int {
	total := 0
	for _, recs := range c.Recommendations {
		total += len(recs)
	}
	return total
}

// EstimatedSize returns the JSON-encoded size of the context in bytes, used
// by the compression decision.
func (c *ConversationContext) EstimatedSize() int {
	raw, err := json.Marshal(c)
	if err != nil {
		return 0
	}
	return len(raw)
}
