package assistant

import (
	"fmt"
	"time"

	"github.com/sellwise/sellwise/internal/coreerrors"
	"github.com/sellwise/sellwise/server/timezone"
)

// Validator performs structural validation, best-effort repair and integrity
// diagnostics on conversation contexts.
type Validator struct{}

// NewValidator creates a validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidationResult is the outcome of Validate. Warnings never make a context
// invalid.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Validate checks required-field presence and message shape. It also flags
// soft warnings such as missing preference fields or a context older than
// 24 hours.
func (v *Validator) Validate(c *ConversationContext) ValidationResult {
	result := ValidationResult{Valid: true}
	fail := func(msg string) {
		result.Valid = false
		result.Errors = append(result.Errors, msg)
	}

	if c == nil {
		fail("context is nil")
		return result
	}
	if c.UserID == "" {
		fail("userId is required")
	}
	if c.SessionID == "" {
		fail("sessionId is required")
	}

	for i, msg := range c.ConversationHistory {
		if msg.ID == "" {
			fail(fmt.Sprintf("conversationHistory[%d]: missing message id", i))
		}
		if msg.Role == "" {
			fail(fmt.Sprintf("conversationHistory[%d]: missing role", i))
		}
		if msg.Timestamp.IsZero() {
			fail(fmt.Sprintf("conversationHistory[%d]: missing timestamp", i))
		}
	}

	if c.UserPreferences.Language == "" || c.UserPreferences.Timezone == "" {
		result.Warnings = append(result.Warnings, "incomplete user preferences")
	} else if !timezone.IsValid(c.UserPreferences.Timezone) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("unknown timezone %q in user preferences", c.UserPreferences.Timezone))
	}
	if !c.LastUpdated.IsZero() && time.Since(c.LastUpdated) > 24*time.Hour {
		result.Warnings = append(result.Warnings, "context is older than 24 hours")
	}

	return result
}

// Repair fills in defaults for every missing optional structure. It fails
// hard when the identity fields are absent: identity cannot be synthesized.
func (v *Validator) Repair(c *ConversationContext) (*ConversationContext, error) {
	if c == nil || c.UserID == "" || c.SessionID == "" {
		return nil, coreerrors.Identity("cannot repair context without userId and sessionId")
	}

	repaired := c.Clone()

	if repaired.Recommendations == nil {
		repaired.Recommendations = make(map[string][]Recommendation)
	}
	if repaired.ConversationHistory == nil {
		repaired.ConversationHistory = []ConversationMessage{}
	}
	if repaired.BusinessData.LastUpdated.IsZero() {
		repaired.BusinessData.LastUpdated = time.Now()
	}
	if repaired.UserPreferences == (UserPreferences{}) {
		repaired.UserPreferences = DefaultPreferences()
	} else {
		defaults := DefaultPreferences()
		if repaired.UserPreferences.Language == "" {
			repaired.UserPreferences.Language = defaults.Language
		}
		if repaired.UserPreferences.Timezone == "" || !timezone.IsValid(repaired.UserPreferences.Timezone) {
			repaired.UserPreferences.Timezone = defaults.Timezone
		}
		if repaired.UserPreferences.Currency == "" {
			repaired.UserPreferences.Currency = defaults.Currency
		}
	}
	if repaired.LastUpdated.IsZero() {
		repaired.LastUpdated = time.Now()
	}

	// Drop malformed history entries rather than failing: repaired contexts
	// must pass Validate.
	kept := repaired.ConversationHistory[:0]
	for _, msg := range repaired.ConversationHistory {
		if msg.ID == "" || msg.Role == "" || msg.Timestamp.IsZero() {
			continue
		}
		kept = append(kept, msg)
	}
	repaired.ConversationHistory = kept

	return repaired, nil
}

// IntegrityReport lists corrupted fields with human-readable repair
// suggestions. Diagnostics only; nothing is auto-applied.
type IntegrityReport struct {
	Intact          bool
	CorruptedFields []string
	Suggestions     []string
}

// CheckIntegrity detects duplicate message IDs, out-of-chronological-order
// messages, nil recommendation buckets and negative counters.
func (v *Validator) CheckIntegrity(c *ConversationContext) IntegrityReport {
	report := IntegrityReport{Intact: true}
	flag := func(field, suggestion string) {
		report.Intact = false
		report.CorruptedFields = append(report.CorruptedFields, field)
		report.Suggestions = append(report.Suggestions, suggestion)
	}

	seen := make(map[string]bool, len(c.ConversationHistory))
	for i, msg := range c.ConversationHistory {
		if seen[msg.ID] {
			flag(fmt.Sprintf("conversationHistory[%d].id", i),
				fmt.Sprintf("message id %q appears more than once; regenerate duplicate ids", msg.ID))
		}
		seen[msg.ID] = true

		if i > 0 && msg.Timestamp.Before(c.ConversationHistory[i-1].Timestamp) {
			flag(fmt.Sprintf("conversationHistory[%d].timestamp", i),
				"messages are out of chronological order; re-sort the history by timestamp")
		}
	}

	for category, recs := range c.Recommendations {
		if recs == nil {
			flag(fmt.Sprintf("recommendations.%s", category),
				"recommendation bucket is nil; replace with an empty list")
		}
		for i, rec := range recs {
			if rec.Priority < 0 {
				flag(fmt.Sprintf("recommendations.%s[%d].priority", category, i),
					"priority is negative; clamp to zero")
			}
		}
	}

	if c.BusinessData.TotalRevenue < 0 {
		flag("businessData.totalRevenue", "revenue is negative; re-fetch the business snapshot")
	}
	if c.BusinessData.TotalOrders < 0 {
		flag("businessData.totalOrders", "order count is negative; re-fetch the business snapshot")
	}

	return report
}
