package assistant

import (
	"sort"
	"time"
)

// CompressorConfig bounds each section of a compressed context.
type CompressorConfig struct {
	// MaxMessages is the number of most recent non-system messages kept.
	MaxMessages int
	// DropSystemMessages subjects system messages to the history cap like any
	// other message. Left false, they are kept regardless of age and merged
	// back in timestamp order.
	DropSystemMessages bool
	// MaxRecommendationAge drops recommendations older than this.
	MaxRecommendationAge time.Duration
	// MaxRecommendationsPerCategory keeps the top-K by priority per category.
	MaxRecommendationsPerCategory int
	// MaxTrendPoints truncates the revenue trend series.
	MaxTrendPoints int
	// MaxTopProducts truncates the best-sellers list.
	MaxTopProducts int
}

// DefaultCompressorConfig returns the bounds used when a zero config is given.
func DefaultCompressorConfig() CompressorConfig {
	return CompressorConfig{
		MaxMessages:                   20,
		MaxRecommendationAge:          7 * 24 * time.Hour,
		MaxRecommendationsPerCategory: 5,
		MaxTrendPoints:                12,
		MaxTopProducts:                10,
	}
}

// Compressor performs deterministic, lossy size reduction of an over-large
// context. Compression is irreversible: there is no decompress path.
type Compressor struct {
	config CompressorConfig
}

// NewCompressor creates a compressor, filling unset bounds with defaults.
func NewCompressor(config CompressorConfig) *Compressor {
	defaults := DefaultCompressorConfig()
	if config.MaxMessages <= 0 {
		config.MaxMessages = defaults.MaxMessages
	}
	if config.MaxRecommendationAge <= 0 {
		config.MaxRecommendationAge = defaults.MaxRecommendationAge
	}
	if config.MaxRecommendationsPerCategory <= 0 {
		config.MaxRecommendationsPerCategory = defaults.MaxRecommendationsPerCategory
	}
	if config.MaxTrendPoints <= 0 {
		config.MaxTrendPoints = defaults.MaxTrendPoints
	}
	if config.MaxTopProducts <= 0 {
		config.MaxTopProducts = defaults.MaxTopProducts
	}
	return &Compressor{config: config}
}

// Compress returns a reduced copy of the context. The input is never
// mutated, the result never grows any section, and compressing an already
// compressed context is a no-op beyond the configured caps.
func (c *Compressor) Compress(in *ConversationContext) *ConversationContext {
	out := in.Clone()
	out.ConversationHistory = c.compressHistory(out.ConversationHistory)
	out.Recommendations = c.compressRecommendations(out.Recommendations)
	out.BusinessData = c.compressBusinessData(out.BusinessData)
	return out
}

// CompressionRatio estimates the achievable size reduction without mutating
// the input: the ratio of the compressed JSON size to the original, in (0,1].
func (c *Compressor) CompressionRatio(in *ConversationContext) float64 {
	original := in.EstimatedSize()
	if original == 0 {
		return 1
	}
	compressed := c.Compress(in).EstimatedSize()
	return float64(compressed) / float64(original)
}

// compressHistory keeps the most recent MaxMessages non-system messages.
// Preserved system messages are merged back in timestamp order.
func (c *Compressor) compressHistory(history []ConversationMessage) []ConversationMessage {
	var system, rest []ConversationMessage
	for _, msg := range history {
		if !c.config.DropSystemMessages && msg.Role == RoleSystem {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}

	if len(rest) > c.config.MaxMessages {
		rest = rest[len(rest)-c.config.MaxMessages:]
	}

	if len(system) == 0 {
		return rest
	}
	merged := append(system, rest...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}

// compressRecommendations drops entries past the age cutoff and keeps the
// top-K by priority within each category.
func (c *Compressor) compressRecommendations(recommendations map[string][]Recommendation) map[string][]Recommendation {
	if recommendations == nil {
		return nil
	}
	cutoff := time.Now().Add(-c.config.MaxRecommendationAge)

	out := make(map[string][]Recommendation, len(recommendations))
	for category, recs := range recommendations {
		var fresh []Recommendation
		for _, rec := range recs {
			if rec.CreatedAt.After(cutoff) {
				fresh = append(fresh, rec)
			}
		}
		sort.SliceStable(fresh, func(i, j int) bool {
			return fresh[i].Priority > fresh[j].Priority
		})
		if len(fresh) > c.config.MaxRecommendationsPerCategory {
			fresh = fresh[:c.config.MaxRecommendationsPerCategory]
		}
		if len(fresh) > 0 {
			out[category] = fresh
		}
	}
	return out
}

// compressBusinessData truncates trend and product lists and reduces
// marketplace entries to their identity fields.
func (c *Compressor) compressBusinessData(data BusinessData) BusinessData {
	if len(data.RevenueTrend) > c.config.MaxTrendPoints {
		data.RevenueTrend = data.RevenueTrend[len(data.RevenueTrend)-c.config.MaxTrendPoints:]
	}
	if len(data.TopProducts) > c.config.MaxTopProducts {
		data.TopProducts = data.TopProducts[:c.config.MaxTopProducts]
	}
	for i, ms := range data.Marketplaces {
		data.Marketplaces[i] = MarketplaceStatus{
			Marketplace: ms.Marketplace,
			Status:      ms.Status,
		}
	}
	return data
}
