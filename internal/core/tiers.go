package core

// TaskCategory is a coarse description of what a chat call is for. The
// closed set below covers the job types the gateway serves; anything else
// routes to the standard tier.
type TaskCategory string

const (
	CategoryChat           TaskCategory = "chat"
	CategorySummarization  TaskCategory = "summarization"
	CategoryClassification TaskCategory = "classification"
	CategoryExtraction     TaskCategory = "extraction"
	CategoryCodeGeneration TaskCategory = "code_generation"
	CategoryAnalysis       TaskCategory = "analysis"
	CategoryReasoning      TaskCategory = "reasoning"
	CategoryTranslation    TaskCategory = "translation"
)

// ModelTier is a coarse quality/cost bucket. Providers map each tier to a
// concrete model id in their own tables.
type ModelTier string

const (
	TierFast     ModelTier = "fast"
	TierStandard ModelTier = "standard"
	TierAdvanced ModelTier = "advanced"
)

var categoryTiers = map[TaskCategory]ModelTier{
	CategoryChat:           TierStandard,
	CategorySummarization:  TierFast,
	CategoryClassification: TierFast,
	CategoryExtraction:     TierFast,
	CategoryTranslation:    TierFast,
	CategoryCodeGeneration: TierAdvanced,
	CategoryAnalysis:       TierAdvanced,
	CategoryReasoning:      TierAdvanced,
}

// TierForCategory maps a task category to a model tier. Unmapped categories
// fall open to TierStandard so new job types degrade to a sensible default
// instead of failing.
func TierForCategory(category TaskCategory) ModelTier {
	if tier, ok := categoryTiers[category]; ok {
		return tier
	}
	return TierStandard
}
