package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/hrygo/mnemosyne/ai/cache"
	"github.com/hrygo/mnemosyne/ai/core/llm"
	"github.com/hrygo/mnemosyne/store"
)

// Search strategies a plan may request.
const (
	StrategyKeywordSearch    = "keyword_search"
	StrategyEntitySearch     = "entity_search"
	StrategyCategoryFilter   = "category_filter"
	StrategyImportanceFilter = "importance_filter"
	StrategyTemporalFilter   = "temporal_filter"
	StrategySemanticSearch   = "semantic_search"
	StrategyGeneralSearch    = "general_search"
)

const planCacheTTL = 5 * time.Minute

// Plan is a structured retrieval plan for one query.
type Plan struct {
	QueryText           string   `json:"query_text"`
	Intent              string   `json:"intent"`
	EntityFilters       []string `json:"entity_filters"`
	CategoryFilters     []string `json:"category_filters"`
	TimeRange           string   `json:"time_range,omitempty"`
	MinImportance       float64  `json:"min_importance"`
	SearchStrategy      []string `json:"search_strategy"`
	ExpectedResultTypes []string `json:"expected_result_types"`
}

// HasStrategy reports whether the plan requests the given strategy.
func (p *Plan) HasStrategy(strategy string) bool {
	for _, s := range p.SearchStrategy {
		if s == strategy {
			return true
		}
	}
	return false
}

// Planner turns free-form queries into structured plans via the LLM, with a
// TTL cache keyed on the query text alone. Plans derive from query shape, not
// tenant state, so sharing across users is intentional.
type Planner struct {
	llm   llm.Service // nil disables LLM planning
	cache *cache.LRUCache[string, *Plan]
}

// NewPlanner creates a planner. A nil service makes every plan a fallback
// plan.
func NewPlanner(svc llm.Service) *Planner {
	return &Planner{
		llm:   svc,
		cache: cache.NewLRUCache[string, *Plan](1000, planCacheTTL),
	}
}

// Plan produces a search plan for the query. It never fails: LLM errors and
// refusals degrade to the token-based fallback plan.
func (p *Planner) Plan(ctx context.Context, query string) *Plan {
	cleaned := store.NormalizeQuery(query)
	if cleaned == "" {
		return FallbackPlan(cleaned)
	}

	if cached, ok := p.cache.Get(cleaned); ok {
		return cached
	}

	plan := p.planWithLLM(ctx, cleaned)
	if plan == nil {
		plan = FallbackPlan(cleaned)
	}
	p.cache.SetWithDefaultTTL(cleaned, plan)
	return plan
}

func (p *Planner) planWithLLM(ctx context.Context, query string) *Plan {
	if p.llm == nil {
		return nil
	}

	var plan Plan
	messages := []llm.Message{
		llm.SystemPrompt(plannerPrompt),
		llm.UserMessage("User query: " + query),
	}
	if _, err := p.llm.ChatStructured(ctx, messages, planSchema, &plan); err != nil {
		slog.Warn("query planning failed, using fallback plan", "error", err)
		return nil
	}

	if plan.QueryText == "" {
		plan.QueryText = query
	}
	if len(plan.SearchStrategy) == 0 {
		plan.SearchStrategy = []string{StrategyKeywordSearch}
	}
	if plan.MinImportance < 0 {
		plan.MinImportance = 0
	}
	if plan.MinImportance > 1 {
		plan.MinImportance = 1
	}
	return &plan
}

// FallbackPlan builds a plan from query tokens alone, used when the LLM is
// unavailable or fails.
func FallbackPlan(query string) *Plan {
	return &Plan{
		QueryText:      query,
		Intent:         "general",
		EntityFilters:  store.TokenizeQuery(query),
		SearchStrategy: []string{StrategyKeywordSearch, StrategyGeneralSearch},
	}
}

const plannerPrompt = `You are a memory retrieval planner. Given a user query, produce a structured search plan.

Categories are one of: fact, preference, skill, context, rule.
Strategies are a subset of: keyword_search, entity_search, category_filter, importance_filter, temporal_filter, semantic_search.

Extract the specific terms worth matching as entity_filters. Set min_importance above zero only when the query clearly asks for significant information.`

var planSchema = &llm.ResponseSchema{
	Name: "search_plan",
	Schema: &llm.JSONSchema{
		Type: "object",
		Properties: map[string]*llm.JSONSchema{
			"query_text":    {Type: "string"},
			"intent":        {Type: "string"},
			"entity_filters": {
				Type:  "array",
				Items: &llm.JSONSchema{Type: "string"},
			},
			"category_filters": {
				Type: "array",
				Items: &llm.JSONSchema{
					Type: "string",
					Enum: []string{"fact", "preference", "skill", "context", "rule"},
				},
			},
			"time_range":     {Type: "string"},
			"min_importance": {Type: "number"},
			"search_strategy": {
				Type: "array",
				Items: &llm.JSONSchema{
					Type: "string",
					Enum: []string{
						StrategyKeywordSearch, StrategyEntitySearch, StrategyCategoryFilter,
						StrategyImportanceFilter, StrategyTemporalFilter, StrategySemanticSearch,
					},
				},
			},
			"expected_result_types": {
				Type:  "array",
				Items: &llm.JSONSchema{Type: "string"},
			},
		},
		Required: []string{
			"query_text", "intent", "entity_filters", "category_filters",
			"min_importance", "search_strategy", "expected_result_types",
		},
	},
}
