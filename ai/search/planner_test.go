package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFallbackPlan(t *testing.T) {
	plan := FallbackPlan("what database does the billing service use")

	assert.Equal(t, []string{StrategyKeywordSearch, StrategyGeneralSearch}, plan.SearchStrategy)
	assert.Contains(t, plan.EntityFilters, "database")
	assert.Contains(t, plan.EntityFilters, "billing")
	// Short words are dropped from entity filters.
	assert.NotContains(t, plan.EntityFilters, "the")
}

func TestPlannerWithoutLLM(t *testing.T) {
	p := NewPlanner(nil)

	plan := p.Plan(context.Background(), "User query: postgres preferences")
	assert.Equal(t, "postgres preferences", plan.QueryText)
	assert.True(t, plan.HasStrategy(StrategyKeywordSearch))
}

func TestPlannerCaches(t *testing.T) {
	p := NewPlanner(nil)

	first := p.Plan(context.Background(), "remember my deploy schedule")
	second := p.Plan(context.Background(), "remember my deploy schedule")
	assert.Same(t, first, second)
}

func TestHasStrategy(t *testing.T) {
	plan := &Plan{SearchStrategy: []string{StrategyEntitySearch}}
	assert.True(t, plan.HasStrategy(StrategyEntitySearch))
	assert.False(t, plan.HasStrategy(StrategyImportanceFilter))
}
