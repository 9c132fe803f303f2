package synthetic

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trendscout/crawler/internal/crawl"
)

func TestTier_NeverFails(t *testing.T) {
	t.Parallel()

	tier := New("https://shop.example.com", zap.NewNop())
	payloads, err := tier.Acquire(context.Background(), crawl.Job{ID: "j", Kind: crawl.JobKindRefreshBatch, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, payloads, 10)
}

func TestTier_DeterministicAcrossRuns(t *testing.T) {
	t.Parallel()

	job := crawl.Job{ID: "j", Kind: crawl.JobKindTrending, Limit: 5}
	a, err := New("https://shop.example.com", zap.NewNop()).Acquire(context.Background(), job)
	require.NoError(t, err)
	b, err := New("https://shop.example.com", zap.NewNop()).Acquire(context.Background(), job)
	require.NoError(t, err)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.JSONEq(t, string(a[i].JSON), string(b[i].JSON))
	}
}

func TestTier_TrendingJobOnlyServesTrendingTemplates(t *testing.T) {
	t.Parallel()

	tier := New("https://shop.example.com", zap.NewNop())
	payloads, err := tier.Acquire(context.Background(), crawl.Job{ID: "j", Kind: crawl.JobKindTrending, Limit: 100})
	require.NoError(t, err)
	require.NotEmpty(t, payloads)

	for _, p := range payloads {
		var record map[string]any
		require.NoError(t, json.Unmarshal(p.JSON, &record))
		assert.Equal(t, true, record["trending"])
	}
}

func TestTier_CategoryJobFilters(t *testing.T) {
	t.Parallel()

	tier := New("https://shop.example.com", zap.NewNop())
	payloads, err := tier.Acquire(context.Background(), crawl.Job{
		ID:       "j",
		Kind:     crawl.JobKindCategory,
		Category: "kitchen",
		Limit:    100,
	})
	require.NoError(t, err)
	require.NotEmpty(t, payloads)

	for _, p := range payloads {
		var record map[string]any
		require.NoError(t, json.Unmarshal(p.JSON, &record))
		assert.Equal(t, "kitchen", record["category"])
	}
}

func TestTier_UnknownCategoryFallsBackToFullCatalog(t *testing.T) {
	t.Parallel()

	tier := New("https://shop.example.com", zap.NewNop())
	payloads, err := tier.Acquire(context.Background(), crawl.Job{
		ID:       "j",
		Kind:     crawl.JobKindCategory,
		Category: "submarines",
		Limit:    5,
	})
	require.NoError(t, err)
	assert.Len(t, payloads, 5, "tier must still serve records when the category has no templates")

	for _, p := range payloads {
		assert.Equal(t, crawl.TierSynthetic, p.Tier)
	}
}

func TestTier_StableSyntheticIDs(t *testing.T) {
	t.Parallel()

	tier := New("https://shop.example.com", zap.NewNop())
	payloads, err := tier.Acquire(context.Background(), crawl.Job{ID: "j", Kind: crawl.JobKindRefreshBatch, Limit: 3})
	require.NoError(t, err)

	ids := make(map[string]struct{})
	for _, p := range payloads {
		var record map[string]any
		require.NoError(t, json.Unmarshal(p.JSON, &record))
		id, _ := record["id"].(string)
		assert.Regexp(t, `^syn-[0-9a-f]{12}$`, id)
		ids[id] = struct{}{}
	}
	assert.Len(t, ids, 3, "ids must be distinct per template")
}
