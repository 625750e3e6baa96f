package library

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := Open(context.Background(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close(context.Background()) })
	return lib
}

func TestOpen_InMemoryWithoutPath(t *testing.T) {
	lib := openTestLibrary(t)
	all, err := lib.GetAll()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAddAndSearch_RoundTrip(t *testing.T) {
	lib := openTestLibrary(t)
	ctx := context.Background()

	id, err := lib.Add(ctx, "hello world", []float32{1, 0, 0}, map[string]string{"topic": "greetings"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	results, err := lib.Search(SearchOptions{
		QueryEmbedding: []float32{1, 0, 0},
		RankBy:         RankVector,
		MaxResults:     10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].Volume.ID)
}

func TestGetByID_MissingReturnsFalse(t *testing.T) {
	lib := openTestLibrary(t)
	_, found, err := lib.GetByID("nonexistent")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDelete_RemovesVolume(t *testing.T) {
	lib := openTestLibrary(t)
	ctx := context.Background()

	id, err := lib.Add(ctx, "to delete", []float32{1, 0}, nil)
	require.NoError(t, err)

	removed, err := lib.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestFindDuplicates_DetectsNearDuplicates(t *testing.T) {
	lib := openTestLibrary(t)
	ctx := context.Background()

	_, err := lib.Add(ctx, "a", []float32{1, 0, 0}, nil)
	require.NoError(t, err)
	_, err = lib.Add(ctx, "b", []float32{0.99, 0.01, 0}, nil)
	require.NoError(t, err)

	groups, err := lib.FindDuplicates(0.95)
	require.NoError(t, err)
	require.Len(t, groups, 1)
}

func TestRecommend_ReturnsScoredResults(t *testing.T) {
	lib := openTestLibrary(t)
	ctx := context.Background()

	_, err := lib.Add(ctx, "item", []float32{1, 0, 0}, nil)
	require.NoError(t, err)

	results, err := lib.Recommend(RecommendOptions{QueryEmbedding: []float32{1, 0, 0}})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestRecordFeedback_DoesNotError(t *testing.T) {
	lib := openTestLibrary(t)
	ctx := context.Background()

	id, err := lib.Add(ctx, "item", []float32{1, 0, 0}, nil)
	require.NoError(t, err)

	assert.NoError(t, lib.RecordFeedback(id, true))
}

func TestLearningWeights_SumToOne(t *testing.T) {
	lib := openTestLibrary(t)
	vector, recency, frequency := lib.LearningWeights("")
	assert.InDelta(t, 1.0, vector+recency+frequency, 1e-9)
}

func TestLibrarian_NilWhenNoGeneratorConfigured(t *testing.T) {
	lib := openTestLibrary(t)
	assert.Nil(t, lib.Librarian())
}

func TestEnqueueExtraction_FalseWithoutCirculationWorkers(t *testing.T) {
	lib := openTestLibrary(t)
	ok := lib.EnqueueExtraction(context.Background(), "go", "turn", nil)
	assert.False(t, ok)
}

func TestSaveAndClose_Succeed(t *testing.T) {
	lib, err := Open(context.Background(), Options{})
	require.NoError(t, err)

	_, err = lib.Add(context.Background(), "item", []float32{1, 0, 0}, nil)
	require.NoError(t, err)

	assert.NoError(t, lib.Save(context.Background()))
	assert.NoError(t, lib.Close(context.Background()))
}
