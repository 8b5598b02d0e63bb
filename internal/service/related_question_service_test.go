package service

import (
	"corpus_qa_backend/internal/model"
	"corpus_qa_backend/internal/util"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuestionStore struct {
	questions []model.Question
	related   map[string][]string
	writeErr  map[string]error
}

func newFakeQuestionStore(questions ...model.Question) *fakeQuestionStore {
	return &fakeQuestionStore{
		questions: questions,
		related:   make(map[string][]string),
		writeErr:  make(map[string]error),
	}
}

func (s *fakeQuestionStore) ListQuestions() ([]model.Question, error) {
	return s.questions, nil
}

func (s *fakeQuestionStore) UpdateRelatedQuestions(id string, relatedIDs []string) error {
	if err := s.writeErr[id]; err != nil {
		return err
	}
	s.related[id] = relatedIDs
	return nil
}

func question(id, text string, minutesAgo int) model.Question {
	return model.Question{
		ID:      id,
		Text:    text,
		AskedAt: time.Now().Add(-time.Duration(minutesAgo) * time.Minute),
	}
}

func TestRecomputeAllIdempotent(t *testing.T) {
	store := newFakeQuestionStore(
		question("q1", "How do I meditate daily?", 60),
		question("q2", "Daily meditation techniques", 50),
		question("q3", "What is the purpose of yoga postures?", 40),
		question("q4", "Morning meditation techniques for beginners", 30),
	)
	svc := NewRelatedQuestionService(store)

	processed, err := svc.RecomputeAll()
	require.NoError(t, err)
	assert.Equal(t, 4, processed)
	first := make(map[string][]string, len(store.related))
	for id, ids := range store.related {
		first[id] = slices.Clone(ids)
	}

	_, err = svc.RecomputeAll()
	require.NoError(t, err)
	assert.Equal(t, first, store.related)
}

func TestRecomputeAllTopKAndThreshold(t *testing.T) {
	questions := []model.Question{
		question("target", "daily meditation practice guide", 100),
		// 与target毫无词项交集的候选，不应出现在关联列表里
		question("noise", "quarterly accounting report", 90),
	}
	for i := 0; i < 8; i++ {
		questions = append(questions, question(
			string(rune('a'+i)),
			"daily meditation practice tips",
			80-i,
		))
	}
	store := newFakeQuestionStore(questions...)
	svc := NewRelatedQuestionService(store)

	_, err := svc.RecomputeAll()
	require.NoError(t, err)

	related := store.related["target"]
	assert.LessOrEqual(t, len(related), 5)
	assert.NotContains(t, related, "noise")
}

func TestRecomputeAllDedupeByText(t *testing.T) {
	store := newFakeQuestionStore(
		question("dup1", "Daily meditation techniques", 60),
		question("dup2", "Daily meditation techniques", 50),
		question("asker", "How do I meditate daily?", 40),
	)
	svc := NewRelatedQuestionService(store)

	_, err := svc.RecomputeAll()
	require.NoError(t, err)

	related := store.related["asker"]
	hasDup1 := contains(related, "dup1")
	hasDup2 := contains(related, "dup2")
	assert.True(t, hasDup1 != hasDup2, "exactly one of the duplicate ids should appear, got %v", related)
}

func TestRecomputeAllSkipsFailedWrites(t *testing.T) {
	store := newFakeQuestionStore(
		question("q1", "How do I meditate daily?", 60),
		question("q2", "Daily meditation techniques", 50),
	)
	store.writeErr["q1"] = assert.AnError

	svc := NewRelatedQuestionService(store)
	processed, err := svc.RecomputeAll()
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Contains(t, store.related, "q2")
}

func TestRecomputeOne(t *testing.T) {
	store := newFakeQuestionStore(
		question("q1", "How do I meditate daily?", 60),
		question("q2", "Best ways to meditate daily", 50),
		question("q3", "Tax filing deadlines", 40),
	)
	svc := NewRelatedQuestionService(store)

	t.Run("updates only the target record", func(t *testing.T) {
		require.NoError(t, svc.RecomputeOne("q1"))
		assert.Contains(t, store.related, "q1")
		assert.NotContains(t, store.related, "q2")
		assert.Contains(t, store.related["q1"], "q2")
		assert.NotContains(t, store.related["q1"], "q3")
	})

	t.Run("unknown id yields NotFound", func(t *testing.T) {
		err := svc.RecomputeOne("missing")
		assert.ErrorIs(t, err, util.ErrNotFound)
	})
}

func TestMutualRelation(t *testing.T) {
	// 相似的两个问题重算后应互相出现在对方的关联列表里
	store := newFakeQuestionStore(
		question("q1", "How do I meditate daily?", 60),
		question("q2", "Daily meditation techniques", 50),
	)
	svc := NewRelatedQuestionService(store)

	_, err := svc.RecomputeAll()
	require.NoError(t, err)

	assert.Contains(t, store.related["q1"], "q2")
	assert.Contains(t, store.related["q2"], "q1")
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
