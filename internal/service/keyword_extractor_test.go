package service

import (
	"corpus_qa_backend/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func termSet(terms ...string) TermSet {
	set := make(TermSet, len(terms))
	for _, t := range terms {
		set.Add(t)
	}
	return set
}

func TestJaccard(t *testing.T) {
	t.Run("bounds", func(t *testing.T) {
		a := termSet("daily", "meditation", "practice")
		b := termSet("meditation", "posture")
		sim := Jaccard(a, b)
		assert.GreaterOrEqual(t, sim, 0.0)
		assert.LessOrEqual(t, sim, 1.0)
	})

	t.Run("set with itself is one", func(t *testing.T) {
		a := termSet("daily", "meditation")
		assert.Equal(t, 1.0, Jaccard(a, a))
	})

	t.Run("disjoint non-empty sets are zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Jaccard(termSet("alpha"), termSet("beta")))
	})

	t.Run("empty sets are zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Jaccard(TermSet{}, TermSet{}))
		assert.Equal(t, 0.0, Jaccard(termSet("alpha"), TermSet{}))
	})
}

func TestStripNonASCII(t *testing.T) {
	assert.Equal(t, "meditation ", stripNonASCII("meditation 冥想"))
	assert.Equal(t, "", stripNonASCII("冥想"))
	assert.Equal(t, "plain", stripNonASCII("plain"))
}

func TestExtractPhrases(t *testing.T) {
	extractor := NewKeywordExtractor()

	t.Run("stopwords split candidate phrases", func(t *testing.T) {
		terms := extractor.ExtractPhrases("How do I meditate daily?")
		assert.Contains(t, terms, "meditate daily")
	})

	t.Run("non-ascii question strips to empty set", func(t *testing.T) {
		terms := extractor.ExtractPhrases("冥想是什么？")
		assert.Empty(t, terms)
	})

	t.Run("terms are deduplicated and non-empty", func(t *testing.T) {
		terms := extractor.ExtractPhrases("meditation, meditation, meditation")
		require.NotEmpty(t, terms)
		for term := range terms {
			assert.NotEmpty(t, term)
		}
		assert.Len(t, terms, 1)
	})
}

func TestExtractBatch(t *testing.T) {
	extractor := NewKeywordExtractor()

	questions := []model.Question{
		{ID: "q1", Text: "How do I meditate daily?"},
		{ID: "q2", Text: "Daily meditation techniques"},
		{ID: "q3", Text: "冥想"},
	}
	sets := extractor.ExtractBatch(questions)
	require.Len(t, sets, 3)

	t.Run("similar questions clear the threshold", func(t *testing.T) {
		sim := Jaccard(sets["q1"], sets["q2"])
		assert.Greater(t, sim, 0.1)
	})

	t.Run("bad record gets empty set without aborting the batch", func(t *testing.T) {
		assert.Empty(t, sets["q3"])
		assert.NotEmpty(t, sets["q1"])
		assert.NotEmpty(t, sets["q2"])
	})

	t.Run("batch extraction is deterministic", func(t *testing.T) {
		again := extractor.ExtractBatch(questions)
		assert.Equal(t, sets, again)
	})
}
