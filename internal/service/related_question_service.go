package service

import (
	"corpus_qa_backend/internal/model"
	"corpus_qa_backend/internal/util"
	"corpus_qa_backend/pkg/logger"
	"corpus_qa_backend/pkg/monitoring"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

const (
	relatedSimilarityThreshold = 0.1
	relatedTopK                = 5
)

// QuestionStore 关联问题引擎依赖的语料读写能力
type QuestionStore interface {
	ListQuestions() ([]model.Question, error)
	UpdateRelatedQuestions(id string, relatedIDs []string) error
}

// RelatedQuestionService 为每个问题找出最相似的前5个历史问题。
// 重算是确定性的：语料不变时跑两遍得到完全相同的有序ID列表。
type RelatedQuestionService struct {
	store     QuestionStore
	extractor *KeywordExtractor
}

func NewRelatedQuestionService(store QuestionStore) *RelatedQuestionService {
	return &RelatedQuestionService{
		store:     store,
		extractor: NewKeywordExtractor(),
	}
}

// RecomputeAll 对整个语料重算关联列表，返回处理条数。
// 关键词整批抽取一次，摊薄TF-IDF的语料级权重计算；
// 单条写回失败只记日志，不中断整批。
func (s *RelatedQuestionService) RecomputeAll() (int, error) {
	start := time.Now()
	defer func() {
		monitoring.RelatedRecomputeDuration.Observe(time.Since(start).Seconds())
	}()

	questions, err := s.store.ListQuestions()
	if err != nil {
		return 0, err
	}

	sets := s.extractor.ExtractBatch(questions)

	processed := 0
	for _, q := range questions {
		related := s.rank(q, sets[q.ID], questions, sets)
		if err := s.store.UpdateRelatedQuestions(q.ID, related); err != nil {
			logger.Log.Error("failed to persist related questions",
				zap.String("questionId", q.ID), zap.Error(err))
			continue
		}
		processed++
	}

	logger.Log.Info("related-question recompute finished",
		zap.Int("processed", processed), zap.Int("corpus", len(questions)))
	return processed, nil
}

// RecomputeOne 只重算指定问题的关联列表，其余语料作为候选。
// 新问题缺少语料上下文，目标自身只跑短语抽取；候选仍用整批抽取的词集。
func (s *RelatedQuestionService) RecomputeOne(questionID string) error {
	questions, err := s.store.ListQuestions()
	if err != nil {
		return err
	}

	var target *model.Question
	for i := range questions {
		if questions[i].ID == questionID {
			target = &questions[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("%w: question %s", util.ErrNotFound, questionID)
	}

	sets := s.extractor.ExtractBatch(questions)
	targetSet := s.extractor.ExtractPhrases(target.Text)

	related := s.rank(*target, targetSet, questions, sets)
	return s.store.UpdateRelatedQuestions(target.ID, related)
}

type scoredCandidate struct {
	question   model.Question
	similarity float64
}

// rank 对候选按Jaccard相似度排序：低于阈值的丢弃，降序稳定排序
// （同分保持语料原序），再按问题文本去重（同文多ID只留相似度最高的），
// 最后截取前K个ID。
func (s *RelatedQuestionService) rank(target model.Question, targetSet TermSet, candidates []model.Question, sets map[string]TermSet) []string {
	scored := make([]scoredCandidate, 0, len(candidates))
	for _, cand := range candidates {
		if cand.ID == target.ID {
			continue
		}
		sim := Jaccard(targetSet, sets[cand.ID])
		if sim < relatedSimilarityThreshold {
			continue
		}
		scored = append(scored, scoredCandidate{question: cand, similarity: sim})
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].similarity > scored[b].similarity
	})

	// 语料中同一问题文本可能以不同ID重复出现，关联列表不应把
	// 实质相同的问题列两次
	seenText := make(map[string]struct{}, len(scored))
	related := make([]string, 0, relatedTopK)
	for _, c := range scored {
		if _, dup := seenText[c.question.Text]; dup {
			continue
		}
		seenText[c.question.Text] = struct{}{}
		related = append(related, c.question.ID)
		if len(related) == relatedTopK {
			break
		}
	}
	return related
}
