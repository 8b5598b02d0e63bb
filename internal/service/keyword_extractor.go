package service

import (
	"corpus_qa_backend/internal/model"
	"corpus_qa_backend/pkg/logger"
	"math"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// TermSet 一个问题的去重关键词集合。约束：全ASCII、非空、无重复。
type TermSet map[string]struct{}

func (t TermSet) Add(term string) {
	term = strings.TrimSpace(term)
	if term != "" {
		t[term] = struct{}{}
	}
}

// Jaccard 相似度 = |交集| / |并集|，取值[0,1]。两个空集视为0。
func Jaccard(a, b TermSet) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for term := range a {
		if _, ok := b[term]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// KeywordExtractor 两种互补手段抽取加权关键词：
// 短语级的共现度评分（RAKE一类）+ 语料级的TF-IDF词权重。
// TF-IDF需要全量问题语料计算文档频率，所以抽取必须整批进行。
type KeywordExtractor struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
	tfidfTopN    int
}

func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{
		tokenPattern: regexp.MustCompile(`[a-z0-9]+(?:'[a-z]+)*`),
		stopwords:    defaultStopwords(),
		tfidfTopN:    5,
	}
}

// stripNonASCII 去掉非ASCII字符，保证跨语言环境下词项比较稳定。
// 全部被剥掉时返回空串（调用方按空集处理）。
func stripNonASCII(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ExtractBatch 对整个语料做一次抽取，按问题ID返回词集。
// 单条坏记录（剥离后为空）只会得到空集，不会中断整批。
func (e *KeywordExtractor) ExtractBatch(questions []model.Question) map[string]TermSet {
	// 先全部分词，TF-IDF的文档频率要用
	tokenized := make([][]string, len(questions))
	df := make(map[string]int)
	for i, q := range questions {
		tokens := e.tokenize(q.Text)
		tokenized[i] = tokens
		seen := make(map[string]struct{})
		for _, tok := range tokens {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	corpusSize := float64(len(questions))
	result := make(map[string]TermSet, len(questions))
	for i, q := range questions {
		terms := e.ExtractPhrases(q.Text)

		// 语料相对的TF-IDF词权重，取前N个词并入
		tf := make(map[string]int)
		for _, tok := range tokenized[i] {
			tf[tok]++
		}
		type weighted struct {
			term   string
			weight float64
		}
		ranked := make([]weighted, 0, len(tf))
		for term, count := range tf {
			idf := math.Log((1 + corpusSize) / (1 + float64(df[term])))
			ranked = append(ranked, weighted{term: term, weight: float64(count) * (idf + 1)})
		}
		sort.Slice(ranked, func(a, b int) bool {
			if ranked[a].weight != ranked[b].weight {
				return ranked[a].weight > ranked[b].weight
			}
			return ranked[a].term < ranked[b].term // 权重持平时按字典序，保证确定性
		})
		for j, w := range ranked {
			if j >= e.tfidfTopN {
				break
			}
			terms.Add(w.term)
		}

		result[q.ID] = terms
	}
	return result
}

// ExtractPhrases 只跑短语抽取（无语料上下文时的退路，比如刚入库的新问题）。
// 候选短语为停用词/标点之间的连续词串，词按 degree/frequency 打分，
// 短语得分为成员词得分之和；全部候选短语去重后返回。
func (e *KeywordExtractor) ExtractPhrases(text string) TermSet {
	terms := make(TermSet)

	stripped := stripNonASCII(text)
	if strings.TrimSpace(stripped) == "" {
		if strings.TrimSpace(text) != "" {
			logger.Log.Warn("question stripped to empty, skipping keyword extraction",
				zap.String("question", text))
		}
		return terms
	}

	phrases := e.candidatePhrases(stripped)
	if len(phrases) == 0 {
		return terms
	}

	// 词的共现统计：freq 为出现次数，degree 为所在短语的总词数
	freq := make(map[string]int)
	degree := make(map[string]int)
	for _, phrase := range phrases {
		for _, word := range phrase {
			freq[word]++
			degree[word] += len(phrase)
		}
	}

	for _, phrase := range phrases {
		score := 0.0
		for _, word := range phrase {
			score += float64(degree[word]) / float64(freq[word])
		}
		if score > 0 {
			terms.Add(strings.Join(phrase, " "))
		}
	}
	return terms
}

var phraseBoundary = regexp.MustCompile(`[.,;:!?()\[\]"]+`)

// candidatePhrases 按停用词和标点切分出候选短语
func (e *KeywordExtractor) candidatePhrases(text string) [][]string {
	var phrases [][]string
	var current []string

	flush := func() {
		if len(current) > 0 {
			phrases = append(phrases, current)
			current = nil
		}
	}

	for _, segment := range phraseBoundary.Split(strings.ToLower(text), -1) {
		for _, raw := range strings.Fields(segment) {
			word := strings.Trim(raw, "'-")
			if !e.tokenPattern.MatchString(word) {
				flush()
				continue
			}
			if _, isStop := e.stopwords[word]; isStop {
				flush()
				continue
			}
			current = append(current, word)
		}
		flush()
	}
	return phrases
}

func (e *KeywordExtractor) tokenize(text string) []string {
	stripped := stripNonASCII(strings.ToLower(text))
	raw := e.tokenPattern.FindAllString(stripped, -1)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if _, isStop := e.stopwords[tok]; isStop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of",
		"in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been",
		"being", "it", "this", "that", "these", "those", "from", "up", "down", "over",
		"under", "again", "further", "than", "so", "such", "into", "about", "between",
		"through", "during", "before", "after", "above", "below", "out", "off", "own",
		"same", "too", "very", "can", "will", "just", "should", "now", "do", "does",
		"did", "how", "what", "when", "where", "who", "whom", "which", "why", "i",
		"me", "my", "we", "our", "you", "your", "he", "him", "his", "she", "her",
		"they", "them", "their", "there", "here", "have", "has", "had", "not", "no",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
