package service

import (
	"context"
	"corpus_qa_backend/internal/config"
	"corpus_qa_backend/internal/model"
	"corpus_qa_backend/pkg/vectorstore"
)

// MediaTypeSelection 调用方勾选的媒体类型。三项全 false 视为未做选择。
type MediaTypeSelection struct {
	Text  bool `json:"text"`
	Audio bool `json:"audio"`
	Video bool `json:"video"`
}

// Selected 返回勾选的类型名；全false时返回全部三种，
// 避免因"什么都没勾"构造出必然为空的过滤器
func (m MediaTypeSelection) Selected() []string {
	if !m.Text && !m.Audio && !m.Video {
		return []string{"text", "audio", "video"}
	}
	types := make([]string, 0, 3)
	if m.Text {
		types = append(types, "text")
	}
	if m.Audio {
		types = append(types, "audio")
	}
	if m.Video {
		types = append(types, "video")
	}
	return types
}

// QueryEmbedder / VectorSearcher 检索相关的外部能力，注入接口便于测试替身
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK int, filter vectorstore.SearchFilter) ([]model.SourceDocument, error)
}

type RetrievalService struct {
	embedder QueryEmbedder
	searcher VectorSearcher
	corpus   config.CorpusConfig
	topK     int
}

func NewRetrievalService(embedder QueryEmbedder, searcher VectorSearcher, corpus config.CorpusConfig, topK int) *RetrievalService {
	return &RetrievalService{
		embedder: embedder,
		searcher: searcher,
		corpus:   corpus,
		topK:     topK,
	}
}

// BuildFilter 纯函数：勾选项 + 集合标签 + 站点配置 → 结构化过滤器。
// 相同输入必得相同输出，无任何I/O。
func (s *RetrievalService) BuildFilter(selection MediaTypeSelection, collectionTag string) vectorstore.SearchFilter {
	filter := vectorstore.SearchFilter{
		MediaTypes: selection.Selected(),
	}

	if len(s.corpus.IncludedLibraries) > 0 {
		filter.Libraries = append([]string(nil), s.corpus.IncludedLibraries...)
	}

	// 精选集合与配置的作者白名单取交集
	if collectionTag == s.corpus.CuratedTag && len(s.corpus.CuratedAuthors) > 0 {
		filter.Authors = append([]string(nil), s.corpus.CuratedAuthors...)
	}

	return filter
}

// Retrieve 向量化独立问题并做过滤检索
func (s *RetrievalService) Retrieve(ctx context.Context, question string, selection MediaTypeSelection, collectionTag string) ([]model.SourceDocument, error) {
	vector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, err
	}

	filter := s.BuildFilter(selection, collectionTag)
	return s.searcher.Search(ctx, vector, s.topK, filter)
}
