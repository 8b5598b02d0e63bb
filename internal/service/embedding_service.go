package service

import (
	"context"
	"corpus_qa_backend/internal/config"
	"corpus_qa_backend/internal/util"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// EmbeddingService 文本向量化能力，进程启动时构造一次，无需显式释放
type EmbeddingService struct {
	embedder *embeddings.EmbedderImpl
}

func NewEmbeddingService(cfg config.AIConfig) (*EmbeddingService, error) {
	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &EmbeddingService{embedder: embedder}, nil
}

func (s *EmbeddingService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding: %v", util.ErrUpstreamUnavailable, err)
	}
	return vector, nil
}
