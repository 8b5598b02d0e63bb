package service

import (
	"context"
	"corpus_qa_backend/internal/model"
	"corpus_qa_backend/internal/util"
	"corpus_qa_backend/pkg/logger"
	"corpus_qa_backend/pkg/monitoring"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChatRequest 调用方提交的一次问答请求
type ChatRequest struct {
	Collection     string             `json:"collection"`
	Question       string             `json:"question" binding:"required"`
	History        [][2]string        `json:"history"`
	PrivateSession bool               `json:"privateSession"`
	MediaTypes     MediaTypeSelection `json:"mediaTypes"`
}

// EventKind 流事件的标签。用带标签的变体而不是字符串信号，
// 消费方可以穷尽处理。
type EventKind int

const (
	EventSourceDocs EventKind = iota
	EventToken
	EventDone
	EventError
)

// terminalSendGrace 终结错误事件的投递宽限期
const terminalSendGrace = 5 * time.Second

// StreamEvent 编排器写入、传输层排空的有序事件。
// 一次会话内：sourceDocs一次 → token若干（按生成顺序各一次）→
// done或error恰好一个（终结事件）。
type StreamEvent struct {
	Kind       EventKind
	SourceDocs []model.SourceDocument
	Token      string
	Err        error
}

// 编排器消费的外部能力，注入接口便于测试替身
type Generator interface {
	ChatStream(ctx context.Context, question, docContext string, history [][2]string) (<-chan string, <-chan error)
	Condense(ctx context.Context, question string, history [][2]string) (string, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, question string, selection MediaTypeSelection, collectionTag string) ([]model.SourceDocument, error)
}

type AnswerStore interface {
	Create(rec *model.AnswerRecord) error
}

type RelatedRecomputer interface {
	RecomputeOne(questionID string) error
}

// ChatService 问答流水线编排：
// 清洗 → 改写 → 检索 → 流式生成 → 持久化 → 关联问题重算（异步尽力而为）。
// 每个请求独占一条流水线实例状态，会话之间不共享可变数据。
type ChatService struct {
	ai          Generator
	retrieval   Retriever
	answers     AnswerStore
	related     RelatedRecomputer
	collections []string
	timeout     time.Duration
}

func NewChatService(ai Generator, retrieval Retriever, answers AnswerStore, related RelatedRecomputer, collections []string, timeout time.Duration) *ChatService {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &ChatService{
		ai:          ai,
		retrieval:   retrieval,
		answers:     answers,
		related:     related,
		collections: collections,
		timeout:     timeout,
	}
}

// SanitizeQuestion 去掉首尾空白并把换行折叠成空格，
// 单行查询在检索和生成上都更稳定
func SanitizeQuestion(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Validate 入参校验。失败的请求不会进入编排，直接以 InvalidInput 拒绝。
func (s *ChatService) Validate(req *ChatRequest) error {
	req.Question = SanitizeQuestion(req.Question)
	if req.Question == "" {
		return util.ErrEmptyQuestion
	}
	for _, tag := range s.collections {
		if req.Collection == tag {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", util.ErrUnknownCollection, req.Collection)
}

// Stream 执行整条流水线，事件顺序写入返回的通道，结束后关闭。
// 调用方断开时传入的ctx应随之取消，在途生成会被放弃且不持久化。
func (s *ChatService) Stream(ctx context.Context, req ChatRequest, clientID string) <-chan StreamEvent {
	events := make(chan StreamEvent, 16)
	go s.run(ctx, req, clientID, events)
	return events
}

func (s *ChatService) run(parent context.Context, req ChatRequest, clientID string, events chan<- StreamEvent) {
	defer close(events)

	// 整条编排的硬超时上限，超过即以超时错误终止而不是挂死
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	emit := func(ev StreamEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	fail := func(err error) {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("chat orchestration timed out after %s", s.timeout)
		}
		// 终结错误事件不经过emit：超时后ctx已取消，但仍在排空通道的
		// 调用方必须收到恰好一个终结事件。阻塞发送并设宽限期，
		// 调用方彻底消失时才放弃
		select {
		case events <- StreamEvent{Kind: EventError, Err: err}:
		case <-time.After(terminalSendGrace):
		}
		monitoring.ChatSessionCounter.WithLabelValues("errored").Inc()
	}

	// REWRITING：改写失败降级为使用原始问题，不让整个请求失败
	standalone := req.Question
	if len(req.History) > 0 {
		rewritten, err := s.ai.Condense(ctx, req.Question, req.History)
		if err != nil {
			logger.Log.Warn("query rewrite failed, falling back to original question",
				zap.Error(err))
		} else {
			standalone = rewritten
		}
	}

	// RETRIEVING：来源文档一到手立刻作为独立事件下发，
	// 调用方在答案生成完之前就能展示来源
	docs, err := s.retrieval.Retrieve(ctx, standalone, req.MediaTypes, req.Collection)
	if err != nil {
		fail(err)
		return
	}
	if docs == nil {
		docs = []model.SourceDocument{}
	}
	if !emit(StreamEvent{Kind: EventSourceDocs, SourceDocs: docs}) {
		return
	}

	// SYNTHESIZING：token逐个转发，中途失败发error事件，不持久化半截答案
	tokens, errChan := s.ai.ChatStream(ctx, standalone, combineDocContext(docs), req.History)
	var answer strings.Builder
	for tok := range tokens {
		if !emit(StreamEvent{Kind: EventToken, Token: tok}) {
			return
		}
		answer.WriteString(tok)
		monitoring.ChatTokenCounter.Inc()
	}
	if err := <-errChan; err != nil {
		fail(err)
		return
	}
	if ctx.Err() != nil {
		fail(ctx.Err())
		return
	}

	// PERSISTING：私密会话完全跳过，也不会触发关联问题重算
	if !req.PrivateSession {
		rec := &model.AnswerRecord{
			ID:                 uuid.NewString(),
			Question:           req.Question,
			AnswerText:         answer.String(),
			SourceDocuments:    model.SourceDocumentList(docs),
			CollectionTag:      req.Collection,
			MediaTypeFilters:   model.StringList(req.MediaTypes.Selected()),
			ClientIdentifier:   clientID,
			RelatedQuestionIDs: model.StringList{},
			CreatedAt:          time.Now(),
		}
		if err := s.answers.Create(rec); err != nil {
			fail(fmt.Errorf("persisting answer: %w", err))
			return
		}

		// RELATED_QUESTIONS：独立任务，自带错误边界，绝不阻塞响应，
		// 失败只记日志，不重试也不上抛给调用方
		go func(id string) {
			if err := s.related.RecomputeOne(id); err != nil {
				logger.Log.Error("best-effort related recompute failed",
					zap.String("questionId", id), zap.Error(err))
			}
		}(rec.ID)
	}

	emit(StreamEvent{Kind: EventDone})
	monitoring.ChatSessionCounter.WithLabelValues("done").Inc()
}

// combineDocContext 把检索片段拼接成生成用的上下文文本
func combineDocContext(docs []model.SourceDocument) string {
	if len(docs) == 0 {
		return ""
	}
	var b strings.Builder
	for i, doc := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if doc.Metadata.Title != "" {
			fmt.Fprintf(&b, "[%s] ", doc.Metadata.Title)
		}
		b.WriteString(doc.ContentSnippet)
	}
	return b.String()
}
