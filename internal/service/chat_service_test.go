package service

import (
	"context"
	"corpus_qa_backend/internal/model"
	"corpus_qa_backend/internal/util"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	tokens      []string
	streamErr   error
	condensed   string
	condenseErr error

	// holdOpen 让流在发完token后保持打开，直到ctx取消才结束，
	// 用于确定性地测试调用方断开
	holdOpen bool
}

func (g *fakeGenerator) ChatStream(ctx context.Context, question, docContext string, history [][2]string) (<-chan string, <-chan error) {
	out := make(chan string)
	errChan := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errChan)
		for _, tok := range g.tokens {
			select {
			case out <- tok:
			case <-ctx.Done():
				return
			}
		}
		if g.holdOpen {
			<-ctx.Done()
			return
		}
		if g.streamErr != nil {
			errChan <- g.streamErr
		}
	}()
	return out, errChan
}

func (g *fakeGenerator) Condense(ctx context.Context, question string, history [][2]string) (string, error) {
	if g.condenseErr != nil {
		return "", g.condenseErr
	}
	if g.condensed != "" {
		return g.condensed, nil
	}
	return question, nil
}

type fakeRetriever struct {
	docs        []model.SourceDocument
	err         error
	gotQuestion string
}

func (r *fakeRetriever) Retrieve(ctx context.Context, question string, selection MediaTypeSelection, collectionTag string) ([]model.SourceDocument, error) {
	r.gotQuestion = question
	return r.docs, r.err
}

type fakeAnswerStore struct {
	mu      sync.Mutex
	created []*model.AnswerRecord
	err     error
}

func (s *fakeAnswerStore) Create(rec *model.AnswerRecord) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, rec)
	return nil
}

func (s *fakeAnswerStore) records() []*model.AnswerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.AnswerRecord(nil), s.created...)
}

type fakeRecomputer struct {
	invoked chan string
	err     error
}

func newFakeRecomputer() *fakeRecomputer {
	return &fakeRecomputer{invoked: make(chan string, 1)}
}

func (r *fakeRecomputer) RecomputeOne(questionID string) error {
	r.invoked <- questionID
	return r.err
}

func collectEvents(t *testing.T, events <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var all []StreamEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return all
			}
			all = append(all, ev)
		case <-timeout:
			t.Fatal("timed out draining event channel")
		}
	}
}

func countKind(events []StreamEvent, kind EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func newTestChatService(gen *fakeGenerator, ret *fakeRetriever, store *fakeAnswerStore, rec *fakeRecomputer) *ChatService {
	return NewChatService(gen, ret, store, rec, []string{"whole-corpus", "curated"}, time.Minute)
}

func TestValidate(t *testing.T) {
	svc := newTestChatService(&fakeGenerator{}, &fakeRetriever{}, &fakeAnswerStore{}, newFakeRecomputer())

	t.Run("empty question rejected", func(t *testing.T) {
		req := ChatRequest{Collection: "whole-corpus", Question: "   \n  "}
		assert.ErrorIs(t, svc.Validate(&req), util.ErrEmptyQuestion)
	})

	t.Run("unknown collection rejected", func(t *testing.T) {
		req := ChatRequest{Collection: "secret", Question: "What is meditation?"}
		assert.ErrorIs(t, svc.Validate(&req), util.ErrUnknownCollection)
	})

	t.Run("newlines collapsed to spaces", func(t *testing.T) {
		req := ChatRequest{Collection: "whole-corpus", Question: "What is\nmeditation?\r\n"}
		require.NoError(t, svc.Validate(&req))
		assert.Equal(t, "What is meditation?", req.Question)
	})
}

func TestStreamContractSuccess(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"Meditation ", "is ", "stillness."}}
	ret := &fakeRetriever{docs: []model.SourceDocument{{ContentSnippet: "about meditation"}}}
	store := &fakeAnswerStore{}
	rec := newFakeRecomputer()
	svc := newTestChatService(gen, ret, store, rec)

	req := ChatRequest{Collection: "whole-corpus", Question: "What is meditation?"}
	events := collectEvents(t, svc.Stream(context.Background(), req, "client-1"))

	require.NotEmpty(t, events)
	assert.Equal(t, EventSourceDocs, events[0].Kind, "source documents are delivered before any token")
	assert.Equal(t, 1, countKind(events, EventSourceDocs))
	assert.Equal(t, 3, countKind(events, EventToken))
	assert.Equal(t, 1, countKind(events, EventDone))
	assert.Equal(t, 0, countKind(events, EventError))
	assert.Equal(t, EventDone, events[len(events)-1].Kind)
}

func TestStreamMidGenerationFailure(t *testing.T) {
	gen := &fakeGenerator{
		tokens:    []string{"Meditation ", "is "},
		streamErr: errors.New("upstream connection reset"),
	}
	store := &fakeAnswerStore{}
	svc := newTestChatService(gen, &fakeRetriever{}, store, newFakeRecomputer())

	req := ChatRequest{Collection: "whole-corpus", Question: "What is meditation?"}
	events := collectEvents(t, svc.Stream(context.Background(), req, "client-1"))

	assert.Equal(t, 1, countKind(events, EventSourceDocs))
	assert.Equal(t, 2, countKind(events, EventToken))
	assert.Equal(t, 1, countKind(events, EventError))
	assert.Equal(t, 0, countKind(events, EventDone))
	assert.Empty(t, store.records(), "no partial answer may be persisted")
}

func TestStreamErrorReachesSlowConsumer(t *testing.T) {
	// 15个token加上sourceDocs正好填满事件缓冲，消费方迟迟不读。
	// 生成失败的终结错误事件仍必须在消费方恢复排空后送达。
	tokens := make([]string, 15)
	for i := range tokens {
		tokens[i] = "t"
	}
	gen := &fakeGenerator{tokens: tokens, streamErr: errors.New("upstream connection reset")}
	store := &fakeAnswerStore{}
	svc := newTestChatService(gen, &fakeRetriever{}, store, newFakeRecomputer())

	req := ChatRequest{Collection: "whole-corpus", Question: "What is meditation?"}
	eventChan := svc.Stream(context.Background(), req, "client-1")

	time.Sleep(150 * time.Millisecond)
	events := collectEvents(t, eventChan)

	assert.Equal(t, 1, countKind(events, EventError))
	assert.Equal(t, 0, countKind(events, EventDone))
	assert.Empty(t, store.records())
}

func TestStreamRetrievalFailure(t *testing.T) {
	ret := &fakeRetriever{err: util.ErrUpstreamUnavailable}
	store := &fakeAnswerStore{}
	svc := newTestChatService(&fakeGenerator{tokens: []string{"x"}}, ret, store, newFakeRecomputer())

	req := ChatRequest{Collection: "whole-corpus", Question: "What is meditation?"}
	events := collectEvents(t, svc.Stream(context.Background(), req, "client-1"))

	assert.Equal(t, 0, countKind(events, EventSourceDocs))
	assert.Equal(t, 0, countKind(events, EventToken))
	assert.Equal(t, 1, countKind(events, EventError))
	assert.Equal(t, 0, countKind(events, EventDone))
	assert.Empty(t, store.records())
}

func TestRewriteFailureDegrades(t *testing.T) {
	gen := &fakeGenerator{
		tokens:      []string{"answer"},
		condenseErr: errors.New("rewrite model unavailable"),
	}
	ret := &fakeRetriever{}
	store := &fakeAnswerStore{}
	svc := newTestChatService(gen, ret, store, newFakeRecomputer())

	req := ChatRequest{
		Collection: "whole-corpus",
		Question:   "And how often?",
		History:    [][2]string{{"What is meditation?", "A practice of stillness."}},
	}
	events := collectEvents(t, svc.Stream(context.Background(), req, "client-1"))

	// 改写失败不是致命错误：退回原始问题继续走完整条流水线
	assert.Equal(t, 1, countKind(events, EventDone))
	assert.Equal(t, 0, countKind(events, EventError))
	assert.Equal(t, "And how often?", ret.gotQuestion)
}

func TestStreamHardTimeout(t *testing.T) {
	// 生成器卡死不返回，编排应在硬超时后以超时错误终止而不是挂住
	gen := &fakeGenerator{tokens: []string{"partial "}, holdOpen: true}
	store := &fakeAnswerStore{}
	svc := NewChatService(gen, &fakeRetriever{}, store, newFakeRecomputer(),
		[]string{"whole-corpus"}, 150*time.Millisecond)

	req := ChatRequest{Collection: "whole-corpus", Question: "What is meditation?"}
	events := collectEvents(t, svc.Stream(context.Background(), req, "client-1"))

	require.Equal(t, 1, countKind(events, EventError))
	assert.Equal(t, 0, countKind(events, EventDone))
	for _, ev := range events {
		if ev.Kind == EventError {
			assert.Contains(t, ev.Err.Error(), "timed out")
		}
	}
	assert.Empty(t, store.records(), "timed-out exchanges must not be persisted")
}

func TestPrivateSessionSkipsPersistence(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"answer"}}
	store := &fakeAnswerStore{}
	rec := newFakeRecomputer()
	svc := newTestChatService(gen, &fakeRetriever{}, store, rec)

	req := ChatRequest{
		Collection:     "whole-corpus",
		Question:       "What is meditation?",
		PrivateSession: true,
	}
	events := collectEvents(t, svc.Stream(context.Background(), req, "client-1"))

	assert.Equal(t, 1, countKind(events, EventDone))
	assert.Empty(t, store.records())

	select {
	case id := <-rec.invoked:
		t.Fatalf("related recompute must not run for private sessions, got %s", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSuccessfulExchangePersistsAndTriggersRecompute(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"Meditation ", "is ", "stillness."}}
	ret := &fakeRetriever{docs: []model.SourceDocument{{ContentSnippet: "context"}}}
	store := &fakeAnswerStore{}
	rec := newFakeRecomputer()
	svc := newTestChatService(gen, ret, store, rec)

	req := ChatRequest{
		Collection: "whole-corpus",
		Question:   "What is meditation?",
		MediaTypes: MediaTypeSelection{},
	}
	events := collectEvents(t, svc.Stream(context.Background(), req, "client-42"))
	assert.Equal(t, EventDone, events[len(events)-1].Kind)

	records := store.records()
	require.Len(t, records, 1)
	recorded := records[0]
	assert.Equal(t, "What is meditation?", recorded.Question)
	assert.Equal(t, "Meditation is stillness.", recorded.AnswerText)
	assert.Equal(t, "client-42", recorded.ClientIdentifier)
	assert.Equal(t, model.StringList{"text", "audio", "video"}, recorded.MediaTypeFilters)
	assert.LessOrEqual(t, len(recorded.RelatedQuestionIDs), 5)

	select {
	case id := <-rec.invoked:
		assert.Equal(t, recorded.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("related recompute was never triggered")
	}
}

func TestCallerDisconnectAbandonsExchange(t *testing.T) {
	gen := &fakeGenerator{tokens: []string{"a", "b", "c", "d"}, holdOpen: true}
	store := &fakeAnswerStore{}
	svc := newTestChatService(gen, &fakeRetriever{}, store, newFakeRecomputer())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := ChatRequest{Collection: "whole-corpus", Question: "What is meditation?"}
	events := svc.Stream(ctx, req, "client-1")

	// 读到第一个token后模拟调用方断开
	for ev := range events {
		if ev.Kind == EventToken {
			cancel()
			break
		}
	}
	for range events {
	}

	assert.Empty(t, store.records(), "aborted streams must not be persisted")
}
