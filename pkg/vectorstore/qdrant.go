package vectorstore

import (
	"bytes"
	"context"
	"corpus_qa_backend/internal/model"
	"corpus_qa_backend/internal/util"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SearchFilter 结构化检索过滤条件。空切片表示该维度不限制。
type SearchFilter struct {
	MediaTypes []string `json:"mediaTypes"`
	Libraries  []string `json:"libraries,omitempty"`
	Authors    []string `json:"authors,omitempty"`
}

// Qdrant 向量库的REST客户端，假定集合已按余弦距离建好
type Qdrant struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewQdrant(cfg Config) *Qdrant {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Qdrant{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// buildFilterClause 把结构化过滤条件翻译为Qdrant的must子句
func buildFilterClause(filter SearchFilter) map[string]any {
	must := []map[string]any{}
	if len(filter.MediaTypes) > 0 {
		must = append(must, map[string]any{
			"key":   "media_type",
			"match": map[string]any{"any": filter.MediaTypes},
		})
	}
	if len(filter.Libraries) > 0 {
		must = append(must, map[string]any{
			"key":   "library",
			"match": map[string]any{"any": filter.Libraries},
		})
	}
	if len(filter.Authors) > 0 {
		must = append(must, map[string]any{
			"key":   "author",
			"match": map[string]any{"any": filter.Authors},
		})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

// Search 过滤向量检索，结果映射为来源文档
func (q *Qdrant) Search(ctx context.Context, vector []float32, topK int, filter SearchFilter) ([]model.SourceDocument, error) {
	if topK <= 0 {
		topK = 4
	}
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if clause := buildFilterClause(filter); clause != nil {
		reqBody["filter"] = clause
	}

	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", q.url, q.collection)
	if err := q.postJSON(ctx, url, reqBody, &resp); err != nil {
		return nil, err
	}

	docs := make([]model.SourceDocument, 0, len(resp.Result))
	for _, r := range resp.Result {
		docs = append(docs, payloadToDocument(r.Payload))
	}
	return docs, nil
}

func payloadToDocument(payload map[string]any) model.SourceDocument {
	doc := model.SourceDocument{}
	if v, ok := payload["text"].(string); ok {
		doc.ContentSnippet = v
	}
	if v, ok := payload["title"].(string); ok {
		doc.Metadata.Title = v
	}
	if v, ok := payload["source_url"].(string); ok {
		doc.Metadata.SourceURL = v
	}
	if v, ok := payload["library"].(string); ok {
		doc.Metadata.Library = v
	}
	if v, ok := payload["media_type"].(string); ok {
		doc.Metadata.MediaType = v
	}
	if v, ok := payload["start_time"].(float64); ok {
		doc.Metadata.StartTime = v
	}
	if v, ok := payload["end_time"].(float64); ok {
		doc.Metadata.EndTime = v
	}
	return doc
}

func (q *Qdrant) postJSON(ctx context.Context, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// 集合不存在属于部署配置问题，与瞬时故障区分开
		return fmt.Errorf("%w: collection %q", util.ErrNotFound, q.collection)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: qdrant POST %s: %s", util.ErrUpstreamUnavailable, url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
