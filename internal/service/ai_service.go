package service

import (
	"bufio"
	"bytes"
	"context"
	"corpus_qa_backend/internal/config"
	"corpus_qa_backend/internal/util"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// AIService 调用OpenAI兼容的chat/completions接口。
// 回答与改写都固定 temperature 0：本系统要的是可复现的语气，不是创造性。
type AIService struct {
	config config.AIConfig
	client *http.Client
}

func NewAIService(cfg config.AIConfig) *AIService {
	return &AIService{
		config: cfg,
		client: &http.Client{},
	}
}

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionResponse struct {
	Choices []struct {
		Message AIChatMessage `json:"message"`
		Delta   AIChatMessage `json:"delta"` // 流式响应
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

const answerSystemPrompt = "You are a helpful assistant answering questions about a library of " +
	"spiritual teachings. Answer using ONLY the provided context. If the context does not " +
	"contain the answer, say you don't know rather than guessing. Keep the warm, measured " +
	"tone of the source material. Do not invent quotes or citations."

const condenseSystemPrompt = "Given a conversation and a follow-up question, rephrase the " +
	"follow-up into a single standalone question that preserves all names and references " +
	"from the conversation. Output only the standalone question, nothing else."

// ChatStream 流式生成回答。token通道按生成顺序逐个输出且只输出一次；
// 错误通道带缓冲，生产者结束后消费方再读也不会丢。
func (s *AIService) ChatStream(ctx context.Context, question, docContext string, history [][2]string) (<-chan string, <-chan error) {
	out := make(chan string)
	errChan := make(chan error, 1)

	systemContent := answerSystemPrompt
	if docContext != "" {
		systemContent = fmt.Sprintf("%s\n\nContext:\n%s", answerSystemPrompt, docContext)
	}

	messages := []AIChatMessage{{Role: "system", Content: systemContent}}
	for _, turn := range history {
		messages = append(messages, AIChatMessage{Role: "user", Content: turn[0]})
		messages = append(messages, AIChatMessage{Role: "assistant", Content: turn[1]})
	}
	messages = append(messages, AIChatMessage{Role: "user", Content: question})

	reqBody := map[string]interface{}{
		"model":       s.config.Model,
		"messages":    messages,
		"temperature": 0,
		"stream":      true,
	}

	jsonData, _ := json.Marshal(reqBody)

	go func() {
		defer close(out)
		defer close(errChan)

		req, err := http.NewRequestWithContext(ctx, "POST", s.config.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
		if err != nil {
			errChan <- err
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

		resp, err := s.client.Do(req)
		if err != nil {
			errChan <- fmt.Errorf("%w: %v", util.ErrUpstreamUnavailable, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			errChan <- classifyAPIError(resp.StatusCode, body)
			return
		}

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					errChan <- fmt.Errorf("%w: %v", util.ErrUpstreamUnavailable, err)
				}
				break
			}

			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}

			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				break
			}

			var streamResp ChatCompletionResponse
			if err := json.Unmarshal([]byte(data), &streamResp); err != nil {
				continue
			}

			if len(streamResp.Choices) > 0 {
				content := streamResp.Choices[0].Delta.Content
				if content != "" {
					select {
					case out <- content:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, errChan
}

// Condense 把追问压缩为独立问题。失败由编排层降级处理（退回原始问题），
// 这里只负责如实报告错误。
func (s *AIService) Condense(ctx context.Context, question string, history [][2]string) (string, error) {
	if len(history) == 0 {
		// 没有上下文可消解，原样返回
		return question, nil
	}

	var b strings.Builder
	for _, turn := range history {
		fmt.Fprintf(&b, "Human: %s\nAssistant: %s\n", turn[0], turn[1])
	}

	messages := []AIChatMessage{
		{Role: "system", Content: condenseSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Conversation:\n%s\nFollow-up question: %s", b.String(), question)},
	}

	model := s.config.RewriteModel
	if model == "" {
		model = s.config.Model
	}

	reqBody := map[string]interface{}{
		"model":       model,
		"messages":    messages,
		"temperature": 0,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", util.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", classifyAPIError(resp.StatusCode, body)
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%w: AI returned no choices", util.ErrUpstreamUnavailable)
	}

	standalone := strings.TrimSpace(result.Choices[0].Message.Content)
	if standalone == "" {
		return "", fmt.Errorf("%w: AI returned empty rewrite", util.ErrUpstreamUnavailable)
	}
	return standalone, nil
}

// classifyAPIError 429单独归类为配额错误，其余非2xx一律视为上游不可用
func classifyAPIError(status int, body []byte) error {
	if status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: AI API status %d", util.ErrQuotaExceeded, status)
	}
	return fmt.Errorf("%w: AI API error (status %d): %s", util.ErrUpstreamUnavailable, status, string(body))
}
