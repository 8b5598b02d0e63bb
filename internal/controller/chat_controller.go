package controller

import (
	"corpus_qa_backend/internal/middleware"
	"corpus_qa_backend/internal/service"
	"corpus_qa_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ChatController struct {
	chatService *service.ChatService
}

func NewChatController(chatService *service.ChatService) *ChatController {
	return &ChatController{chatService: chatService}
}

// Ask 处理问答请求，SSE流式返回
// @Summary 语料库问答
// @Description 改写问题→过滤向量检索→流式生成回答，来源文档先于答案下发
// @Tags Chat
// @Accept json
// @Produce text/event-stream
// @Param request body service.ChatRequest true "问题与过滤条件"
// @Router /api/chat [post]
func (c *ChatController) Ask(ctx *gin.Context) {
	var req service.ChatRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if err := c.chatService.Validate(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	clientID := middleware.ClientIdentifier(ctx)

	// 设置SSE响应头
	ctx.Header("Content-Type", "text/event-stream")
	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")
	ctx.Header("Transfer-Encoding", "chunked")

	// 排空编排器的事件通道，每帧一个单键JSON对象
	events := c.chatService.Stream(ctx.Request.Context(), req, clientID)
	for ev := range events {
		switch ev.Kind {
		case service.EventSourceDocs:
			ctx.SSEvent("message", gin.H{"sourceDocs": ev.SourceDocs})
		case service.EventToken:
			ctx.SSEvent("message", gin.H{"token": ev.Token})
		case service.EventDone:
			ctx.SSEvent("message", gin.H{"done": true})
		case service.EventError:
			ctx.SSEvent("message", gin.H{"error": ev.Err.Error()})
		}
		ctx.Writer.Flush()
	}
}
