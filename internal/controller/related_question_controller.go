package controller

import (
	"corpus_qa_backend/internal/service"
	"corpus_qa_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

type RelatedQuestionController struct {
	relatedService *service.RelatedQuestionService
}

func NewRelatedQuestionController(relatedService *service.RelatedQuestionService) *RelatedQuestionController {
	return &RelatedQuestionController{relatedService: relatedService}
}

// RecomputeAll 全量重算关联问题。语料不变时重复调用结果相同，可放心重试。
// @Summary 全量重算关联问题
// @Tags RelatedQuestions
// @Produce json
// @Router /api/related-questions/recompute [post]
func (c *RelatedQuestionController) RecomputeAll(ctx *gin.Context) {
	processed, err := c.relatedService.RecomputeAll()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"processed": processed})
}

// RecomputeOne 重算单条记录的关联列表
// @Summary 单条重算关联问题
// @Tags RelatedQuestions
// @Produce json
// @Param id path string true "问题ID"
// @Router /api/related-questions/{id}/recompute [post]
func (c *RelatedQuestionController) RecomputeOne(ctx *gin.Context) {
	if err := c.relatedService.RecomputeOne(ctx.Param("id")); err != nil {
		if errors.Is(err, util.ErrNotFound) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"recomputed": true})
}
