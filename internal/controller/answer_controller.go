package controller

import (
	"corpus_qa_backend/internal/model"
	"corpus_qa_backend/internal/repository"
	"corpus_qa_backend/internal/util"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
)

type AnswerController struct {
	answerRepo *repository.AnswerRepository
}

func NewAnswerController(answerRepo *repository.AnswerRepository) *AnswerController {
	return &AnswerController{answerRepo: answerRepo}
}

// List 分页浏览已回答的问题
// @Summary 答案列表
// @Tags Answers
// @Produce json
// @Router /api/answers [get]
func (c *AnswerController) List(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	recs, total, err := c.answerRepo.ListRecent(page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{
		List:  recs,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// Get 单条答案详情
// @Summary 答案详情
// @Tags Answers
// @Produce json
// @Param id path string true "答案ID"
// @Router /api/answers/{id} [get]
func (c *AnswerController) Get(ctx *gin.Context) {
	rec, err := c.answerRepo.GetByID(ctx.Param("id"))
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, rec)
}

// Count 答案总数（Redis缓存）
// @Summary 答案总数
// @Tags Answers
// @Produce json
// @Router /api/answers/count [get]
func (c *AnswerController) Count(ctx *gin.Context) {
	count, err := c.answerRepo.CountAnswers(ctx.Request.Context())
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"count": count})
}

// Related 解析某条答案的关联问题，供导航展示
// @Summary 关联问题列表
// @Tags Answers
// @Produce json
// @Param id path string true "答案ID"
// @Router /api/answers/{id}/related [get]
func (c *AnswerController) Related(ctx *gin.Context) {
	rec, err := c.answerRepo.GetByID(ctx.Param("id"))
	if err != nil {
		if errors.Is(err, util.ErrNotFound) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	related := make([]model.Question, 0, len(rec.RelatedQuestionIDs))
	for _, id := range rec.RelatedQuestionIDs {
		r, err := c.answerRepo.GetByID(id)
		if err != nil {
			// 关联目标可能已被管理端删除，跳过即可
			continue
		}
		related = append(related, model.Question{ID: r.ID, Text: r.Question, AskedAt: r.CreatedAt})
	}
	util.Success(ctx, related)
}
