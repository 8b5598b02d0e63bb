package repository

import (
	"context"
	"corpus_qa_backend/internal/model"
	"corpus_qa_backend/internal/util"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

const answerCountCacheKey = "qa:answers:count"

type AnswerRepository struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewAnswerRepository(db *gorm.DB, rdb *redis.Client) *AnswerRepository {
	return &AnswerRepository{
		DB:    db,
		Redis: rdb,
	}
}

func (r *AnswerRepository) Create(rec *model.AnswerRecord) error {
	if err := r.DB.Create(rec).Error; err != nil {
		return err
	}
	// 写入后让缓存的总数失效
	if r.Redis != nil {
		r.Redis.Del(context.Background(), answerCountCacheKey)
	}
	return nil
}

func (r *AnswerRepository) GetByID(id string) (*model.AnswerRecord, error) {
	var rec model.AnswerRecord
	err := r.DB.First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListQuestions 返回整个问题语料（关联问题引擎的输入），按创建时间升序，
// 保证重算的排序稳定性。
func (r *AnswerRepository) ListQuestions() ([]model.Question, error) {
	var rows []struct {
		ID        string
		Question  string
		CreatedAt time.Time
	}
	err := r.DB.Model(&model.AnswerRecord{}).
		Select("id", "question", "created_at").
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	questions := make([]model.Question, len(rows))
	for i, row := range rows {
		questions[i] = model.Question{
			ID:      row.ID,
			Text:    row.Question,
			AskedAt: row.CreatedAt,
		}
	}
	return questions, nil
}

// UpdateRelatedQuestions 只改写关联列表列，其他字段保持不可变。
// 全量重算与单条重算可能并发改写同一行，后写赢（关联关系仅用于导航展示）。
func (r *AnswerRepository) UpdateRelatedQuestions(id string, relatedIDs []string) error {
	result := r.DB.Model(&model.AnswerRecord{}).
		Where("id = ?", id).
		Update("related_question_ids", model.StringList(relatedIDs))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return util.ErrNotFound
	}
	return nil
}

func (r *AnswerRepository) ListRecent(page, limit int) ([]model.AnswerRecord, int64, error) {
	var recs []model.AnswerRecord
	var total int64

	if err := r.DB.Model(&model.AnswerRecord{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.DB.Order("created_at DESC").
		Limit(limit).Offset((page - 1) * limit).
		Find(&recs).Error

	return recs, total, err
}

// CountAnswers 总数走Redis缓存（5分钟TTL），COUNT(*)在大表上开销不小
func (r *AnswerRepository) CountAnswers(ctx context.Context) (int64, error) {
	if r.Redis != nil {
		// 缓存未命中或Redis故障都落库，缓存只是加速不是依赖
		if val, err := r.Redis.Get(ctx, answerCountCacheKey).Result(); err == nil {
			if count, perr := strconv.ParseInt(val, 10, 64); perr == nil {
				return count, nil
			}
		}
	}

	var count int64
	if err := r.DB.Model(&model.AnswerRecord{}).Count(&count).Error; err != nil {
		return 0, err
	}

	if r.Redis != nil {
		r.Redis.Set(ctx, answerCountCacheKey, strconv.FormatInt(count, 10), 5*time.Minute)
	}
	return count, nil
}
