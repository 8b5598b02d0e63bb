package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SourceDocument 检索能力返回的来源文档，持久化时冗余嵌入答案记录（不可变）
type SourceDocument struct {
	ContentSnippet string         `json:"contentSnippet"`
	Metadata       SourceMetadata `json:"metadata"`
}

type SourceMetadata struct {
	Title     string  `json:"title"`
	SourceURL string  `json:"sourceUrl,omitempty"`
	Library   string  `json:"library"`
	MediaType string  `json:"mediaType"`
	StartTime float64 `json:"startTime,omitempty"`
	EndTime   float64 `json:"endTime,omitempty"`
}

// SourceDocumentList 以JSON列形式存储来源文档
type SourceDocumentList []SourceDocument

func (l SourceDocumentList) Value() (driver.Value, error) {
	if l == nil {
		l = SourceDocumentList{}
	}
	return json.Marshal(l)
}

func (l *SourceDocumentList) Scan(value interface{}) error {
	if value == nil {
		*l = SourceDocumentList{}
		return nil
	}
	data, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			data = []byte(s)
		} else {
			return fmt.Errorf("unsupported type %T for SourceDocumentList", value)
		}
	}
	return json.Unmarshal(data, l)
}

// StringList JSON列：媒体类型选择、关联问题ID等
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	data, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			data = []byte(s)
		} else {
			return fmt.Errorf("unsupported type %T for StringList", value)
		}
	}
	return json.Unmarshal(data, l)
}

// AnswerRecord 一次完成的（非私密）问答交换。问题文本一经持久化不可变；
// RelatedQuestionIDs 由关联问题引擎事后重算写回。
type AnswerRecord struct {
	ID                 string             `gorm:"primaryKey;size:36" json:"id"`
	Question           string             `gorm:"type:text;not null" json:"question"`
	AnswerText         string             `gorm:"type:longtext;not null" json:"answer"`
	SourceDocuments    SourceDocumentList `gorm:"type:json" json:"sourceDocuments"`
	CollectionTag      string             `gorm:"size:50;index" json:"collection"`
	MediaTypeFilters   StringList         `gorm:"type:json" json:"mediaTypes"`
	ClientIdentifier   string             `gorm:"size:100;index" json:"clientId"`
	RelatedQuestionIDs StringList         `gorm:"type:json" json:"relatedQuestionIds"`
	CreatedAt          time.Time          `gorm:"index" json:"createdAt"`
}

func (AnswerRecord) TableName() string {
	return "answer_records"
}

// Question 问题投影：关联问题引擎的语料单元。答案记录即问题语料，
// 这里只取引擎需要的列。
type Question struct {
	ID      string    `json:"id"`
	Text    string    `json:"text"`
	AskedAt time.Time `json:"askedAt"`
}
