package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	apperrors "github.com/nexusrag/backend-go/internal/errors"
	"github.com/nexusrag/backend-go/internal/models"
)

// DocumentRepository 文档元数据仓储
type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create 创建文档记录
func (r *DocumentRepository) Create(doc *models.Document) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetByID 根据ID获取文档
func (r *DocumentRepository) GetByID(id string) (*models.Document, error) {
	var doc models.Document
	if err := r.db.First(&doc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("document")
		}
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	return &doc, nil
}

// List 按创建时间倒序列出所有文档
func (r *DocumentRepository) List() ([]models.Document, error) {
	var docs []models.Document
	if err := r.db.Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// ListByStatus 按状态列出文档
func (r *DocumentRepository) ListByStatus(status string) ([]models.Document, error) {
	var docs []models.Document
	if err := r.db.Where("status = ?", status).Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to list documents by status: %w", err)
	}
	return docs, nil
}

// Update 保存整条文档记录
func (r *DocumentRepository) Update(doc *models.Document) error {
	if err := r.db.Save(doc).Error; err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

// UpdateFields 部分更新文档字段
func (r *DocumentRepository) UpdateFields(id string, fields map[string]interface{}) error {
	result := r.db.Model(&models.Document{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update document fields: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("document")
	}
	return nil
}

// Delete 删除文档记录
func (r *DocumentRepository) Delete(id string) error {
	result := r.db.Delete(&models.Document{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("document")
	}
	return nil
}

// CountByStatus 各状态文档数量统计
func (r *DocumentRepository) CountByStatus() (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	if err := r.db.Model(&models.Document{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}
