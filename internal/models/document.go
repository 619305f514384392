package models

import (
	"fmt"
	"time"
)

// 文档处理状态
const (
	StatusUploading  = "uploading"
	StatusProcessing = "processing"
	StatusEmbedding  = "embedding"
	StatusIndexed    = "indexed"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// Document 已上传文档的元数据记录
type Document struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)" json:"doc_id"`
	Name         string    `gorm:"type:varchar(512);not null" json:"name"`
	StorageKey   string    `gorm:"type:varchar(1024);not null" json:"-"`
	PageCount    int       `gorm:"default:0" json:"page_count"`
	ChunkCount   int       `gorm:"default:0" json:"chunk_count"`
	SizeBytes    int64     `gorm:"default:0" json:"size_bytes"`
	Status       string    `gorm:"type:varchar(32);index;not null" json:"status"`
	Progress     int       `gorm:"default:0" json:"progress"`
	ErrorMessage string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Document) TableName() string {
	return "documents"
}

// IsTerminal 判断文档是否处于终态
func (d *Document) IsTerminal() bool {
	return d.Status == StatusReady || d.Status == StatusFailed
}

// HumanSize 人类可读的文件大小
func (d *Document) HumanSize() string {
	return FormatSize(d.SizeBytes)
}

// FormatSize 格式化字节数
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// ValidTransitions 状态机允许的迁移
var ValidTransitions = map[string][]string{
	StatusUploading:  {StatusProcessing, StatusFailed},
	// 无可提取文本的文档跳过向量化,processing直接到ready
	StatusProcessing: {StatusEmbedding, StatusReady, StatusFailed},
	StatusEmbedding:  {StatusIndexed, StatusFailed},
	StatusIndexed:    {StatusReady, StatusFailed},
	StatusReady:      {},
	StatusFailed:     {StatusProcessing},
}

// CanTransition 检查状态迁移是否合法
func CanTransition(from, to string) bool {
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
