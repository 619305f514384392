package storage

import (
	"context"
	"io"
)

// ObjectStorage 文档文件存储抽象。
// key为相对存储键,如 "{doc_id}.pdf"。
type ObjectStorage interface {
	// Save 写入对象,size为内容字节数
	Save(ctx context.Context, key string, r io.Reader, size int64) error
	// Open 读取对象,调用方负责Close
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete 删除对象,对象不存在时不报错
	Delete(ctx context.Context, key string) error
}
