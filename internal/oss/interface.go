package oss

import (
	"context"
	"io"
)

// OSSIface OSS 客户端接口
type OSSIface interface {
	// UploadFile 上传文件到 OSS，返回 bucket/key 形式的文件路径
	UploadFile(ctx context.Context, bucket, key string, reader io.Reader, contentType string) (string, error)

	// UploadFileWithURL 上传文件并返回可访问的 URL
	UploadFileWithURL(ctx context.Context, bucket, key string, reader io.Reader, contentType string) (string, error)
}
