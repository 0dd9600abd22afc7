package oss

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"genai-studio/common"
	"genai-studio/internal/utils"
)

// NewOSSClientFromConfig 从配置创建 OSS 客户端
func NewOSSClientFromConfig(ctx context.Context, cfg *common.Config) (OSSIface, error) {
	return NewS3Client(ctx, S3Config{
		Endpoint:  cfg.OSSEndpoint,
		Region:    cfg.OSSRegion,
		AccessKey: cfg.OSSAccessKey,
		SecretKey: cfg.OSSSecretKey,
	})
}

// Publisher 把生成结果上传到 OSS 并返回访问地址
type Publisher struct {
	client OSSIface
	bucket string
	now    func() time.Time
}

// NewPublisher 创建结果发布器
func NewPublisher(client OSSIface, bucket string) *Publisher {
	return &Publisher{client: client, bucket: bucket, now: time.Now}
}

// NewPublisherFromConfig 根据配置创建发布器；未启用 url 输出格式时返回 nil
func NewPublisherFromConfig(ctx context.Context, cfg *common.Config) (*Publisher, error) {
	if !cfg.PublishEnabled() {
		return nil, nil
	}
	client, err := NewOSSClientFromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}
	return NewPublisher(client, cfg.OSSBucket), nil
}

// Publish 上传一张结果图片，key 按日期和工作流分目录
func (p *Publisher) Publish(ctx context.Context, workflow string, data []byte, mimeType string) (string, error) {
	key := utils.GenerateImageKey(p.now(), workflow, mimeType)
	url, err := p.client.UploadFileWithURL(ctx, p.bucket, key, bytes.NewReader(data), mimeType)
	if err != nil {
		return "", fmt.Errorf("failed to publish image: %w", err)
	}
	return url, nil
}
