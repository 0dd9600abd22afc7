package gemini

import (
	"context"
	"fmt"

	"genai-studio/common"
)

// NewGeminiClientFromConfig 从配置创建 Gemini 客户端
func NewGeminiClientFromConfig(ctx context.Context, cfg *common.Config) (*Client, error) {
	client, err := NewClient(ctx, Config{
		APIKey:            cfg.GenAIAPIKey,
		BaseURL:           cfg.GenAIBaseURL,
		EditModelName:     cfg.GenAIEditModelName,
		GenerateModelName: cfg.GenAIGenModelName,
		Timeout:           cfg.GenAITimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return client, nil
}

// EditModel 图生图使用的模型名称
func (c *Client) EditModel() string {
	return c.editModel
}

// GenerateModel 文生图使用的模型名称
func (c *Client) GenerateModel() string {
	return c.genModel
}
