package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"genai-studio/common"
	"genai-studio/internal/utils"

	"google.golang.org/genai"
)

const (
	// 文生图固定参数
	generateImageCount       = 1
	generateImageMIMEType    = "image/jpeg"
	generateImageAspectRatio = "1:1"

	logPromptMax = 200
)

var (
	// ErrNoImageInResponse 响应中没有图片
	ErrNoImageInResponse = errors.New("no image in response")
	// ErrEmptyInstruction 提示词为空
	ErrEmptyInstruction = errors.New("instruction is required")
	// ErrMissingImage 图生图缺少输入图片
	ErrMissingImage = errors.New("image is required")
)

// modelsAPI genai.Models 中本客户端用到的部分，便于测试替换
type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// Client Gemini / Imagen 客户端实现
type Client struct {
	models    modelsAPI
	editModel string
	genModel  string
	timeout   time.Duration
}

// Config Gemini 客户端配置
type Config struct {
	APIKey  string // API Key
	BaseURL string // 自定义 Base URL，如果为空则使用默认值
	// 图生图模型，例如：gemini-2.5-flash-image
	EditModelName string
	// 文生图模型，例如：imagen-4.0-generate-001
	GenerateModelName string
	// 单次请求超时时间，0 表示不设置
	Timeout time.Duration
}

// NewClient 创建新的 Gemini 客户端
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return newClientWithModels(client.Models, cfg), nil
}

// newClientWithModels 使用给定的 Models 实现构建客户端，补全默认模型
func newClientWithModels(models modelsAPI, cfg Config) *Client {
	editModel := cfg.EditModelName
	if editModel == "" {
		editModel = common.DefaultEditModelName
	}
	genModel := cfg.GenerateModelName
	if genModel == "" {
		genModel = common.DefaultGenModelName
	}

	return &Client{
		models:    models,
		editModel: editModel,
		genModel:  genModel,
		timeout:   cfg.Timeout,
	}
}

// withTimeout 配置了超时时间时为本次请求设置截止时间
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// EditImage 图片 + 指令 → 图片，返回第一张内联图片的原始字节
func (c *Client) EditImage(ctx context.Context, image *utils.ImageInput, instruction string) ([]byte, error) {
	if image == nil || len(image.Data) == 0 {
		return nil, ErrMissingImage
	}
	if strings.TrimSpace(instruction) == "" {
		return nil, ErrEmptyInstruction
	}

	fields := map[string]interface{}{
		"model":     c.editModel,
		"prompt":    utils.TruncateForLog(instruction, logPromptMax),
		"mime_type": image.MIMEType,
		"size":      len(image.Data),
	}
	common.WithFields(fields).Debug("Starting image editing")

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	// 图片在前，指令在后
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			{
				InlineData: &genai.Blob{
					Data:     image.Data,
					MIMEType: image.MIMEType,
				},
			},
			genai.NewPartFromText(instruction),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityImage)},
	}

	result, err := c.models.GenerateContent(ctx, c.editModel, contents, config)
	if err != nil {
		common.WithError(err).WithFields(fields).Error("Failed to edit image from Gemini API")
		return nil, fmt.Errorf("failed to edit image: %w", err)
	}

	data, mimeType := firstInlineImage(result)
	if data == nil {
		common.WithFields(fields).Error("No image data found in Gemini response")
		return nil, ErrNoImageInResponse
	}

	common.WithFields(map[string]interface{}{
		"model":     c.editModel,
		"mime_type": mimeType,
		"size":      len(data),
	}).Debug("Image edited successfully")

	return data, nil
}

// firstInlineImage 在第一个候选结果中查找第一段内联图片
func firstInlineImage(result *genai.GenerateContentResponse) ([]byte, string) {
	if result == nil || len(result.Candidates) == 0 {
		return nil, ""
	}
	candidate := result.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return nil, ""
	}
	for _, part := range candidate.Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data, part.InlineData.MIMEType
		}
	}
	return nil, ""
}

// GenerateImage 文生图：请求一张 1:1 的 JPEG，返回图片原始字节
func (c *Client) GenerateImage(ctx context.Context, instruction string) ([]byte, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, ErrEmptyInstruction
	}

	fields := map[string]interface{}{
		"model":  c.genModel,
		"prompt": utils.TruncateForLog(instruction, logPromptMax),
	}
	common.WithFields(fields).Debug("Starting image generation")

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	config := &genai.GenerateImagesConfig{
		NumberOfImages: generateImageCount,
		OutputMIMEType: generateImageMIMEType,
		AspectRatio:    generateImageAspectRatio,
	}

	result, err := c.models.GenerateImages(ctx, c.genModel, instruction, config)
	if err != nil {
		common.WithError(err).WithFields(fields).Error("Failed to generate image from Imagen API")
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}

	// 服务端可能因安全过滤返回空列表
	if result == nil || len(result.GeneratedImages) == 0 {
		common.WithFields(fields).Error("Imagen response contains no generated images")
		return nil, ErrNoImageInResponse
	}
	generated := result.GeneratedImages[0]
	if generated == nil || generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
		entry := common.WithFields(fields)
		if generated != nil && generated.RAIFilteredReason != "" {
			entry = entry.WithField("rai_filtered_reason", generated.RAIFilteredReason)
		}
		entry.Error("Imagen response contains an empty image")
		return nil, ErrNoImageInResponse
	}

	common.WithFields(map[string]interface{}{
		"model":     c.genModel,
		"mime_type": generated.Image.MIMEType,
		"size":      len(generated.Image.ImageBytes),
	}).Debug("Image generated successfully")

	return generated.Image.ImageBytes, nil
}
