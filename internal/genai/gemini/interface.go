package gemini

import (
	"context"

	"genai-studio/internal/utils"
)

// GenimiIface 图片生成服务接口
type GenimiIface interface {
	// EditImage 图 + 文 → 图（商品效果图合成与图片编辑共用）
	EditImage(ctx context.Context, image *utils.ImageInput, instruction string) ([]byte, error)
	// GenerateImage 文 → 图，固定生成一张 1:1 的 JPEG
	GenerateImage(ctx context.Context, instruction string) ([]byte, error)
}
