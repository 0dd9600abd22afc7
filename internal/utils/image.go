package utils

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ResultDataURIPrefix 结果图片统一使用的 data URI 前缀
const ResultDataURIPrefix = "data:image/jpeg;base64,"

// ErrInvalidDataURI data URI 格式错误
var ErrInvalidDataURI = errors.New("invalid data URI")

// ImageInput 一次请求使用的图片：原始字节 + MIME 类型
type ImageInput struct {
	MIMEType string
	Data     []byte
}

// Base64 返回图片内容的 base64 编码
func (i *ImageInput) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// EncodeImage 读取图片内容并确定 MIME 类型。
// declaredType 为上传时声明的类型，缺失时根据内容嗅探；不做大小和格式校验。
func EncodeImage(r io.Reader, declaredType string) (*ImageInput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	mimeType := normalizeMimeType(declaredType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = normalizeMimeType(http.DetectContentType(data))
	}

	return &ImageInput{MIMEType: mimeType, Data: data}, nil
}

// EncodeImageFile 读取 multipart 上传的图片
func EncodeImageFile(fh *multipart.FileHeader) (*ImageInput, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %q: %w", fh.Filename, err)
	}
	defer f.Close()

	return EncodeImage(f, fh.Header.Get("Content-Type"))
}

// ParseDataURI 解析 data:<mime>;base64,<data> 形式的图片
func ParseDataURI(s string) (*ImageInput, error) {
	if !strings.HasPrefix(s, "data:") {
		return nil, ErrInvalidDataURI
	}
	header, body, ok := strings.Cut(s, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, ErrInvalidDataURI
	}

	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 data: %w", err)
	}

	mimeType := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	if mimeType == "" {
		mimeType = normalizeMimeType(http.DetectContentType(data))
	}
	return &ImageInput{MIMEType: mimeType, Data: data}, nil
}

// LoadImage 从 data URI 或 http(s) URL 加载图片
func LoadImage(ctx context.Context, ref string) (*ImageInput, error) {
	switch {
	case strings.HasPrefix(ref, "data:"):
		return ParseDataURI(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		data, mimeType, err := DownloadImageFromURL(ctx, ref)
		if err != nil {
			return nil, err
		}
		return &ImageInput{MIMEType: normalizeMimeType(mimeType), Data: data}, nil
	default:
		return nil, fmt.Errorf("unsupported image reference: expected data URI or http(s) URL")
	}
}

// DataURI 把结果图片包装成可直接渲染的 data URI，内容不做任何转换
func DataURI(data []byte) string {
	return ResultDataURIPrefix + base64.StdEncoding.EncodeToString(data)
}

// DownloadImageFromURL 从 URL 下载图片，返回图片数据和 MIME 类型
func DownloadImageFromURL(ctx context.Context, url string) ([]byte, string, error) {
	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download image: status code %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		// 根据文件扩展名推断 MIME 类型
		mimeType = InferMimeTypeFromURL(url)
	}

	return imageData, mimeType, nil
}

// InferMimeTypeFromURL 从 URL 推断 MIME 类型（不区分大小写）
func InferMimeTypeFromURL(url string) string {
	if len(url) > 4 {
		ext := strings.ToLower(url[len(url)-4:])
		switch ext {
		case ".jpg", "jpeg":
			return "image/jpeg"
		case ".png":
			return "image/png"
		case ".gif":
			return "image/gif"
		case "webp":
			return "image/webp"
		}
	}
	// 默认返回 jpeg
	return "image/jpeg"
}

// normalizeMimeType 去掉参数部分并统一为小写
func normalizeMimeType(v string) string {
	if v == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(v)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return mediaType
}

// GenerateImageKey 生成结果图片的对象存储 key：images/yyyy-MM-dd/{workflow}/{uuid}.ext
func GenerateImageKey(now time.Time, workflow, mimeType string) string {
	return fmt.Sprintf("images/%s/%s/%s%s", now.Format("2006-01-02"), workflow, uuid.NewString(), GetExtensionFromMimeType(mimeType))
}

// GetExtensionFromMimeType 根据 MIME 类型获取文件扩展名（不区分大小写）
func GetExtensionFromMimeType(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	default:
		return ".jpg" // 默认使用 jpg
	}
}

// TruncateForLog 截断长字符串用于日志，避免打印过长内容（如 base64）
func TruncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
