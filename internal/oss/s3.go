package oss

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"genai-studio/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const uploadTimeout = 60 * time.Second

// S3Client S3 兼容的 OSS 客户端实现
type S3Client struct {
	client   *s3.Client
	endpoint string
	region   string
}

// S3Config S3 客户端配置
type S3Config struct {
	Endpoint  string // OSS 服务端点，例如：s3.amazonaws.com 或 oss-cn-hangzhou.aliyuncs.com
	Region    string // 区域，例如：us-east-1 或 cn-hangzhou
	AccessKey string // Access Key ID
	SecretKey string // Secret Access Key
}

// NewS3Client 创建新的 S3 客户端
func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	// 未配置静态密钥时走默认凭证链（环境变量、实例角色等）
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s", cfg.Endpoint))
		}
	})

	return &S3Client{
		client:   client,
		endpoint: cfg.Endpoint,
		region:   cfg.Region,
	}, nil
}

// UploadFile 上传文件到 OSS
func (c *S3Client) UploadFile(ctx context.Context, bucket, key string, reader io.Reader, contentType string) (string, error) {
	fields := map[string]interface{}{
		"bucket":       bucket,
		"key":          key,
		"content_type": contentType,
	}
	common.WithFields(fields).Debug("Starting file upload to OSS")

	body, err := io.ReadAll(reader)
	if err != nil {
		common.WithError(err).WithFields(fields).Error("Failed to read file for upload")
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	// 阿里云 OSS 不支持 SDK PutObject 默认的 aws-chunked 编码，改用预签名 PUT
	if isAliyunEndpoint(c.endpoint) {
		err = c.putViaPresignedURL(ctx, bucket, key, body, contentType)
	} else {
		_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String(contentType),
		})
	}
	if err != nil {
		common.WithError(err).WithFields(fields).Error("Failed to upload file to OSS")
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	filePath := fmt.Sprintf("%s/%s", bucket, key)
	common.WithFields(map[string]interface{}{
		"file_path": filePath,
		"size":      len(body),
	}).Info("File uploaded to OSS successfully")

	return filePath, nil
}

// putViaPresignedURL 预签名 PUT URL + 原生 HTTP 上传（标准 Content-Length）
func (c *S3Client) putViaPresignedURL(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	reqCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	presigned, err := s3.NewPresignClient(c.client).PresignPutObject(reqCtx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to presign PUT URL: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPut, presigned.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	for k, v := range presigned.SignedHeader {
		for _, hv := range v {
			req.Header.Add(k, hv)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := (&http.Client{Timeout: uploadTimeout}).Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload file via presigned PUT: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("OSS upload failed: status code %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// UploadFileWithURL 上传文件并返回对象的公开 URL（不带签名）
func (c *S3Client) UploadFileWithURL(ctx context.Context, bucket, key string, reader io.Reader, contentType string) (string, error) {
	if _, err := c.UploadFile(ctx, bucket, key, reader, contentType); err != nil {
		return "", err
	}
	return buildObjectURL(c.endpoint, c.region, bucket, key), nil
}

// buildObjectURL 构造对象的公开 URL
func buildObjectURL(endpoint, region, bucket, key string) string {
	// 优先使用自定义 endpoint（例如：oss-cn-beijing.aliyuncs.com）
	if endpoint != "" {
		return fmt.Sprintf("https://%s.%s/%s", bucket, endpoint, key)
	}
	if region != "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key)
}

func isAliyunEndpoint(endpoint string) bool {
	return strings.Contains(endpoint, ".aliyuncs.com")
}
