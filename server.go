package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"genai-studio/common"
	"genai-studio/internal/genai/gemini"
	"genai-studio/internal/oss"
	"genai-studio/internal/studio"
	"genai-studio/internal/tools"
	"genai-studio/internal/web"

	"github.com/mark3labs/mcp-go/server"
)

// sweepInterval 清理闲置会话的周期
const sweepInterval = time.Minute

func main() {
	// 加载配置
	config, err := common.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 打印配置信息（隐藏敏感信息）
	common.WithFields(map[string]interface{}{
		"mode":           config.ServerMode,
		"base_url":       config.GenAIBaseURL,
		"edit_model":     config.GenAIEditModelName,
		"generate_model": config.GenAIGenModelName,
		"api_key":        maskAPIKey(config.GenAIAPIKey),
		"image_format":   config.GenAIImageFormat,
	}).Info("Server starting...")

	// 创建 Gemini 客户端
	geminiClient, err := gemini.NewGeminiClientFromConfig(ctx, config)
	if err != nil {
		common.Fatalf("Failed to create Gemini client: %v", err)
	}

	// 结果发布到对象存储是可选的
	var opts []studio.Option
	publisher, err := oss.NewPublisherFromConfig(ctx, config)
	if err != nil {
		common.Fatalf("Failed to create OSS publisher: %v", err)
	}
	if publisher != nil {
		opts = append(opts, studio.WithPublisher(publisher))
		common.WithField("bucket", config.OSSBucket).Info("Publishing results to object storage")
	}

	switch config.ServerMode {
	case common.ServerModeMCP:
		err = serveMCP(geminiClient, opts)
	default:
		err = serveWeb(ctx, config, geminiClient, opts)
	}
	if err != nil {
		common.Fatalf("Server error: %v", err)
	}
	common.Info("Server stopped")
}

// serveWeb 启动浏览器端工作室，每个浏览器会话一组独立的控制器
func serveWeb(ctx context.Context, config *common.Config, client gemini.GenimiIface, opts []studio.Option) error {
	if config.InsecureSessionSecret() {
		common.Warn("SESSION_SECRET is not set, using an insecure development secret")
	}

	registry := studio.NewRegistry(client, opts...)
	defer registry.Close()
	go registry.Run(ctx, sweepInterval, config.SessionIdle())

	srv, err := web.NewServer(registry, web.Config{
		SessionSecret:  config.SessionSecret,
		MaxUploadBytes: int64(config.MaxUploadMB) << 20,
		SecureCookie:   config.SessionSecure,
	})
	if err != nil {
		return fmt.Errorf("failed to create web server: %w", err)
	}
	return srv.ListenAndServe(ctx, config.GetServerAddr())
}

// serveMCP 通过 stdio 暴露三个工作流
func serveMCP(client gemini.GenimiIface, opts []studio.Option) error {
	s := server.NewMCPServer(
		"GenAI Image Studio",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	if err := tools.RegisterStudioTools(s, client, opts...); err != nil {
		return fmt.Errorf("failed to register studio tools: %w", err)
	}

	return server.ServeStdio(s)
}

// maskAPIKey 隐藏 API Key 的敏感部分
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
