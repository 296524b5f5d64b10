package main

import (
	"fmt"
	"log"
	"os"

	"tryon-mcp/common"
	"tryon-mcp/internal/oss"
	"tryon-mcp/internal/tools"
	"tryon-mcp/internal/workflow"

	"github.com/mark3labs/mcp-go/server"
)

func main() {
	// 加载配置
	config, err := common.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 打印配置信息（隐藏敏感信息）
	fmt.Fprintf(os.Stderr, "Server starting...\n")
	fmt.Fprintf(os.Stderr, "Model generator endpoint: %s\n", config.ModelGeneratorEndpoint)
	fmt.Fprintf(os.Stderr, "Masking endpoint: %s\n", config.MaskingEndpoint)
	fmt.Fprintf(os.Stderr, "Try-on endpoint: %s\n", config.TryonEndpoint)
	fmt.Fprintf(os.Stderr, "OSS access key: %s\n", maskSecret(config.OSSAccessKey))

	// 创建 OSS 客户端
	ossClient, err := oss.NewOSSClientFromConfig(config)
	if err != nil {
		log.Fatalf("Failed to create OSS client: %v", err)
	}

	// 创建试穿工作流
	flow := workflow.NewFlow(config, ossClient)

	// 创建 MCP 服务器
	s := server.NewMCPServer(
		"Try-on Workflow MCP Server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	// 注册试穿 tools
	if err := tools.RegisterTryonTools(s, config, flow); err != nil {
		log.Fatalf("Failed to register try-on tools: %v", err)
	}

	// 启动 stdio 服务器
	if err := server.ServeStdio(s); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// maskSecret 隐藏敏感配置的中间部分
func maskSecret(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
