package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"tryon-mcp/common"
	"tryon-mcp/internal/imageconv"
	"tryon-mcp/internal/jobclient"
	"tryon-mcp/internal/workflow"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterTryonTools 注册试穿工作流相关的 MCP tools。
//
// 约定工具列表：
//   - run_tryon_workflow        执行完整试穿工作流，返回结果图的 S3 URI
//   - generate_model_image      仅执行模特生成任务，返回 base64 data URI
//   - check_job_server_health   检查某个任务服务的健康状态
func RegisterTryonTools(s *server.MCPServer, cfg *common.Config, flow *workflow.Flow) error {
	// 1. 完整试穿工作流
	runWorkflowTool := mcp.NewTool(
		"run_tryon_workflow",
		mcp.WithDescription("Run the full try-on workflow: pull a garment image from S3, generate a model from a prompt, generate a mask, generate the try-on image, and upload the result to S3. Returns the output S3 URI."),
		mcp.WithString("garment_uri",
			mcp.Required(),
			mcp.Description("S3 URI of the garment image, e.g. s3://bucket/garment.webp"),
		),
		mcp.WithString("model_prompt",
			mcp.Required(),
			mcp.Description("Text prompt describing the model to generate"),
		),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Garment category used by the masking and try-on jobs"),
		),
		mcp.WithString("output_uri",
			mcp.Required(),
			mcp.Description("S3 URI where the try-on result image is uploaded"),
		),
	)

	s.AddTool(runWorkflowTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		garmentURI, err := req.RequireString("garment_uri")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("garment_uri parameter is required: %v", err)), nil
		}
		modelPrompt, err := req.RequireString("model_prompt")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("model_prompt parameter is required: %v", err)), nil
		}
		category, err := req.RequireString("category")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("category parameter is required: %v", err)), nil
		}
		outputURI, err := req.RequireString("output_uri")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("output_uri parameter is required: %v", err)), nil
		}

		common.WithFields(map[string]interface{}{
			"garment_uri":  garmentURI,
			"model_prompt": imageconv.TruncateForLog(modelPrompt, 120),
			"category":     category,
			"output_uri":   outputURI,
		}).Info("MCP: running try-on workflow")

		resultURI, err := flow.Run(ctx, workflow.Params{
			GarmentURI:  garmentURI,
			ModelPrompt: modelPrompt,
			Category:    category,
			OutputURI:   outputURI,
		})
		if err != nil {
			common.WithError(err).Error("MCP: try-on workflow failed")
			return mcp.NewToolResultError(fmt.Sprintf("try-on workflow failed: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Try-on result uploaded to: %s", resultURI)), nil
	})

	// 2. 仅模特生成
	generateModelTool := mcp.NewTool(
		"generate_model_image",
		mcp.WithDescription("Generate a model image from a text prompt using the model-generation job server. Returns a base64 PNG data URI."),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("Text prompt describing the model to generate"),
		),
		mcp.WithNumber("seed",
			mcp.Description("Optional generation seed for reproducible results"),
		),
	)

	s.AddTool(generateModelTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompt, err := req.RequireString("prompt")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("prompt parameter is required: %v", err)), nil
		}

		input := jobclient.Input{"prompt": prompt}
		if seed := req.GetFloat("seed", -1); seed >= 0 {
			input["seed"] = int(seed)
		}

		client, err := newJobClient(cfg, cfg.ModelGeneratorEndpoint, jobclient.ModelGenerationJob)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create job client: %v", err)), nil
		}

		common.WithField("prompt", imageconv.TruncateForLog(prompt, 120)).Info("MCP: generating model image")

		img, err := client.RunJob(ctx, input)
		if err != nil {
			common.WithError(err).Error("MCP: model generation failed")
			return mcp.NewToolResultError(fmt.Sprintf("failed to generate model image: %v", err)), nil
		}

		data, err := imageconv.EncodePNG(img)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode result image: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("data:image/png;base64,%s", base64.StdEncoding.EncodeToString(data))), nil
	})

	// 3. 健康检查
	healthTool := mcp.NewTool(
		"check_job_server_health",
		mcp.WithDescription("Check whether a job server is healthy. Target is one of: model_generator, masking, tryon."),
		mcp.WithString("target",
			mcp.Required(),
			mcp.Description("Which job server to check: model_generator, masking or tryon"),
		),
	)

	s.AddTool(healthTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target, err := req.RequireString("target")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("target parameter is required: %v", err)), nil
		}

		var endpoint string
		var jobType jobclient.JobType
		switch target {
		case "model_generator":
			endpoint, jobType = cfg.ModelGeneratorEndpoint, jobclient.ModelGenerationJob
		case "masking":
			endpoint, jobType = cfg.MaskingEndpoint, jobclient.MaskJob
		case "tryon":
			endpoint, jobType = cfg.TryonEndpoint, jobclient.TryOnJob
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown target: %s", target)), nil
		}

		client, err := newJobClient(cfg, endpoint, jobType)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create job client: %v", err)), nil
		}

		if client.CheckHealth(ctx) {
			return mcp.NewToolResultText(fmt.Sprintf("%s server is healthy (%s)", target, endpoint)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%s server is NOT healthy (%s)", target, endpoint)), nil
	})

	return nil
}

func newJobClient(cfg *common.Config, endpoint string, jobType jobclient.JobType) (*jobclient.Client, error) {
	return jobclient.NewClient(jobclient.NewRegistry(), jobclient.Config{
		ServerURL: endpoint,
		JobType:   jobType,
		Timeout:   time.Duration(cfg.JobTimeoutSeconds) * time.Second,
		Retries:   cfg.JobRetries,
	})
}
