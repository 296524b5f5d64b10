// Package jobclient 实现对远程推理任务服务的通用分发客户端。
//
// 协议约定：
//   - POST {server_url}/run_job，multipart/form-data，图片作为命名文件附件，
//     非图片参数序列化为单个 generation_data JSON 表单字段
//   - 成功响应为 {"result": "<base64 PNG>"}
//   - 失败响应为可选的 {"error": "...", "stack_trace": "..."}
//   - GET {server_url}/health 用于旁路健康检查
package jobclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"tryon-mcp/common"
)

const (
	// 默认任务请求超时时间（推理任务可能长达数分钟）
	defaultJobTimeout = 600 * time.Second
	// 默认重试次数与固定重试间隔
	defaultRetries    = 3
	defaultRetryDelay = 2 * time.Second
	// 健康检查超时时间
	healthTimeout = 5 * time.Second

	runJobPath = "/run_job"
	healthPath = "/health"
)

// Client 任务分发客户端。一个实例绑定一个服务端点和一种任务类型，
// 编解码策略在创建时解析一次。所有调用状态均为调用局部，
// 实例可安全地被多次复用。
type Client struct {
	httpClient *http.Client

	serverURL  string
	jobType    JobType
	strategy   strategy
	retries    int
	retryDelay time.Duration
	timeout    time.Duration
}

// Config 任务客户端配置
type Config struct {
	// ServerURL 任务服务地址，例如 http://10.0.0.1:8000
	ServerURL string
	// JobType 任务类型，必须在 Registry 中注册
	JobType JobType

	// Timeout 单次请求的整体超时时间，默认 600s
	Timeout time.Duration
	// Retries 重试次数预算，默认 3
	Retries int
	// RetryDelay 两次尝试之间的固定等待时间，默认 2s
	RetryDelay time.Duration

	// 可选：自定义 HTTP 客户端（测试用）
	HTTPClient *http.Client
}

// NewClient 创建任务客户端。未知的任务类型在此处立即失败，
// 不会产生任何网络活动。
func NewClient(registry Registry, cfg Config) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("job server URL is required")
	}

	st, ok := registry[cfg.JobType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJobType, cfg.JobType)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	return &Client{
		httpClient: httpClient,
		serverURL:  cfg.ServerURL,
		jobType:    cfg.JobType,
		strategy:   st,
		retries:    retries,
		retryDelay: retryDelay,
		timeout:    timeout,
	}, nil
}

// RunJob 编码输入、发送任务并解码结果图片。
//
// 输入校验失败（缺少必需字段）立即返回，不进入重试循环；
// 传输失败、非 200 响应和结果解码失败在重试预算内按固定间隔重试，
// 预算耗尽后返回最后一次观察到的错误。
//
// 编码是纯函数且输入不变，故在循环外只执行一次；每次尝试重新构造
// multipart 请求体（reader 只能消费一次）。
func (c *Client) RunJob(ctx context.Context, input Input) (image.Image, error) {
	start := time.Now()

	// 编码输入；ValidationError 在任何网络活动之前直接上抛
	payload, err := c.strategy.encode(input)
	if err != nil {
		common.WithError(err).WithField("job_type", c.jobType).Error("Failed to encode job input")
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		common.WithFields(map[string]interface{}{
			"job_type": c.jobType,
			"attempt":  attempt,
		}).Info("Sending request...")

		resultImg, err := c.attempt(ctx, payload)
		if err == nil {
			common.WithFields(map[string]interface{}{
				"job_type": c.jobType,
				"attempt":  attempt,
				"elapsed":  time.Since(start).Seconds(),
			}).Info("Time taken to run the job")
			return resultImg, nil
		}

		lastErr = err
		common.WithError(err).WithFields(map[string]interface{}{
			"job_type": c.jobType,
			"attempt":  attempt,
		}).Errorf("Attempt %d failed", attempt)

		if attempt < c.retries {
			common.Info("Retrying...")
			if !sleepContext(ctx, c.retryDelay) {
				// 上下文被取消，不再继续尝试
				return nil, lastErr
			}
		}
	}

	common.WithField("job_type", c.jobType).Error("All retry attempts failed.")
	return nil, lastErr
}

// CheckHealth 旁路健康检查：GET {server_url}/health，5 秒超时。
// 仅当返回 200 时为健康；任何错误（包括超时）都返回 false，从不上抛。
func (c *Client) CheckHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+healthPath, nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// JobType 返回客户端绑定的任务类型
func (c *Client) JobType() JobType {
	return c.jobType
}

// attempt 执行一次 发送 → 校验 → 解码 流程
func (c *Client) attempt(ctx context.Context, payload *Payload) (image.Image, error) {
	body, contentType, err := buildMultipartBody(payload)
	if err != nil {
		return nil, err
	}

	// 为单次请求设置超时
	var cancel context.CancelFunc
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+runJobPath, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	if serverErr := classifyResponse(resp.StatusCode, respBody); serverErr != nil {
		return nil, serverErr
	}

	return c.strategy.decode(respBody)
}

// buildMultipartBody 将载荷构造为 multipart/form-data 请求体。
// 附件槽位始终写入，即使内容为空（可选蒙版的情况）。
func buildMultipartBody(payload *Payload) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, file := range payload.Files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="%s"; filename="%s"`, file.Field, file.Filename))
		header.Set("Content-Type", file.ContentType)

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create multipart part %s: %w", file.Field, err)
		}
		if len(file.Content) > 0 {
			if _, err := part.Write(file.Content); err != nil {
				return nil, "", fmt.Errorf("failed to write multipart part %s: %w", file.Field, err)
			}
		}
	}

	if payload.GenerationData != nil {
		data, err := json.Marshal(payload.GenerationData)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal generation_data: %w", err)
		}
		if err := writer.WriteField("generation_data", string(data)); err != nil {
			return nil, "", fmt.Errorf("failed to write generation_data field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}

// classifyResponse 将响应分类为成功（返回 nil）或 ServerError。
// 失败响应体按 JSON 尽力解析出 error / stack_trace 字段；
// 解析失败时用原始文本作为错误信息，本函数自身从不失败。
func classifyResponse(statusCode int, body []byte) *ServerError {
	if statusCode == http.StatusOK {
		return nil
	}

	var envelope struct {
		Error      string `json:"error"`
		StackTrace string `json:"stack_trace"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		common.WithField("status_code", statusCode).Errorf("Raw server response: %s", string(body))
		return &ServerError{
			StatusCode: statusCode,
			Message:    string(body),
		}
	}

	message := envelope.Error
	if message == "" {
		message = "Unknown error"
	}
	common.WithField("status_code", statusCode).Errorf("Error: %s", message)
	if envelope.StackTrace != "" {
		common.Error("--- Server Stack Trace ---")
		common.Error(envelope.StackTrace)
	}

	return &ServerError{
		StatusCode: statusCode,
		Message:    message,
		StackTrace: envelope.StackTrace,
	}
}

// sleepContext 等待固定间隔，上下文取消时提前返回 false
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
