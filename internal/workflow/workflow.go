// Package workflow 定义试穿工作流：从服装图与模特描述出发，
// 依次调用模型生成、蒙版生成、试穿三个任务服务，并将结果上传到 OSS。
//
// 服装图拉取与模特生成并行执行，蒙版与试穿依赖前序结果，顺序执行。
// 每个步骤有独立的重试预算（固定间隔），整个工作流受统一的超时约束。
package workflow

import (
	"context"
	"fmt"
	"image"
	"time"

	"tryon-mcp/common"
	"tryon-mcp/internal/jobclient"
	"tryon-mcp/internal/oss"
)

const (
	// 单个步骤的默认重试次数与固定重试间隔
	defaultTaskRetries = 3
	defaultTaskDelay   = 10 * time.Second
	// 上传步骤的重试次数
	uploadRetries = 2
)

// Params 一次试穿工作流的输入
type Params struct {
	GarmentURI  string // 服装图的 S3 URI
	ModelPrompt string // 模特生成提示词
	Category    string // 服装类别（蒙版与试穿任务共用）
	OutputURI   string // 结果图的 S3 输出 URI
}

// Flow 试穿工作流。一个实例可顺序执行多次。
type Flow struct {
	cfg      *common.Config
	oss      oss.OSSIface
	registry jobclient.Registry

	taskRetries int
	taskDelay   time.Duration
}

// NewFlow 创建试穿工作流
func NewFlow(cfg *common.Config, ossClient oss.OSSIface) *Flow {
	return &Flow{
		cfg:         cfg,
		oss:         ossClient,
		registry:    jobclient.NewRegistry(),
		taskRetries: defaultTaskRetries,
		taskDelay:   defaultTaskDelay,
	}
}

// Run 执行工作流，成功时返回结果图的输出 URI
func (f *Flow) Run(ctx context.Context, params Params) (string, error) {
	flowTimeout := time.Duration(f.cfg.FlowTimeoutSeconds) * time.Second
	if flowTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flowTimeout)
		defer cancel()
	}

	common.WithFields(map[string]interface{}{
		"garment_uri": params.GarmentURI,
		"category":    params.Category,
		"output_uri":  params.OutputURI,
	}).Info("Starting try-on workflow")

	// 服装图拉取与模特生成互不依赖，并行执行
	garmentFuture := submit(ctx, func(ctx context.Context) (image.Image, error) {
		return f.pullGarmentImage(ctx, params.GarmentURI)
	})
	modelFuture := submit(ctx, func(ctx context.Context) (image.Image, error) {
		return f.generateModel(ctx, params.ModelPrompt)
	})

	garmentImage, err := garmentFuture.result()
	if err != nil {
		return "", err
	}
	modelImage, err := modelFuture.result()
	if err != nil {
		return "", err
	}

	// 蒙版生成与试穿依赖前序结果，顺序执行
	maskImage, err := f.generateMask(ctx, modelImage, params.Category)
	if err != nil {
		return "", err
	}

	tryonImage, err := f.generateTryOn(ctx, modelImage, maskImage, garmentImage, params.Category)
	if err != nil {
		return "", err
	}

	if err := f.pushTryOn(ctx, tryonImage, params.OutputURI); err != nil {
		return "", err
	}

	common.WithField("output_uri", params.OutputURI).Info("Try-on workflow completed")
	return params.OutputURI, nil
}

// pullGarmentImage 从 OSS 拉取服装图
func (f *Flow) pullGarmentImage(ctx context.Context, garmentURI string) (image.Image, error) {
	return runTask(ctx, "pull-garment-image", f.taskRetries, f.taskDelay, func(ctx context.Context) (image.Image, error) {
		img, err := f.oss.DownloadImage(ctx, garmentURI)
		if err != nil {
			return nil, fmt.Errorf("failed to download garment image from %s: %w", garmentURI, err)
		}
		return img, nil
	})
}

// generateModel 根据提示词生成模特图
func (f *Flow) generateModel(ctx context.Context, prompt string) (image.Image, error) {
	client, err := f.newJobClient(f.cfg.ModelGeneratorEndpoint, jobclient.ModelGenerationJob)
	if err != nil {
		return nil, err
	}

	return runTask(ctx, "generate-model", f.taskRetries, f.taskDelay, func(ctx context.Context) (image.Image, error) {
		return client.RunJob(ctx, jobclient.Input{"prompt": prompt})
	})
}

// generateMask 根据模特图与服装类别生成蒙版
func (f *Flow) generateMask(ctx context.Context, model image.Image, category string) (image.Image, error) {
	client, err := f.newJobClient(f.cfg.MaskingEndpoint, jobclient.MaskJob)
	if err != nil {
		return nil, err
	}

	return runTask(ctx, "generate-mask", f.taskRetries, f.taskDelay, func(ctx context.Context) (image.Image, error) {
		return client.RunJob(ctx, jobclient.Input{
			"model_img": model,
			"category":  category,
		})
	})
}

// generateTryOn 根据模特图、蒙版、服装图与类别生成试穿图
func (f *Flow) generateTryOn(ctx context.Context, model, mask, garment image.Image, category string) (image.Image, error) {
	client, err := f.newJobClient(f.cfg.TryonEndpoint, jobclient.TryOnJob)
	if err != nil {
		return nil, err
	}

	return runTask(ctx, "generate-tryon", f.taskRetries, f.taskDelay, func(ctx context.Context) (image.Image, error) {
		return client.RunJob(ctx, jobclient.Input{
			"model_img": model,
			"mask_img":  mask,
			"cloth_img": garment,
			"category":  category,
		})
	})
}

// pushTryOn 上传试穿结果图
func (f *Flow) pushTryOn(ctx context.Context, tryonImage image.Image, outputURI string) error {
	_, err := runTask(ctx, "push-tryon-to-oss", uploadRetries, f.taskDelay, func(ctx context.Context) (struct{}, error) {
		if err := f.oss.UploadImage(ctx, tryonImage, outputURI); err != nil {
			return struct{}{}, fmt.Errorf("failed to upload try-on image: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

func (f *Flow) newJobClient(endpoint string, jobType jobclient.JobType) (*jobclient.Client, error) {
	return jobclient.NewClient(f.registry, jobclient.Config{
		ServerURL: endpoint,
		JobType:   jobType,
		Timeout:   time.Duration(f.cfg.JobTimeoutSeconds) * time.Second,
		Retries:   f.cfg.JobRetries,
	})
}

// runTask 以固定间隔重试执行单个工作流步骤
func runTask[T any](ctx context.Context, name string, retries int, delay time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= retries; attempt++ {
		common.WithFields(map[string]interface{}{
			"task":    name,
			"attempt": attempt,
		}).Info("Running task")

		value, err := fn(ctx)
		if err == nil {
			common.WithField("task", name).Info("Task completed")
			return value, nil
		}

		lastErr = err
		common.WithError(err).WithFields(map[string]interface{}{
			"task":    name,
			"attempt": attempt,
		}).Error("Task attempt failed")

		if attempt < retries {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, fmt.Errorf("task %s aborted: %w", name, ctx.Err())
			case <-timer.C:
			}
		}
	}

	return zero, fmt.Errorf("task %s failed after %d attempts: %w", name, retries, lastErr)
}

// future 并行步骤的结果占位
type future[T any] struct {
	ch chan taskResult[T]
}

type taskResult[T any] struct {
	value T
	err   error
}

// submit 在新 goroutine 中执行步骤，返回 future
func submit[T any](ctx context.Context, fn func(context.Context) (T, error)) *future[T] {
	f := &future[T]{ch: make(chan taskResult[T], 1)}
	go func() {
		value, err := fn(ctx)
		f.ch <- taskResult[T]{value: value, err: err}
	}()
	return f
}

// result 阻塞等待步骤完成
func (f *future[T]) result() (T, error) {
	r := <-f.ch
	return r.value, r.err
}
