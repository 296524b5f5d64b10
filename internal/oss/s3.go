package oss

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"tryon-mcp/common"
	"tryon-mcp/internal/imageconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// 允许下载为图片的对象扩展名
var imageExtensions = map[string]bool{
	".webp": true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tiff": true,
}

// S3Client S3 兼容的 OSS 客户端实现
type S3Client struct {
	client *s3.Client
}

// S3Config S3 客户端配置
type S3Config struct {
	Endpoint  string // OSS 服务端点，例如：s3.amazonaws.com；为空时使用 AWS 默认
	Region    string // 区域，例如：us-east-1
	AccessKey string // Access Key ID；为空时走默认凭证链
	SecretKey string // Secret Access Key
}

// NewS3Client 创建新的 S3 客户端
func NewS3Client(cfg S3Config) (*S3Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}

	// 显式提供了密钥时使用静态凭证，否则沿用默认凭证链（环境变量 / 配置文件 / IAM）
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// 自定义端点用于兼容其他 OSS 服务
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s", cfg.Endpoint))
		}
	})

	return &S3Client{client: client}, nil
}

// ParseURI 解析 s3://bucket/key 形式的对象 URI
func ParseURI(uri string) (bucket, key string, err error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 URI: %s", uri)
	}
	if parsed.Scheme != "s3" {
		return "", "", fmt.Errorf("invalid S3 URI: %s", uri)
	}

	bucket = parsed.Host
	key = strings.TrimPrefix(parsed.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid S3 URI: %s", uri)
	}
	return bucket, key, nil
}

// DownloadImage 下载图片到内存并验证其有效性
func (c *S3Client) DownloadImage(ctx context.Context, uri string) (image.Image, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	// 先校验扩展名，避免下载非图片对象
	extension := strings.ToLower(filepath.Ext(key))
	if !imageExtensions[extension] {
		return nil, fmt.Errorf("invalid image extension: %s", extension)
	}

	data, err := c.getObject(ctx, bucket, key)
	if err != nil {
		common.WithError(err).WithField("uri", uri).Error("Failed to download image from OSS")
		return nil, err
	}

	// 解码即校验：非法图片在这里报错
	img, err := imageconv.FromBytes(data)
	if err != nil {
		common.WithError(err).WithField("uri", uri).Error("Downloaded object is not a valid image")
		return nil, err
	}

	common.WithFields(map[string]interface{}{
		"uri":  uri,
		"size": len(data),
	}).Info("Downloaded image from OSS")
	return img, nil
}

// DownloadFile 下载文件到本地目录，目标已存在时跳过
func (c *S3Client) DownloadFile(ctx context.Context, uri, outputFolder, newName string) (string, bool, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return "", false, err
	}

	if err := os.MkdirAll(outputFolder, 0755); err != nil {
		return "", false, fmt.Errorf("failed to create output folder: %w", err)
	}

	filename := filepath.Base(key)
	if newName != "" {
		filename = newName + filepath.Ext(key)
	}
	localPath := filepath.Join(outputFolder, filename)

	// 目标文件已存在时不重复下载
	if _, err := os.Stat(localPath); err == nil {
		common.WithField("local_path", localPath).Debug("File already exists, skipping download")
		return localPath, true, nil
	}

	data, err := c.getObject(ctx, bucket, key)
	if err != nil {
		common.WithError(err).WithField("uri", uri).Error("Failed to download file from OSS")
		return localPath, false, err
	}

	if err := os.WriteFile(localPath, data, 0644); err != nil {
		return localPath, false, fmt.Errorf("failed to write %s: %w", localPath, err)
	}

	common.WithFields(map[string]interface{}{
		"uri":        uri,
		"local_path": localPath,
		"size":       len(data),
	}).Info("Downloaded file from OSS")
	return localPath, false, nil
}

// UploadImage 将图片编码为 PNG 后上传
func (c *S3Client) UploadImage(ctx context.Context, img image.Image, uri string) error {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return err
	}

	data, err := imageconv.EncodePNG(img)
	if err != nil {
		return err
	}

	if err := c.putObject(ctx, bucket, key, data, "image/png"); err != nil {
		common.WithError(err).WithField("uri", uri).Error("Failed to upload image to OSS")
		return err
	}

	common.WithFields(map[string]interface{}{
		"uri":  uri,
		"size": len(data),
	}).Info("Uploaded image to OSS")
	return nil
}

// UploadFile 上传本地文件
func (c *S3Client) UploadFile(ctx context.Context, localPath, uri string) error {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", localPath, err)
	}

	contentType := imageconv.InferMimeTypeFromPath(localPath)
	if err := c.putObject(ctx, bucket, key, data, contentType); err != nil {
		common.WithError(err).WithFields(map[string]interface{}{
			"local_path": localPath,
			"uri":        uri,
		}).Error("Failed to upload file to OSS")
		return err
	}

	common.WithFields(map[string]interface{}{
		"local_path": localPath,
		"uri":        uri,
		"size":       len(data),
	}).Info("Uploaded file to OSS")
	return nil
}

func (c *S3Client) getObject(ctx context.Context, bucket, key string) ([]byte, error) {
	output, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func (c *S3Client) putObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s/%s: %w", bucket, key, err)
	}
	return nil
}
