package oss

import (
	"context"
	"image"
)

// OSSIface OSS 客户端接口。所有方法以 s3://bucket/key 形式的 URI 定位对象。
type OSSIface interface {
	// DownloadImage 下载图片到内存并验证其有效性
	DownloadImage(ctx context.Context, uri string) (image.Image, error)

	// DownloadFile 下载文件到本地目录。目标文件已存在时跳过下载，
	// 返回 skipped=true。newName 非空时用其替换文件名（保留原扩展名）。
	DownloadFile(ctx context.Context, uri, outputFolder, newName string) (localPath string, skipped bool, err error)

	// UploadImage 将图片编码为 PNG 后上传
	UploadImage(ctx context.Context, img image.Image, uri string) error

	// UploadFile 上传本地文件
	UploadFile(ctx context.Context, localPath, uri string) error
}
