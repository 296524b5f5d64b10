// Package imageconv 提供图片表示之间的统一转换：
// 文件路径 / base64 字符串 / 原始字节 / image.Image 互转，
// 传输前统一规范化为 PNG 编码字节。
package imageconv

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"strings"

	// 注册解码器：任务服务与 OSS 中的素材可能是 jpeg/gif/webp/tiff
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ToBytes 将任意受支持的图片表示转换为 PNG 字节。
// 支持的输入类型：
//   - []byte:      视为已编码的图片字节，原样返回
//   - image.Image: 编码为 PNG
//   - string:      存在的文件路径（解码后重编码为 PNG），
//     否则尝试按 base64 解码
func ToBytes(input any) ([]byte, error) {
	switch v := input.(type) {
	case []byte:
		return v, nil
	case image.Image:
		return EncodePNG(v)
	case string:
		if fileExists(v) {
			img, err := loadImageFile(v)
			if err != nil {
				return nil, err
			}
			return EncodePNG(img)
		}
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("string input must be either a valid file path or base64 encoded image")
		}
		return decoded, nil
	case nil:
		return nil, fmt.Errorf("image input is nil")
	default:
		return nil, fmt.Errorf("unsupported image input type: %T", input)
	}
}

// FromBytes 将图片字节解码为 image.Image
func FromBytes(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image bytes: %w", err)
	}
	return img, nil
}

// EncodePNG 将 image.Image 编码为 PNG 字节
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image as PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// FlattenWhite 将带透明通道的图片合成到白色背景上，返回不透明图片。
// 不带透明通道的图片原样返回。
func FlattenWhite(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, image.White, image.Point{}, draw.Src)
	draw.Draw(out, bounds, img, bounds.Min, draw.Over)
	return out
}

// InferMimeTypeFromPath 从文件路径推断 MIME 类型（不区分大小写）
func InferMimeTypeFromPath(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	case strings.HasSuffix(lower, ".tiff"):
		return "image/tiff"
	}
	// 默认返回 png，传输编码统一是 PNG
	return "image/png"
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

// loadImageFile 打开并解码本地图片文件
func loadImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image file %s: %w", path, err)
	}
	return img, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
