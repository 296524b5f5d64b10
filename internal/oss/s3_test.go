package oss

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseURI(t *testing.T) {
	bucket, key, err := ParseURI("s3://my-bucket/images/garment.webp")
	if err != nil {
		t.Fatalf("parse uri: %v", err)
	}
	if bucket != "my-bucket" {
		t.Fatalf("bucket = %q", bucket)
	}
	if key != "images/garment.webp" {
		t.Fatalf("key = %q", key)
	}
}

func TestParseURIRejectsInvalid(t *testing.T) {
	invalid := []string{
		"https://my-bucket/images/garment.webp",
		"my-bucket/images/garment.webp",
		"s3://",
		"s3://bucket-without-key",
	}
	for _, uri := range invalid {
		if _, _, err := ParseURI(uri); err == nil {
			t.Fatalf("ParseURI(%q): expected error", uri)
		}
	}
}

func TestDownloadImageRejectsExtensionBeforeNetwork(t *testing.T) {
	// 扩展名校验发生在任何网络调用之前，空客户端即可验证
	c := &S3Client{}
	_, err := c.DownloadImage(context.Background(), "s3://bucket/results/archive.blosc2")
	if err == nil {
		t.Fatal("expected error for non-image extension")
	}
	if !strings.Contains(err.Error(), "invalid image extension") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDownloadFileSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "garment.webp")
	if err := os.WriteFile(existing, []byte("already here"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	// 本地文件已存在：不发起网络调用，直接返回 skipped
	c := &S3Client{}
	localPath, skipped, err := c.DownloadFile(context.Background(), "s3://bucket/path/garment.webp", dir, "")
	if err != nil {
		t.Fatalf("download file: %v", err)
	}
	if !skipped {
		t.Fatal("expected download to be skipped")
	}
	if localPath != existing {
		t.Fatalf("local path = %q, want %q", localPath, existing)
	}
}

func TestDownloadFileRenameKeepsExtension(t *testing.T) {
	dir := t.TempDir()
	renamed := filepath.Join(dir, "input.webp")
	if err := os.WriteFile(renamed, []byte("already here"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	c := &S3Client{}
	localPath, skipped, err := c.DownloadFile(context.Background(), "s3://bucket/path/garment.webp", dir, "input")
	if err != nil {
		t.Fatalf("download file: %v", err)
	}
	if !skipped || localPath != renamed {
		t.Fatalf("got (%q, %v), want (%q, true)", localPath, skipped, renamed)
	}
}
