package imageconv

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))
	img.Set(0, 0, color.RGBA{R: 200, G: 10, B: 30, A: 255})
	img.Set(2, 2, color.RGBA{R: 5, G: 100, B: 250, A: 255})
	return img
}

func TestToBytesPassthrough(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	got, err := ToBytes(raw)
	if err != nil {
		t.Fatalf("to bytes: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Fatalf("bytes input should pass through unchanged")
	}
}

func TestToBytesFromImage(t *testing.T) {
	data, err := ToBytes(testImage())
	if err != nil {
		t.Fatalf("to bytes: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("output is not valid PNG: %v", err)
	}
}

func TestToBytesFromFilePath(t *testing.T) {
	pngBytes, err := EncodePNG(testImage())
	if err != nil {
		t.Fatalf("encode png: %v", err)
	}
	path := filepath.Join(t.TempDir(), "model.png")
	if err := os.WriteFile(path, pngBytes, 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	data, err := ToBytes(path)
	if err != nil {
		t.Fatalf("to bytes: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("output is not valid PNG: %v", err)
	}
}

func TestToBytesFromBase64String(t *testing.T) {
	pngBytes, err := EncodePNG(testImage())
	if err != nil {
		t.Fatalf("encode png: %v", err)
	}
	encoded := base64.StdEncoding.EncodeToString(pngBytes)

	data, err := ToBytes(encoded)
	if err != nil {
		t.Fatalf("to bytes: %v", err)
	}
	if !bytes.Equal(data, pngBytes) {
		t.Fatal("base64 input should decode to the original bytes")
	}
}

func TestToBytesRejectsBadInputs(t *testing.T) {
	if _, err := ToBytes("/no/such/file-and-not-base64!"); err == nil {
		t.Fatal("expected error for a string that is neither a file nor base64")
	}
	if _, err := ToBytes(42); err == nil {
		t.Fatal("expected error for unsupported input type")
	}
	if _, err := ToBytes(nil); err == nil {
		t.Fatal("expected error for nil input")
	}
}

func TestFromBytesRoundTrip(t *testing.T) {
	original := testImage()
	data, err := EncodePNG(original)
	if err != nil {
		t.Fatalf("encode png: %v", err)
	}

	decoded, err := FromBytes(data)
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	if decoded.Bounds() != original.Bounds() {
		t.Fatalf("bounds = %v, want %v", decoded.Bounds(), original.Bounds())
	}

	if _, err := FromBytes([]byte("not an image")); err == nil {
		t.Fatal("expected error for invalid image bytes")
	}
}

func TestFlattenWhite(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	// (1,0) 保持完全透明

	flat := FlattenWhite(img)

	r, g, b, a := flat.At(1, 0).RGBA()
	if a != 0xffff {
		t.Fatalf("flattened image should be opaque, alpha = %d", a)
	}
	if r != 0xffff || g != 0xffff || b != 0xffff {
		t.Fatalf("transparent pixel should become white, got (%d,%d,%d)", r, g, b)
	}

	r, _, _, _ = flat.At(0, 0).RGBA()
	if r != 0xffff {
		t.Fatalf("opaque red pixel should keep its red channel, got %d", r)
	}
}

func TestInferMimeTypeFromPath(t *testing.T) {
	cases := map[string]string{
		"a/b/model.PNG": "image/png",
		"garment.webp":  "image/webp",
		"photo.JPEG":    "image/jpeg",
		"scan.tiff":     "image/tiff",
		"no-extension":  "image/png",
		"animation.gif": "image/gif",
		"picture.jpg":   "image/jpeg",
	}
	for path, want := range cases {
		if got := InferMimeTypeFromPath(path); got != want {
			t.Fatalf("InferMimeTypeFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestTruncateForLog(t *testing.T) {
	if got := TruncateForLog("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := TruncateForLog("a very long base64 string", 10); got != "a very ..." {
		t.Fatalf("got %q", got)
	}
}
