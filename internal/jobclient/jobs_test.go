package jobclient

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"testing"

	"tryon-mcp/internal/imageconv"
)

// testImage 构造一张带内容的小图
func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 2, color.RGBA{G: 255, A: 255})
	img.Set(3, 3, color.RGBA{B: 255, A: 255})
	return img
}

func TestEncodeMissingRequiredField(t *testing.T) {
	registry := NewRegistry()

	// 每种任务类型依次去掉一个必需字段，编码必须报出该字段
	cases := []struct {
		jobType  JobType
		complete Input
	}{
		{FaceJob, Input{"model_img": testImage(), "generation_type": "inpaint", "inpaint_params": map[string]any{"strength": 0.8}, "prompt": "a model"}},
		{MaskJob, Input{"category": "upper_body", "model_img": testImage()}},
		{TryOnJob, Input{"category": "upper_body", "model_img": testImage(), "cloth_img": testImage(), "mask_img": testImage()}},
		{HandsFixJob, Input{"model_img": testImage()}},
		{RetouchJob, Input{"model_img": testImage()}},
		{ModelGenerationJob, Input{"prompt": "a model"}},
	}

	for _, tc := range cases {
		for missing := range tc.complete {
			input := Input{}
			for k, v := range tc.complete {
				if k != missing {
					input[k] = v
				}
			}

			_, err := registry[tc.jobType].encode(input)
			if err == nil {
				t.Fatalf("%s: expected error when %q is missing", tc.jobType, missing)
			}

			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("%s: expected ValidationError, got %T: %v", tc.jobType, err, err)
			}
			if validationErr.Field != missing {
				t.Fatalf("%s: error names field %q, want %q", tc.jobType, validationErr.Field, missing)
			}
		}
	}
}

func TestEncodeCompleteInputs(t *testing.T) {
	registry := NewRegistry()

	payload, err := registry[FaceJob].encode(Input{
		"model_img":       testImage(),
		"generation_type": "inpaint",
		"inpaint_params":  map[string]any{"strength": 0.8},
		"prompt":          "a model",
	})
	if err != nil {
		t.Fatalf("encode face job: %v", err)
	}
	if len(payload.Files) != 1 || payload.Files[0].Field != "model_img_buffer" {
		t.Fatalf("face job files = %+v, want single model_img_buffer", payload.Files)
	}
	if payload.Files[0].Filename != "model.png" || payload.Files[0].ContentType != "image/png" {
		t.Fatalf("face job file part = %+v", payload.Files[0])
	}
	for _, key := range []string{"inpaint_params", "generation_type", "prompt"} {
		if _, ok := payload.GenerationData[key]; !ok {
			t.Fatalf("face job generation_data is missing %q", key)
		}
	}
}

func TestEncodeTryOnNilMask(t *testing.T) {
	registry := NewRegistry()

	payload, err := registry[TryOnJob].encode(Input{
		"category":  "upper_body",
		"model_img": testImage(),
		"cloth_img": testImage(),
		"mask_img":  nil,
	})
	if err != nil {
		t.Fatalf("encode tryon job with nil mask: %v", err)
	}

	if len(payload.Files) != 3 {
		t.Fatalf("got %d file parts, want 3", len(payload.Files))
	}

	var maskPart *FilePart
	for i := range payload.Files {
		if payload.Files[i].Field == "mask_img_buffer" {
			maskPart = &payload.Files[i]
		}
	}
	if maskPart == nil {
		t.Fatalf("mask attachment slot is missing: %+v", payload.Files)
	}
	if len(maskPart.Content) != 0 {
		t.Fatalf("nil mask should produce an empty attachment, got %d bytes", len(maskPart.Content))
	}
	if maskPart.Filename != "mask.png" {
		t.Fatalf("mask filename = %q, want mask.png", maskPart.Filename)
	}
}

func TestEncodeHandsFixHasNoGenerationData(t *testing.T) {
	registry := NewRegistry()

	payload, err := registry[HandsFixJob].encode(Input{"model_img": testImage()})
	if err != nil {
		t.Fatalf("encode handsfix job: %v", err)
	}
	if payload.GenerationData != nil {
		t.Fatalf("handsfix job should not carry generation_data, got %v", payload.GenerationData)
	}
}

func TestEncodeSeedDefaultsToNull(t *testing.T) {
	registry := NewRegistry()

	payload, err := registry[ModelGenerationJob].encode(Input{"prompt": "a model"})
	if err != nil {
		t.Fatalf("encode model generation job: %v", err)
	}

	data, err := json.Marshal(payload.GenerationData)
	if err != nil {
		t.Fatalf("marshal generation_data: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal generation_data: %v", err)
	}
	if seed, ok := decoded["seed"]; !ok || seed != nil {
		t.Fatalf("seed = %v (present=%v), want explicit null", seed, ok)
	}
}

func TestDecodeResultImageRoundTrip(t *testing.T) {
	original := testImage()
	pngBytes, err := imageconv.EncodePNG(original)
	if err != nil {
		t.Fatalf("encode png: %v", err)
	}

	body, err := json.Marshal(map[string]string{
		"result": base64.StdEncoding.EncodeToString(pngBytes),
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	decoded, err := decodeResultImage(body)
	if err != nil {
		t.Fatalf("decode result image: %v", err)
	}

	// PNG 无损，逐像素比较
	bounds := original.Bounds()
	if decoded.Bounds() != bounds {
		t.Fatalf("bounds = %v, want %v", decoded.Bounds(), bounds)
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			wr, wg, wb, wa := original.At(x, y).RGBA()
			gr, gg, gb, ga := decoded.At(x, y).RGBA()
			if wr != gr || wg != gg || wb != gb || wa != ga {
				t.Fatalf("pixel (%d,%d) differs after round trip", x, y)
			}
		}
	}
}

func TestDecodeResultImageFailures(t *testing.T) {
	cases := []struct {
		name string
		body []byte
	}{
		{"not json", []byte("plain text")},
		{"missing result", []byte(`{"status": "ok"}`)},
		{"invalid base64", []byte(`{"result": "!!not-base64!!"}`)},
		{"not an image", []byte(`{"result": "` + base64.StdEncoding.EncodeToString([]byte("not an image")) + `"}`)},
	}

	for _, tc := range cases {
		_, err := decodeResultImage(tc.body)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("%s: expected DecodeError, got %T: %v", tc.name, err, err)
		}
	}
}
