package jobclient

import (
	"encoding/base64"
	"encoding/json"
	"image"

	"tryon-mcp/internal/imageconv"
)

// JobType 任务类型标签，六种固定取值
type JobType string

const (
	FaceJob            JobType = "face_job"
	HandsFixJob        JobType = "handsfix_job"
	MaskJob            JobType = "mask_job"
	ModelGenerationJob JobType = "model_generation_job"
	RetouchJob         JobType = "retouch_job"
	TryOnJob           JobType = "tryon_job"
)

// Input 调用方提供的原始输入。值可以是文件路径 / base64 字符串 /
// image.Image / 原始字节，或字符串、数值等标量。对本包只读。
type Input map[string]any

// FilePart multipart 请求中的一个命名图片附件。
// Content 为 nil 表示附件槽位存在但内容为空（如可选蒙版）。
type FilePart struct {
	Field       string
	Filename    string
	Content     []byte
	ContentType string
}

// Payload 编码后的传输载荷：若干命名附件加一个 generation_data 元数据字段。
// GenerationData 为 nil 时不发送该表单字段。
type Payload struct {
	Files          []FilePart
	GenerationData map[string]any
}

type encodeFunc func(input Input) (*Payload, error)
type decodeFunc func(body []byte) (image.Image, error)

// strategy 一种任务类型的编码/解码函数对。无状态，客户端创建时解析一次。
type strategy struct {
	encode encodeFunc
	decode decodeFunc
}

// Registry 任务类型到编解码策略的映射。
// 在进程启动时通过 NewRegistry 构建一次，显式传入 NewClient。
type Registry map[JobType]strategy

// NewRegistry 构建包含全部六种任务类型的策略注册表
func NewRegistry() Registry {
	return Registry{
		FaceJob:            {encode: encodeFaceJob, decode: decodeResultImage},
		HandsFixJob:        {encode: encodeHandsFixJob, decode: decodeResultImage},
		MaskJob:            {encode: encodeMaskJob, decode: decodeResultImage},
		ModelGenerationJob: {encode: encodeModelGenerationJob, decode: decodeResultImage},
		RetouchJob:         {encode: encodeRetouchJob, decode: decodeResultImage},
		TryOnJob:           {encode: encodeTryOnJob, decode: decodeResultImage},
	}
}

// requireKeys 校验输入中存在全部必需字段，缺失时报出第一个缺失字段
func requireKeys(input Input, keys ...string) error {
	for _, key := range keys {
		if _, ok := input[key]; !ok {
			return &ValidationError{Field: key}
		}
	}
	return nil
}

// imageFilePart 将任意图片表示转换为 PNG 附件
func imageFilePart(field, filename string, value any) (FilePart, error) {
	content, err := imageconv.ToBytes(value)
	if err != nil {
		return FilePart{}, err
	}
	return FilePart{
		Field:       field,
		Filename:    filename,
		Content:     content,
		ContentType: "image/png",
	}, nil
}

func encodeFaceJob(input Input) (*Payload, error) {
	if err := requireKeys(input, "model_img", "generation_type", "inpaint_params", "prompt"); err != nil {
		return nil, err
	}

	modelFile, err := imageFilePart("model_img_buffer", "model.png", input["model_img"])
	if err != nil {
		return nil, err
	}

	return &Payload{
		Files: []FilePart{modelFile},
		GenerationData: map[string]any{
			"inpaint_params":  input["inpaint_params"],
			"generation_type": input["generation_type"],
			"prompt":          input["prompt"],
		},
	}, nil
}

func encodeMaskJob(input Input) (*Payload, error) {
	if err := requireKeys(input, "category", "model_img"); err != nil {
		return nil, err
	}

	modelFile, err := imageFilePart("model_img_buffer", "model.png", input["model_img"])
	if err != nil {
		return nil, err
	}

	return &Payload{
		Files: []FilePart{modelFile},
		GenerationData: map[string]any{
			"category": input["category"],
		},
	}, nil
}

func encodeTryOnJob(input Input) (*Payload, error) {
	if err := requireKeys(input, "category", "model_img", "cloth_img", "mask_img"); err != nil {
		return nil, err
	}

	modelFile, err := imageFilePart("model_img_buffer", "model.png", input["model_img"])
	if err != nil {
		return nil, err
	}
	clothFile, err := imageFilePart("cloth_img_buffer", "cloth.png", input["cloth_img"])
	if err != nil {
		return nil, err
	}

	// 蒙版允许为 nil：附件槽位始终存在，内容为空
	maskFile := FilePart{
		Field:       "mask_img_buffer",
		Filename:    "mask.png",
		ContentType: "image/png",
	}
	if input["mask_img"] != nil {
		maskFile, err = imageFilePart("mask_img_buffer", "mask.png", input["mask_img"])
		if err != nil {
			return nil, err
		}
	}

	return &Payload{
		Files: []FilePart{modelFile, clothFile, maskFile},
		GenerationData: map[string]any{
			"category": input["category"],
		},
	}, nil
}

func encodeHandsFixJob(input Input) (*Payload, error) {
	if err := requireKeys(input, "model_img"); err != nil {
		return nil, err
	}

	modelFile, err := imageFilePart("model_img_buffer", "model.png", input["model_img"])
	if err != nil {
		return nil, err
	}

	// 手部修复没有额外参数，不发送 generation_data 字段
	return &Payload{
		Files: []FilePart{modelFile},
	}, nil
}

func encodeRetouchJob(input Input) (*Payload, error) {
	if err := requireKeys(input, "model_img"); err != nil {
		return nil, err
	}

	modelFile, err := imageFilePart("model_img_buffer", "model.png", input["model_img"])
	if err != nil {
		return nil, err
	}

	return &Payload{
		Files: []FilePart{modelFile},
		GenerationData: map[string]any{
			"seed": input["seed"],
		},
	}, nil
}

func encodeModelGenerationJob(input Input) (*Payload, error) {
	if err := requireKeys(input, "prompt"); err != nil {
		return nil, err
	}

	return &Payload{
		GenerationData: map[string]any{
			"prompt": input["prompt"],
			"seed":   input["seed"],
		},
	}, nil
}

// decodeResultImage 解析成功响应体：取 result 字段，base64 解码后转为图片。
// 六种任务类型的响应格式相同。
func decodeResultImage(body []byte) (image.Image, error) {
	var resultData struct {
		Result *string `json:"result"`
	}
	if err := json.Unmarshal(body, &resultData); err != nil {
		return nil, &DecodeError{Reason: "response body is not valid JSON", Err: err}
	}
	if resultData.Result == nil {
		return nil, &DecodeError{Reason: "response is missing 'result' field"}
	}

	decoded, err := base64.StdEncoding.DecodeString(*resultData.Result)
	if err != nil {
		return nil, &DecodeError{Reason: "'result' field is not valid base64", Err: err}
	}

	img, err := imageconv.FromBytes(decoded)
	if err != nil {
		return nil, &DecodeError{Reason: "'result' field is not a valid image", Err: err}
	}
	return img, nil
}
