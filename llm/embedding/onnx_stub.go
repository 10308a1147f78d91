//go:build !onnx

package embedding

import "context"

// onnxBuiltIn 报告是否以 onnx 构建标签编译
const onnxBuiltIn = false

// ONNXConfig configures the ONNX local model.
type ONNXConfig struct {
	ModelPath         string `json:"model_path" yaml:"model_path"`
	TokenizerPath     string `json:"tokenizer_path" yaml:"tokenizer_path"`
	SharedLibraryPath string `json:"shared_library_path" yaml:"shared_library_path"`
	Dimensions        int    `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// NewONNXLoader 在未启用 onnx 构建标签时返回 ErrLocalUnavailable。
func NewONNXLoader(ONNXConfig) LocalLoader {
	return func(context.Context) (LocalModel, error) {
		return nil, ErrLocalUnavailable
	}
}
