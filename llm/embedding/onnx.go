//go:build onnx

package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const onnxSeqLen = 128

// onnxBuiltIn 报告是否以 onnx 构建标签编译
const onnxBuiltIn = true

// ONNXConfig configures the ONNX local model.
type ONNXConfig struct {
	ModelPath         string `json:"model_path" yaml:"model_path"`
	TokenizerPath     string `json:"tokenizer_path" yaml:"tokenizer_path"`
	SharedLibraryPath string `json:"shared_library_path" yaml:"shared_library_path"`
	Dimensions        int    `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// NewONNXLoader 返回加载 ONNX 句向量模型的 LocalLoader。
func NewONNXLoader(cfg ONNXConfig) LocalLoader {
	return func(context.Context) (LocalModel, error) {
		return newONNXModel(cfg)
	}
}

type onnxModel struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	tokenizer  *wordPiece
	dimensions int
}

func newONNXModel(cfg ONNXConfig) (*onnxModel, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("%w: model path is required", ErrLocalUnavailable)
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = LocalDimensions
	}
	if cfg.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	tok, err := loadWordPiece(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return &onnxModel{session: session, tokenizer: tok, dimensions: cfg.Dimensions}, nil
}

func (m *onnxModel) Dimensions() int { return m.dimensions }

func (m *onnxModel) Close() error {
	if m.session != nil {
		return m.session.Destroy()
	}
	return nil
}

func (m *onnxModel) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, mask, typeIDs := m.tokenizer.encode(text, onnxSeqLen)

	shape := ort.NewShape(1, onnxSeqLen)
	idsT, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer idsT.Destroy()
	maskT, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer maskT.Destroy()
	typeT, err := ort.NewTensor(shape, typeIDs)
	if err != nil {
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer typeT.Destroy()

	outputs := []ort.Value{nil}
	m.mu.Lock()
	err = m.session.Run([]ort.Value{idsT, maskT, typeT}, outputs)
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("ONNX inference failed: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	data, shapeOut := out.GetData(), out.GetShape()

	var vec []float32
	switch len(shapeOut) {
	case 2:
		vec = append([]float32(nil), data...)
	case 3:
		vec = meanPool(data, mask, int(shapeOut[1]), int(shapeOut[2]))
	default:
		return nil, fmt.Errorf("unexpected output shape %v", shapeOut)
	}
	return normalize(vec), nil
}

// meanPool 对 attention_mask 为 1 的位置求平均。
func meanPool(data []float32, mask []int64, seqLen, hidden int) []float32 {
	vec := make([]float32, hidden)
	var n float32
	for i := 0; i < seqLen && i < len(mask); i++ {
		if mask[i] == 0 {
			continue
		}
		n++
		row := data[i*hidden : (i+1)*hidden]
		for j, v := range row {
			vec[j] += v
		}
	}
	if n > 0 {
		for j := range vec {
			vec[j] /= n
		}
	}
	return vec
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// ---------------------------------------------------------------------------
// WordPiece tokenizer (BERT uncased vocab from tokenizer.json)
// ---------------------------------------------------------------------------

type wordPiece struct {
	vocab         map[string]int
	cls, sep, unk int64
}

func loadWordPiece(path string) (*wordPiece, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tj struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &tj); err != nil {
		return nil, err
	}
	w := &wordPiece{vocab: tj.Model.Vocab, cls: 101, sep: 102, unk: 100}
	if id, ok := w.vocab["[CLS]"]; ok {
		w.cls = int64(id)
	}
	if id, ok := w.vocab["[SEP]"]; ok {
		w.sep = int64(id)
	}
	if id, ok := w.vocab["[UNK]"]; ok {
		w.unk = int64(id)
	}
	return w, nil
}

func (w *wordPiece) encode(text string, seqLen int) (ids, mask, typeIDs []int64) {
	ids = make([]int64, seqLen)
	mask = make([]int64, seqLen)
	typeIDs = make([]int64, seqLen)

	tokens := w.tokenize(text)
	if len(tokens) > seqLen-2 {
		tokens = tokens[:seqLen-2]
	}
	ids[0], mask[0] = w.cls, 1
	for i, t := range tokens {
		ids[i+1], mask[i+1] = t, 1
	}
	end := len(tokens) + 1
	ids[end], mask[end] = w.sep, 1
	return ids, mask, typeIDs
}

func (w *wordPiece) tokenize(text string) []int64 {
	var out []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]{}")
		if word == "" {
			continue
		}
		if id, ok := w.vocab[word]; ok {
			out = append(out, int64(id))
			continue
		}
		for start := 0; start < len(word); {
			end, found := len(word), false
			for end > start {
				sub := word[start:end]
				if start > 0 {
					sub = "##" + sub
				}
				if id, ok := w.vocab[sub]; ok {
					out = append(out, int64(id))
					start, found = end, true
					break
				}
				end--
			}
			if !found {
				out = append(out, w.unk)
				start++
			}
		}
	}
	return out
}
