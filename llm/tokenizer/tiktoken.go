package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenTokenizer 基于 tiktoken 的精确分词器.
type TiktokenTokenizer struct {
	model     string
	encoding  string
	maxTokens int
	enc       *tiktoken.Tiktoken
	once      sync.Once
	initErr   error
}

type encodingInfo struct {
	encoding  string
	maxTokens int
}

// modelEncodings 将模型名映射到 tiktoken 编码和上下文大小.
var modelEncodings = map[string]encodingInfo{
	"gpt-4o":                 {encoding: "o200k_base", maxTokens: 128000},
	"gpt-4o-mini":            {encoding: "o200k_base", maxTokens: 128000},
	"gpt-4.1":                {encoding: "o200k_base", maxTokens: 1047576},
	"o1":                     {encoding: "o200k_base", maxTokens: 200000},
	"o3":                     {encoding: "o200k_base", maxTokens: 200000},
	"gpt-4-turbo":            {encoding: "cl100k_base", maxTokens: 128000},
	"gpt-4":                  {encoding: "cl100k_base", maxTokens: 8192},
	"gpt-3.5-turbo":          {encoding: "cl100k_base", maxTokens: 16385},
	"text-embedding-3-large": {encoding: "cl100k_base", maxTokens: 8191},
	"text-embedding-3-small": {encoding: "cl100k_base", maxTokens: 8191},
}

var defaultEncoding = encodingInfo{encoding: "cl100k_base", maxTokens: 128000}

// NewTiktokenTokenizer 为给定模型创建分词器；未知模型使用 cl100k_base.
func NewTiktokenTokenizer(model string) *TiktokenTokenizer {
	info, ok := modelEncodings[model]
	if !ok {
		bestLen := 0
		for prefix, i := range modelEncodings {
			if len(prefix) > bestLen && strings.HasPrefix(model, prefix) {
				info, bestLen, ok = i, len(prefix), true
			}
		}
	}
	if !ok {
		info = defaultEncoding
	}

	return &TiktokenTokenizer{
		model:     model,
		encoding:  info.encoding,
		maxTokens: info.maxTokens,
	}
}

// init 懒加载编码表（首次使用时可能需要下载数据）.
func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenTokenizer) Encode(text string) ([]int, error) {
	if err := t.init(); err != nil {
		return nil, err
	}
	return t.enc.Encode(text, nil, nil), nil
}

func (t *TiktokenTokenizer) Decode(tokens []int) (string, error) {
	if err := t.init(); err != nil {
		return "", err
	}
	return t.enc.Decode(tokens), nil
}

func (t *TiktokenTokenizer) MaxTokens() int {
	return t.maxTokens
}

func (t *TiktokenTokenizer) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.encoding)
}
