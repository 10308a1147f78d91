package embedding

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LocalModel 是进程内的嵌入模型，例如 ONNX 运行的 all-MiniLM-L6-v2 / BGE-small。
type LocalModel interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}

// LocalLoader 加载本地模型。只会被调用一次。
type LocalLoader func(ctx context.Context) (LocalModel, error)

// LocalProvider 懒加载本地模型。首批并发调用者等待同一个初始化结果，
// 初始化失败后结果被缓存，不会重复尝试。
type LocalProvider struct {
	load       LocalLoader
	dimensions int
	logger     *zap.Logger

	once  sync.Once
	ready chan struct{}
	model LocalModel
	err   error
}

// NewLocalProvider creates a lazily initialised local provider.
func NewLocalProvider(load LocalLoader, dimensions int, logger *zap.Logger) *LocalProvider {
	if dimensions <= 0 {
		dimensions = LocalDimensions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalProvider{
		load:       load,
		dimensions: dimensions,
		logger:     logger,
		ready:      make(chan struct{}),
	}
}

func (p *LocalProvider) Name() string    { return ProviderLocal }
func (p *LocalProvider) Dimensions() int { return p.dimensions }

// init 启动一次加载并等待其完成；ctx 取消只影响当前等待者。
func (p *LocalProvider) init(ctx context.Context) (LocalModel, error) {
	p.once.Do(func() {
		go func() {
			defer close(p.ready)
			start := time.Now()
			// 加载不绑定首个调用者的 ctx，避免其取消影响其他等待者
			p.model, p.err = p.load(context.WithoutCancel(ctx))
			if p.err != nil {
				p.logger.Error("local embedding model failed to load", zap.Error(p.err))
				return
			}
			p.logger.Info("local embedding model loaded",
				zap.Int("dimensions", p.model.Dimensions()),
				zap.Duration("took", time.Since(start)))
		}()
	})
	select {
	case <-p.ready:
		return p.model, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *LocalProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	model, err := p.init(ctx)
	if err != nil {
		return nil, err
	}
	vec, err := model.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != p.dimensions {
		p.logger.Warn("local embedding dimension mismatch",
			zap.Int("expected", p.dimensions),
			zap.Int("actual", len(vec)))
	}
	return vec, nil
}

func (p *LocalProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	out := make([][]float32, 0, len(req.Input))
	for _, in := range req.Input {
		vec, err := p.EmbedQuery(ctx, in)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return &EmbeddingResponse{Provider: ProviderLocal, Embeddings: out, CreatedAt: time.Now()}, nil
}

// Close releases the model if it was loaded.
func (p *LocalProvider) Close() error {
	select {
	case <-p.ready:
		if p.model != nil {
			return p.model.Close()
		}
	default:
	}
	return nil
}
