package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🌐 指标暴露服务器
// =============================================================================

// Manager 管理一个后台 HTTP 监听器的生命周期
type Manager struct {
	server   *http.Server
	listener net.Listener
	errCh    chan error
	config   Config
	logger   *zap.Logger
	mu       sync.Mutex
	closed   bool
}

// Config 服务器配置
type Config struct {
	// 监听地址，":0" 表示随机端口
	Addr string `yaml:"addr" json:"addr"`

	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 返回抓取端点适用的默认配置
func DefaultConfig() Config {
	return Config{
		Addr:            ":9090",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// NewManager 创建服务器管理器
func NewManager(handler http.Handler, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           handler,
			ReadTimeout:       config.ReadTimeout,
			ReadHeaderTimeout: config.ReadTimeout,
			WriteTimeout:      config.WriteTimeout,
			IdleTimeout:       config.IdleTimeout,
		},
		errCh:  make(chan error, 1),
		config: config,
		logger: logger.With(zap.String("component", "metrics_server")),
	}
}

// NewMetricsServer 在 addr 上暴露 /metrics 与 /healthz
func NewMetricsServer(addr string, metrics http.Handler, logger *zap.Logger) *Manager {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	cfg := DefaultConfig()
	cfg.Addr = addr
	return NewManager(mux, cfg, logger)
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Start 绑定端口并在后台提供服务
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("server is closed")
	}
	if m.listener != nil {
		return errors.New("server already started")
	}

	listener, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	m.listener = listener
	m.logger.Info("serving metrics", zap.String("addr", listener.Addr().String()))

	go m.serve(listener)
	return nil
}

func (m *Manager) serve(listener net.Listener) {
	if err := m.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.logger.Error("metrics server failed", zap.Error(err))
		select {
		case m.errCh <- err:
		default:
		}
	}
}

// Shutdown 优雅关闭，重复调用无副作用
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if m.listener == nil {
		return nil
	}

	if m.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.ShutdownTimeout)
		defer cancel()
	}
	if err := m.server.Shutdown(ctx); err != nil {
		m.logger.Warn("metrics server shutdown failed", zap.Error(err))
		return err
	}
	m.logger.Debug("metrics server stopped")
	return nil
}

// Errors 返回后台服务的异步错误
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// Addr 返回实际监听地址；未启动时返回配置地址
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.config.Addr
}
