// 知识目录变更监听器实现。
//
// 定时扫描目录树，按文件修改时间产生事件，防抖后回调。
package rag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// --- 监听器类型定义 ---

// FileOp represents file operation types
type FileOp int

const (
	// FileOpCreate 表示文件已创建
	FileOpCreate FileOp = iota
	// FileOpWrite 指示文件已被修改
	FileOpWrite
	// FileOpRemove 表示文件已被删除
	FileOpRemove
)

// String returns the string representation of FileOp
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a file change event
type FileEvent struct {
	// Path 是变化文件的绝对路径
	Path string `json:"path"`

	// Op 是操作类型
	Op FileOp `json:"op"`

	// Timestamp 是检测到变化的时间
	Timestamp time.Time `json:"timestamp"`
}

// DirectoryWatcher 监听目录树中受支持的知识文件
type DirectoryWatcher struct {
	mu sync.RWMutex

	// 配置
	root          string
	interval      time.Duration
	debounceDelay time.Duration
	match         func(path string) bool

	// 状态
	running   bool
	stopChan  chan struct{}
	eventChan chan FileEvent

	// 回调
	callbacks []func(event FileEvent)

	logger *zap.Logger

	// 上次扫描看到的修改时间
	lastModTimes map[string]time.Time
}

// --- 监听器选项 ---

// WatcherOption configures the DirectoryWatcher
type WatcherOption func(*DirectoryWatcher)

// WithPollInterval 设置扫描间隔
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *DirectoryWatcher) {
		w.interval = d
	}
}

// WithDebounceDelay sets the debounce delay for file events
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *DirectoryWatcher) {
		w.debounceDelay = d
	}
}

// WithFileFilter 只报告 match 返回 true 的文件
func WithFileFilter(match func(path string) bool) WatcherOption {
	return func(w *DirectoryWatcher) {
		w.match = match
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *DirectoryWatcher) {
		w.logger = logger
	}
}

// --- 监听器实现 ---

// NewDirectoryWatcher 创建监听器，root 必须是已存在的目录
func NewDirectoryWatcher(root string, opts ...WatcherOption) (*DirectoryWatcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	w := &DirectoryWatcher{
		root:          abs,
		interval:      time.Second,
		debounceDelay: 100 * time.Millisecond,
		match:         func(string) bool { return true },
		stopChan:      make(chan struct{}),
		eventChan:     make(chan FileEvent, 100),
		lastModTimes:  make(map[string]time.Time),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "rag_watcher"))

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}
	return w, nil
}

// OnChange registers a callback for file change events
func (w *DirectoryWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 记录当前快照并开始监听；已存在的文件不会产生事件
func (w *DirectoryWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	snapshot, err := w.scan()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.lastModTimes = snapshot
	w.mu.Unlock()

	go w.pollLoop(ctx)
	go w.dispatchLoop(ctx)

	w.logger.Info("knowledge watcher started",
		zap.String("root", w.root),
		zap.Int("files", len(snapshot)),
		zap.Duration("interval", w.interval))
	return nil
}

// Stop stops the watcher
func (w *DirectoryWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	close(w.stopChan)
	w.running = false

	w.logger.Info("knowledge watcher stopped")
	return nil
}

// IsRunning returns whether the watcher is running
func (w *DirectoryWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Root 返回监听的绝对路径
func (w *DirectoryWatcher) Root() string { return w.root }

func (w *DirectoryWatcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.checkFiles(ctx)
		}
	}
}

// scan 返回目录下所有匹配文件的修改时间，跳过隐藏目录
func (w *DirectoryWatcher) scan() (map[string]time.Time, error) {
	files := make(map[string]time.Time)
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path != w.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !w.match(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files[path] = info.ModTime()
		return nil
	})
	return files, err
}

// checkFiles 对比两次扫描结果产生事件
func (w *DirectoryWatcher) checkFiles(ctx context.Context) {
	current, err := w.scan()
	if err != nil {
		w.logger.Warn("knowledge directory scan failed", zap.Error(err))
		return
	}

	now := time.Now()
	var events []FileEvent
	w.mu.Lock()
	for path, mod := range current {
		last, existed := w.lastModTimes[path]
		switch {
		case !existed:
			events = append(events, FileEvent{Path: path, Op: FileOpCreate, Timestamp: now})
		case mod.After(last):
			events = append(events, FileEvent{Path: path, Op: FileOpWrite, Timestamp: now})
		}
	}
	for path := range w.lastModTimes {
		if _, ok := current[path]; !ok {
			events = append(events, FileEvent{Path: path, Op: FileOpRemove, Timestamp: now})
		}
	}
	w.lastModTimes = current
	w.mu.Unlock()

	for _, e := range events {
		select {
		case w.eventChan <- e:
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		}
	}
}

// dispatchLoop 防抖后把事件分发给回调；同一路径只保留最后一个事件
func (w *DirectoryWatcher) dispatchLoop(ctx context.Context) {
	pending := make(map[string]FileEvent)
	timer := time.NewTimer(w.debounceDelay)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-w.stopChan:
			timer.Stop()
			return
		case event := <-w.eventChan:
			pending[event.Path] = event
			timer.Reset(w.debounceDelay)
		case <-timer.C:
			w.mu.RLock()
			callbacks := make([]func(FileEvent), len(w.callbacks))
			copy(callbacks, w.callbacks)
			w.mu.RUnlock()

			for path, evt := range pending {
				w.logger.Debug("dispatching file event",
					zap.String("path", path),
					zap.String("op", evt.Op.String()))
				for _, cb := range callbacks {
					cb(evt)
				}
			}
			pending = make(map[string]FileEvent)
		}
	}
}

// Watch 监听 KnowledgeRoot 下的 dir 目录，文件新增或修改时重新导入，删除时移除对应知识。
// interval 为 0 时使用 1 秒。返回的监听器已启动，调用方负责 Stop。
func (m *KnowledgeManager) Watch(ctx context.Context, dir string, shared bool, interval time.Duration) (*DirectoryWatcher, error) {
	root, err := m.resolve(dir)
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = time.Second
	}
	w, err := NewDirectoryWatcher(root,
		WithPollInterval(interval),
		WithFileFilter(m.loaders.Supports),
		WithWatcherLogger(m.logger))
	if err != nil {
		return nil, err
	}
	w.OnChange(func(e FileEvent) {
		if err := m.IngestPath(ctx, e.Path, shared); err != nil {
			m.logger.Error("failed to sync knowledge file",
				zap.String("path", e.Path),
				zap.String("op", e.Op.String()),
				zap.Error(err))
		}
	})
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}
