package rag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentruntime/adapter"
	"github.com/BaSui01/agentruntime/types"
)

// ErrPathOutsideRoot 目录或文件不在 KnowledgeRoot 之下
var ErrPathOutsideRoot = errors.New("knowledge path escapes the knowledge root")

// DirectoryStats 一次目录导入的统计
type DirectoryStats struct {
	Processed int
	Skipped   int
	Failed    int
}

// ProcessDirectory 递归导入 KnowledgeRoot 下 dir 目录中的 md/txt/pdf 文件，每批并发处理 5 个。
// 未变化的文件被跳过；单个文件失败只记日志，不中断整个目录。
func (m *KnowledgeManager) ProcessDirectory(ctx context.Context, dir string, shared bool) (DirectoryStats, error) {
	var stats DirectoryStats
	root, err := m.resolve(dir)
	if err != nil {
		return stats, err
	}

	files, err := m.listFiles(root)
	if err != nil {
		return stats, err
	}
	m.logger.Info("processing knowledge directory",
		zap.String("dir", dir),
		zap.Int("files", len(files)),
		zap.Bool("shared", shared))

	var processed, skipped, failed atomic.Int64
	for start := 0; start < len(files); start += fileBatchSize {
		end := min(start+fileBatchSize, len(files))
		g, gctx := errgroup.WithContext(ctx)
		for _, path := range files[start:end] {
			g.Go(func() error {
				changed, err := m.processPath(gctx, path, shared)
				switch {
				case err != nil && gctx.Err() != nil:
					return gctx.Err()
				case err != nil:
					failed.Add(1)
					m.logger.Error("failed to process knowledge file", zap.String("path", path), zap.Error(err))
				case changed:
					processed.Add(1)
				default:
					skipped.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return directoryStats(&processed, &skipped, &failed), err
		}
	}

	stats = directoryStats(&processed, &skipped, &failed)
	m.logger.Info("knowledge directory processed",
		zap.String("dir", dir),
		zap.Int("processed", stats.Processed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed))
	return stats, nil
}

func directoryStats(processed, skipped, failed *atomic.Int64) DirectoryStats {
	return DirectoryStats{
		Processed: int(processed.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
	}
}

// IngestPath 导入 KnowledgeRoot 下的单个文件，文件已删除时移除对应知识
func (m *KnowledgeManager) IngestPath(ctx context.Context, path string, shared bool) error {
	abs, err := m.resolve(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); errors.Is(err, fs.ErrNotExist) {
		rel, relErr := m.relative(abs)
		if relErr != nil {
			return relErr
		}
		return m.RemoveKnowledge(ctx, types.ScopedKnowledgeID(rel, shared))
	}
	_, err = m.processPath(ctx, abs, shared)
	return err
}

// processPath 导入一个绝对路径，返回是否真的写入了新内容
func (m *KnowledgeManager) processPath(ctx context.Context, path string, shared bool) (bool, error) {
	rel, err := m.relative(path)
	if err != nil {
		return false, err
	}
	id := types.ScopedKnowledgeID(rel, shared)

	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	sig := signature(info)
	existing, err := m.store.GetKnowledge(ctx, adapter.GetKnowledgeParams{ID: id, AgentID: m.agentID})
	if err != nil {
		return false, err
	}
	if len(existing) > 0 && m.signatureMatches(ctx, id, sig) {
		return false, nil
	}

	doc, err := m.loaders.Load(ctx, path)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(doc.Text) == "" {
		m.logger.Warn("knowledge file has no text", zap.String("path", rel))
		return false, nil
	}

	if len(existing) > 0 {
		if existing[0].Content.Text == doc.Text {
			m.rememberSignature(ctx, id, sig)
			return false, nil
		}
		// 内容变化：先删除旧记录与分块
		if err := m.store.RemoveKnowledge(ctx, id); err != nil {
			return false, fmt.Errorf("remove stale knowledge %s: %w", rel, err)
		}
	}

	if err := m.ProcessFile(ctx, File{Path: rel, Content: doc.Text, Type: doc.Type, Shared: shared}); err != nil {
		return false, err
	}
	m.rememberSignature(ctx, id, sig)
	return true, nil
}

// CleanupDeletedKnowledgeFiles 删除源文件已不存在的主记录及其分块，返回删除的文档数
func (m *KnowledgeManager) CleanupDeletedKnowledgeFiles(ctx context.Context) (int, error) {
	items, err := m.ListAllKnowledge(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, item := range items {
		meta := item.Meta()
		if !meta.IsMain || meta.Source == "" || item.AgentID != m.agentID {
			continue
		}
		_, statErr := os.Stat(filepath.Join(m.cfg.KnowledgeRoot, filepath.FromSlash(meta.Source)))
		if !errors.Is(statErr, fs.ErrNotExist) {
			continue
		}
		if err := m.RemoveKnowledge(ctx, item.ID); err != nil {
			return removed, fmt.Errorf("remove deleted knowledge %s: %w", meta.Source, err)
		}
		removed++
		m.logger.Info("removed knowledge for deleted file", zap.String("source", meta.Source))
	}
	return removed, nil
}

// resolve 把相对 KnowledgeRoot 的路径转为绝对路径，并拒绝跳出根目录的路径
func (m *KnowledgeManager) resolve(p string) (string, error) {
	root, err := filepath.Abs(m.cfg.KnowledgeRoot)
	if err != nil {
		return "", err
	}
	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, p)
	}
	return target, nil
}

// relative 返回相对 KnowledgeRoot 的斜杠路径，作为 source 元数据与作用域 id 的输入
func (m *KnowledgeManager) relative(abs string) (string, error) {
	root, err := filepath.Abs(m.cfg.KnowledgeRoot)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func (m *KnowledgeManager) listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if m.loaders.Supports(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list knowledge directory: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// =============================================================================
// 文件签名
// =============================================================================

func signature(info fs.FileInfo) string {
	return fmt.Sprintf("%d:%d", info.Size(), info.ModTime().UnixNano())
}

func signatureKey(id string) string {
	return "knowledge:signature:" + id
}

func (m *KnowledgeManager) signatureMatches(ctx context.Context, id, sig string) bool {
	if m.cache == nil {
		return false
	}
	stored, found, err := m.cache.GetString(ctx, signatureKey(id))
	if err != nil {
		m.logger.Debug("knowledge signature lookup failed", zap.String("id", id), zap.Error(err))
		return false
	}
	return found && stored == sig
}

func (m *KnowledgeManager) rememberSignature(ctx context.Context, id, sig string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Set(ctx, signatureKey(id), sig); err != nil {
		m.logger.Debug("failed to store knowledge signature", zap.String("id", id), zap.Error(err))
	}
}

func (m *KnowledgeManager) forgetSignature(ctx context.Context, id string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Delete(ctx, signatureKey(id)); err != nil {
		m.logger.Debug("failed to delete knowledge signature", zap.String("id", id), zap.Error(err))
	}
}
