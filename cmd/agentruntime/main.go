// =============================================================================
// agentruntime 主入口
// =============================================================================
// 命令行入口：对话、知识导入与数据库迁移
//
// 使用方法:
//
//	agentruntime chat --character ada.json            # 交互式对话
//	agentruntime ingest docs/ --shared                # 导入知识文件或目录
//	agentruntime migrate up --config config.yaml      # 运行数据库迁移
//	agentruntime migrate status                       # 查看迁移状态
//	agentruntime version                              # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentruntime/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// rootOptions 是所有子命令共享的全局参数
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "agentruntime",
		Short:         "Run a character-driven LLM agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file (YAML)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	root.AddCommand(
		newChatCmd(opts),
		newIngestCmd(opts),
		newMigrateCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agentruntime %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
		},
	}
}

// loadConfig 加载并校验配置
func (o *rootOptions) loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if o.configPath != "" {
		loader = loader.WithConfigPath(o.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

// =============================================================================
// 📝 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.TimeKey = "timestamp"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if len(cfg.OutputPaths) > 0 {
		zapCfg.OutputPaths = cfg.OutputPaths
	} else {
		// stdout 留给对话内容
		zapCfg.OutputPaths = []string{"stderr"}
	}
	zapCfg.DisableCaller = !cfg.EnableCaller
	zapCfg.DisableStacktrace = !cfg.EnableStacktrace

	return zapCfg.Build()
}
