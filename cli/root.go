package cli

import (
	"context"

	"github.com/spf13/cobra"

	"auditz/config"
	"auditz/domain/audited"
	"auditz/errors"
	"auditz/logging"
)

// env 每次命令执行时按 --config 加载
type env struct {
	cfg     *config.Config
	logger  logging.Logger
	sources *Sources
}

// NewRootCmd auditz 根命令
func NewRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)
	e := &env{}

	root := &cobra.Command{
		Use:           "auditz",
		Short:         "Audit fields, soft delete and revision trails for row stores",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			e.cfg = cfg
			e.logger = cfg.Logger()
			logging.SetLogger(e.logger)

			e.sources, err = OpenSources(cfg, e.logger)
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if e.sources == nil {
				return nil
			}
			return e.sources.Close()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./auditz.yaml or /etc/auditz/auditz.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")

	root.AddCommand(newMigrateCmd(e))
	root.AddCommand(newRevisionsCmd(e))
	root.AddCommand(newModelsCmd(e))
	return root
}

// sinkFor 模型的规范名与修订写入器；未配置的模型返回 InvalidInput，修订关闭时 ok=false
func (e *env) sinkFor(ctx context.Context, model string) (string, audited.IRevisionSink, audited.RevisionsEnabled, bool, error) {
	name, cfg, err := e.cfg.Model(model)
	if err != nil {
		return "", nil, audited.RevisionsEnabled{}, false, err
	}
	policy, ok := cfg.RevisionPolicy()
	if !ok {
		return name, nil, policy, false, nil
	}
	sink, err := audited.SinkFor(ctx, e.sources.Container, policy)
	if err != nil {
		return name, nil, policy, false, errors.WrapError(err, errors.ErrCodeConfig, "模型 "+name)
	}
	return name, sink, policy, true, nil
}
