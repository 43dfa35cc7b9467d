package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kk-code-lab/kitcat/internal/app"
	"github.com/kk-code-lab/kitcat/internal/config"
	"github.com/kk-code-lab/kitcat/internal/logger"
	"github.com/kk-code-lab/kitcat/internal/meta"
	"github.com/kk-code-lab/kitcat/internal/storage/digest"
	"github.com/kk-code-lab/kitcat/internal/storage/engine"
)

// annotationNoSetup marks commands that need neither config nor logger.
const annotationNoSetup = "kitcat/no-setup"

// cli holds state shared by all subcommands of one invocation.
type cli struct {
	out       io.Writer
	cfg       *config.Config
	log       *zap.SugaredLogger
	jsonOut   bool
	logLevel  string
	logFormat string
	catalog   string
}

func newRootCommand(out io.Writer) *cobra.Command {
	c := &cli{out: out}
	root := &cobra.Command{
		Use:           "kitcat",
		Short:         "Split files into verifiable parts and merge them back",
		Version:       app.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := cmd.Annotations[annotationNoSetup]; ok {
				return nil
			}
			return c.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}
	root.SetOut(out)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	flags := root.PersistentFlags()
	flags.BoolVar(&c.jsonOut, "json", false, "print reports as JSON")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error (env KITCAT_LOG_LEVEL)")
	flags.StringVar(&c.logFormat, "log-format", "", "log format: console or json (env KITCAT_LOG_FORMAT)")
	flags.StringVar(&c.catalog, "catalog", "", `catalog database path, "off" to disable (env KITCAT_CATALOG)`)

	root.AddCommand(
		c.newSplitCommand(),
		c.newVerifyCommand(),
		c.newMergeCommand(),
		c.newInspectCommand(),
		c.newLabelsCommand(),
		c.newPartsCommand(),
		c.newStatusCommand(),
		c.newScrubCommand(),
		c.newHistoryCommand(),
		c.newVersionCommand(),
	)
	return root
}

// setup reads the environment and builds the logger. The chunk size is left
// to split and the algorithm to the commands that hash.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Read()
	if err != nil {
		return usageError(err)
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if c.logFormat != "" {
		cfg.LogFormat = c.logFormat
	}
	if c.catalog != "" {
		cfg.CatalogPath = c.catalog
	}
	if err := cfg.ValidateLogging(); err != nil {
		return usageError(err)
	}
	log, err := logger.NewWithWriter(cmd.ErrOrStderr(), "kitcat", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return usageError(err)
	}
	c.cfg = cfg
	c.log = log.With("cmd", cmd.Name())
	return nil
}

func (c *cli) engine(algorithm string) (*engine.Engine, error) {
	if algorithm == "" {
		algorithm = c.cfg.Algorithm
	}
	alg, err := digest.ParseAlgorithm(algorithm)
	if err != nil {
		return nil, usageError(err)
	}
	return engine.New(engine.Options{Algorithm: alg, Logger: c.log})
}

// openCatalog opens the catalog, returning nil when it is disabled.
func (c *cli) openCatalog() (*meta.Store, error) {
	path, err := c.cfg.Catalog()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, nil
	}
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	return meta.Open(path)
}

// requireCatalog opens the catalog for commands that cannot work without it.
func (c *cli) requireCatalog() (*meta.Store, error) {
	store, err := c.openCatalog()
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, ErrCatalogDisabled
	}
	return store, nil
}

// withCatalog runs fn with an open catalog. Catalog failures are logged and do not
// fail the command, since the files on disk are the source of truth.
func (c *cli) withCatalog(fn func(*meta.Store) error) {
	store, err := c.openCatalog()
	if err != nil {
		c.log.Warnw("catalog unavailable", "error", err)
		return
	}
	if store == nil {
		return
	}
	defer func() { _ = store.Close() }()
	if err := fn(store); err != nil {
		c.log.Warnw("catalog update failed", "error", err)
		return
	}
	if err := store.Checkpoint(context.Background()); err != nil {
		c.log.Debugw("catalog checkpoint failed", "error", err)
	}
}

func requireArgs(names ...string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != len(names) {
			if len(names) == 0 {
				return usageError(fmt.Errorf("unexpected arguments: %s", strings.Join(args, " ")))
			}
			return usageError(fmt.Errorf("expected %d argument(s) <%s>, got %d", len(names), strings.Join(names, "> <"), len(args)))
		}
		return nil
	}
}

func ensureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
