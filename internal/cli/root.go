package cli

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kursadbilgin/survey-engine/internal/config"
	"github.com/kursadbilgin/survey-engine/internal/observability"
)

const defaultEnvFile = ".env"

// Options sets the streams the commands talk to.
type Options struct {
	In  io.Reader
	Out io.Writer
}

func DefaultOptions() Options {
	return Options{In: os.Stdin, Out: os.Stdout}
}

// runtime holds state shared by every subcommand. Configuration and the
// logger are built on first use so commands that need neither stay usable
// without a database.
type runtime struct {
	envFile string
	in      io.Reader
	out     io.Writer

	once   sync.Once
	cfg    *config.Config
	logger *zap.Logger
	err    error
}

func (rt *runtime) load() (*config.Config, *zap.Logger, error) {
	rt.once.Do(func() {
		cfg, err := config.Load(rt.envFile)
		if err != nil {
			rt.err = err
			return
		}

		logger, err := observability.NewLogger(cfg.LogLevel)
		if err != nil {
			rt.err = fmt.Errorf("failed to initialize logger: %w", err)
			return
		}

		rt.cfg = cfg
		rt.logger = logger
	})

	return rt.cfg, rt.logger, rt.err
}

func (rt *runtime) sync() {
	if rt.logger != nil {
		_ = rt.logger.Sync()
	}
}

func NewRootCommand(opts Options) *cobra.Command {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	rt := &runtime{envFile: defaultEnvFile, in: opts.In, out: opts.Out}

	root := &cobra.Command{
		Use:           "survey-engine",
		Short:         "Paced delivery of personalized survey invitations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			rt.sync()
		},
	}
	root.SetIn(opts.In)
	root.SetOut(opts.Out)
	root.SetErr(opts.Out)

	root.PersistentFlags().StringVar(&rt.envFile, "env-file", defaultEnvFile, "dotenv file read before the environment")

	root.AddCommand(
		newDeliverCommand(rt),
		newEligibleCommand(rt),
		newImportCommand(rt),
		newIdentifierCommand(rt),
	)

	return root
}
