package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kursadbilgin/survey-engine/internal/config"
	"github.com/kursadbilgin/survey-engine/internal/domain"
	"github.com/kursadbilgin/survey-engine/internal/handler"
	infraredis "github.com/kursadbilgin/survey-engine/internal/infra/redis"
	"github.com/kursadbilgin/survey-engine/internal/observability"
	"github.com/kursadbilgin/survey-engine/internal/service"
)

const (
	statusShutdownTimeout = 5 * time.Second
	leaseReleaseTimeout   = 5 * time.Second
)

type deliverOptions struct {
	mechanism    string
	templateName string
	schedule     string
	yes          bool
}

func newDeliverCommand(rt *runtime) *cobra.Command {
	var opts deliverOptions

	cmd := &cobra.Command{
		Use:   "deliver",
		Short: "Deliver survey invitations to every eligible recipient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeliver(cmd.Context(), rt, opts)
		},
	}

	cmd.Flags().StringVar(&opts.mechanism, "mechanism", "", "delivery mechanism (mock, email, webhook); overrides DELIVERY_MECHANISM")
	cmd.Flags().StringVar(&opts.templateName, "template", "", "template name; overrides TEMPLATE_NAME")
	cmd.Flags().StringVar(&opts.schedule, "schedule", "", "cron expression; start a run on every tick instead of once")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

func runDeliver(ctx context.Context, rt *runtime, opts deliverOptions) error {
	cfg, logger, err := rt.load()
	if err != nil {
		return err
	}

	mechanism, err := resolveMechanism(cfg, opts.mechanism)
	if err != nil {
		return err
	}
	if opts.templateName != "" {
		cfg.TemplateName = opts.templateName
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	metrics := observability.NewMetrics()

	var (
		rdb  *redis.Client
		lock *infraredis.RunLock
	)
	if cfg.RedisURL != "" {
		rdb, err = infraredis.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()

		lock, err = infraredis.NewRunLock(rdb, cfg.RunLockTTL())
		if err != nil {
			return err
		}
	}

	var confirmer service.Confirmer = NewPromptConfirmer(rt.in, rt.out)
	if opts.yes || opts.schedule != "" {
		confirmer = service.AutoConfirm{}
	}

	runner := &deliveryRunner{
		cfg:       cfg,
		mechanism: mechanism,
		store:     st,
		lock:      lock,
		confirmer: confirmer,
		logger:    logger,
		metrics:   metrics,
		out:       rt.out,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, groupCtx := errgroup.WithContext(ctx)

	if cfg.StatusAddr != "" {
		app, err := handler.NewStatusServer(handler.ServerDeps{
			Logger:     logger,
			Metrics:    metrics,
			SQLDB:      st.sqlDB,
			Redis:      rdb,
			Status:     runner,
			Recipients: st.recipients,
			Attempts:   st.attempts,
		})
		if err != nil {
			return err
		}

		g.Go(func() error {
			logger.Info("status server listening", zap.String("addr", cfg.StatusAddr))
			if err := app.Listen(cfg.StatusAddr); err != nil {
				return fmt.Errorf("status server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-groupCtx.Done()
			return app.ShutdownWithTimeout(statusShutdownTimeout)
		})
	}

	g.Go(func() error {
		defer cancel()
		if opts.schedule == "" {
			return runner.runOnce(groupCtx)
		}
		return runner.runScheduled(groupCtx, opts.schedule)
	})

	return g.Wait()
}

// deliveryRunner starts runs and reports the status of the latest one.
type deliveryRunner struct {
	cfg       *config.Config
	mechanism domain.Mechanism
	store     *store
	lock      *infraredis.RunLock
	confirmer service.Confirmer
	logger    *zap.Logger
	metrics   *observability.Metrics
	out       io.Writer

	mu      sync.RWMutex
	current *service.DeliveryScheduler
}

func (r *deliveryRunner) Status() service.RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.current == nil {
		return service.RunStatus{State: service.StateIdle, Mechanism: r.mechanism}
	}
	return r.current.Status()
}

func (r *deliveryRunner) runOnce(ctx context.Context) error {
	scheduler, err := newScheduler(r.cfg, r.mechanism, r.store, r.confirmer, r.logger, r.metrics)
	if err != nil {
		return err
	}

	if r.lock != nil {
		lease, err := r.lock.Acquire(ctx, r.mechanism)
		if err != nil {
			return err
		}

		runCtx, cancelRun := context.WithCancel(ctx)
		keepAliveDone := make(chan struct{})
		go func() {
			defer close(keepAliveDone)
			if err := lease.KeepAlive(runCtx); err != nil {
				r.logger.Error("run lock lost, stopping delivery run", zap.Error(err))
				cancelRun()
			}
		}()
		defer func() {
			cancelRun()
			<-keepAliveDone

			releaseCtx, cancelRelease := context.WithTimeout(context.WithoutCancel(ctx), leaseReleaseTimeout)
			defer cancelRelease()
			if err := lease.Release(releaseCtx); err != nil {
				r.logger.Warn("failed to release run lock", zap.Error(err))
			}
		}()

		ctx = runCtx
	}

	r.mu.Lock()
	r.current = scheduler
	r.mu.Unlock()

	report, err := scheduler.Run(ctx)
	if errors.Is(err, domain.ErrRunDeclined) {
		fmt.Fprintln(r.out, "Aborted.")
		return nil
	}
	if report != nil {
		printRunReport(r.out, report)
	}

	return err
}

func (r *deliveryRunner) runScheduled(ctx context.Context, spec string) error {
	cronLog := cronLogger{logger: r.logger.Sugar()}
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	if _, err := c.AddFunc(spec, func() {
		if err := r.runOnce(ctx); err != nil {
			r.logger.Error("scheduled delivery run failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("%w: invalid schedule %q: %v", domain.ErrValidation, spec, err)
	}

	r.logger.Info("delivery runs scheduled", zap.String("schedule", spec))
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()

	return nil
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
