package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	modbilling "github.com/avuweb/membership/modules/billing"
	"github.com/avuweb/membership/pkg/config"
	"github.com/avuweb/membership/pkg/httpserver"
	"github.com/avuweb/membership/pkg/queue"
	"github.com/avuweb/membership/svc/billing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, event worker and sweep scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log := app.Logger()
		svc, err := app.Services(ctx)
		if err != nil {
			return err
		}

		var (
			httpCfg httpserver.Config
			hookCfg modbilling.Config
			queCfg  queue.Config
		)
		if err := errors.Join(config.Load(&httpCfg), config.Load(&hookCfg), config.Load(&queCfg)); err != nil {
			return err
		}

		worker, err := queue.NewWorker(svc.Queue,
			queue.WithQueues(svc.Config.Queue),
			queue.WithPullInterval(queCfg.PollInterval),
			queue.WithLockTimeout(queCfg.LockTimeout),
			queue.WithMaxConcurrentTasks(queCfg.MaxConcurrentTasks),
			queue.WithDeadLetterFunc(svc.Processor.OnDeadLetter),
			queue.WithWorkerLogger(log),
		)
		if err != nil {
			return err
		}
		if err := worker.RegisterHandlers(
			svc.Processor.Handler(),
			queue.NewPeriodicTaskHandler(billing.ReconcileTaskName, svc.Reconciler.Handle),
			queue.NewPeriodicTaskHandler(billing.RenewalsTaskName, svc.Renewals.Handle),
		); err != nil {
			return err
		}

		scheduler, err := queue.NewScheduler(svc.Queue,
			queue.WithCheckInterval(queCfg.SchedulerInterval),
			queue.WithSchedulerLogger(log),
		)
		if err != nil {
			return err
		}
		for name, expr := range map[string]string{
			billing.ReconcileTaskName: svc.Config.ReconcileSchedule,
			billing.RenewalsTaskName:  svc.Config.RenewalsSchedule,
		} {
			sched, err := queue.ParseSchedule(expr)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if err := scheduler.AddTask(name, sched, queue.WithTaskQueue(svc.Config.Queue)); err != nil {
				return err
			}
		}

		handler := modbilling.NewHandler(hookCfg, svc.Billing, svc.Entitlements, svc.Coupons, modbilling.WithLogger(log))
		router := modbilling.Router(modbilling.RouterOptions{
			Handler: handler,
			Logger:  log,
			Checks:  app.Checks(),
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return httpserver.New(httpCfg, log).Run(gctx, router) })
		g.Go(worker.Run(gctx))
		g.Go(scheduler.Run(gctx))

		log.InfoContext(ctx, "membership service started", slog.String("addr", httpCfg.Addr))
		return g.Wait()
	},
}
