// Package queue runs background work for the billing core: one-time tasks such
// as processing a recorded webhook event, and periodic tasks such as the
// provider reconciliation sweep.
//
// Three components talk to storage only through small repository interfaces:
//
//   - Enqueuer adds one-time tasks, optionally delayed.
//   - Scheduler turns a Schedule into pending periodic tasks.
//   - Worker claims due tasks and dispatches them to a registered Handler.
//
// # Retries
//
// A task carries Attempts and MaxAttempts. When a handler fails and attempts
// remain, the worker asks the handler's Backoff (or the worker default) for the
// delay and the repository reschedules the task. When attempts are exhausted the
// task is moved to the dead letter queue and the worker's DeadLetterFunc is
// called so the failure is reported rather than dropped.
//
//	e, _ := queue.NewEnqueuer(storage)
//	_ = e.Enqueue(ctx, ProcessEvent{EventID: id}, queue.WithMaxAttempts(3))
//
//	w, _ := queue.NewWorker(storage,
//		queue.WithBackoff(queue.ExponentialBackoff{Initial: time.Minute, Multiplier: 2}),
//		queue.WithDeadLetterFunc(func(ctx context.Context, t *queue.Task, err error) { ... }),
//	)
//	_ = w.RegisterHandler(queue.NewTaskHandler(processor.Handle))
//
// # Periodic tasks
//
//	s, _ := queue.NewScheduler(storage, queue.WithCheckInterval(30*time.Second))
//	_ = s.AddTask("billing.reconcile", queue.EveryInterval(30*time.Minute))
//
// The periodic handler is registered on the worker under the same name with
// NewPeriodicTaskHandler.
package queue
