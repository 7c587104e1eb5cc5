// Package async provides goroutine helpers with panic recovery, timeouts and
// structured error reporting.
//
// SafeGo runs a single background task:
//
//	async.SafeGo(ctx, 0, "seed watcher", func(ctx context.Context) error {
//		return watcher.Run(ctx)
//	})
//
// WorkerPool and Batch fan work out over a bounded number of goroutines:
//
//	errs := async.Batch(ctx, subjects, 4, "subject sync", 10*time.Second, apply)
//
// Failures are logged with the observability.Logger found in the context.
package async
