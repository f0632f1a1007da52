// Package refresh keeps aggregate views current.
//
// A Coordinator refreshes an ordered list of views under a cluster wide lock so
// only one instance refreshes at a time. Each view is refreshed without blocking
// readers when it supports that, otherwise (or when that fails) with a blocking
// refresh. A failed blocking refresh ends the run.
//
// PGLocker and PGRefresher implement the lock and refresh on Postgres with a
// session advisory lock and REFRESH MATERIALIZED VIEW. A Scheduler runs the
// coordinator on a cron schedule and on demand through RunNow.
//
//	coord := refresh.NewCoordinator(
//		refresh.NewPGLocker(db, lockKey),
//		refresh.NewPGRefresher(db),
//		[]refresh.View{{Name: "mv_daily_sales", Concurrent: true}},
//	)
//	sched, err := refresh.NewScheduler(coord, "0 3 * * *")
//	sched.Start(ctx)
//	defer sched.Stop(ctx)
package refresh
