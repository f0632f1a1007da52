// Package aggregate answers report sections from precomputed, periodically refreshed
// views when a request is date bounded.
//
// The aggregate path is an optimization only. Try reports false for ineligible
// requests, disabled sources, query errors and empty results, and callers fall
// back to their raw query. ScopeCriteria and DateRangeCriteria are shared with
// raw queries so both paths filter the same way.
//
//	rows, ok := aggregate.Try(ctx, src, salesView, filters)
//	if !ok {
//		rows, err = queryRaw(ctx, filters)
//	}
package aggregate
