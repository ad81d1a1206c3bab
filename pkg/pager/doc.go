// Package pager simulates an unreliable, latency-variable, cursor-paginated
// list backend over an in-memory dataset.
//
// The simulator exposes a single asynchronous operation:
//
//	sim, err := pager.New(pager.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	sim.Fetch(pager.NoCursor, func(r pager.Result) {
//		if r.Err != nil {
//			// show r.Err.Description, keep already loaded records
//			return
//		}
//		// append r.Page.Records, request r.Page.Next next time
//	})
//
// # Decision procedure
//
// Each call first makes sure the dataset exists, then rolls for a simulated
// rate-limit failure (short latency). Otherwise it draws a long latency and a
// page size, validates the cursor, and slices the dataset. Two backend bugs
// are reproduced on purpose:
//
//   - duplicate boundary: a non-initial page repeats the record just before it
//   - empty first page: an initial page is empty and claims to be exhausted
//
// Both are valid-shaped successes. Callers are expected to de-duplicate by id
// (see package pagination).
//
// # Concurrency
//
// Initialization and every per-call computation run under one mutex, so the
// dataset is generated at most once and the random draws of a call are not
// interleaved with another call's. Waiting out the latency happens outside the
// lock, so many results can be in flight and may be delivered out of order.
// There is no cancellation: every Fetch eventually calls its callback.
//
// # Metrics
//
//   - pagesim_fetches_total{outcome}
//   - pagesim_fetch_latency_seconds{outcome}
//   - pagesim_anomalies_total{kind}
//   - pagesim_fetches_in_flight
package pager
