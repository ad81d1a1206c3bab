// Package pagination walks a cursor-paginated list and accumulates its records.
//
// The backend hands out one page per call together with the cursor of the
// following page. Pages may overlap by one record and the first page may come
// back empty, so the accumulator de-duplicates by record id and the walker can
// re-request a suspicious empty first page.
//
// Example usage:
//
//	listing := pagination.NewListing(pageClient, logger)
//	walker := pagination.NewWalker(listing, pagination.DefaultConfig())
//	records, err := walker.Collect(ctx)
//
// The walker:
//   - Fetches the first page without a cursor
//   - Follows next cursors until the list is exhausted or MaxPages is reached
//   - Retries an empty first page up to MaxEmptyRetries times
//   - Logs progress every ProgressEvery pages
//   - Returns the records collected so far when a page fails (partial data)
package pagination
