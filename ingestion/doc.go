// Package ingestion turns fetched articles into deduplicated news records.
//
// The Service stores each article of a batch under its session, merging
// articles already known by URL (or by normalized title when there is no
// URL): keywords are unioned under a cap and the update counter bumped.
// Writers within a session are serialized; writers in different processes
// are reconciled by retrying the store's conflict error.
//
// Records expire once their publish date is more than ExpireDays whole UTC
// days old. Sweep removes them with their vectors and reports the keywords
// they carried. A Sweeper runs sweeps on an interval or cron schedule
// without blocking ingestion.
package ingestion
