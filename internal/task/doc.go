// Package task manages background job queuing, processing, and lifecycle.
// Jobs are persisted before they run, claimed by a poller, executed by a pool
// of workers inside a transactional session and retried with backoff. Jobs
// chained onto a job are only submitted once it commits, so a pipeline such
// as store-then-convert never runs a step before the previous one succeeded.
package task
