// Package cache keeps recently read file statuses in Redis so status polling
// does not hit Postgres on every request. Entries are evicted on
// file.status_changed events and expire after a configurable TTL.
package cache
