// Package events provides types and interfaces for an event-driven architecture.
//
// Services and task handlers emit events after their changes are committed,
// without knowing which handlers will process them. The status cache, for
// example, subscribes to FileStatusChanged to evict stale entries.
//
// The primary components are:
// - Event: an immutable, JSON-encoded notification
// - EventHandler: interface for components that can handle events
// - EventEmitter: interface for components that can emit events
package events
