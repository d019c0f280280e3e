// Package notifications delivers backup lifecycle events via ntfy.
//
// The default implementation publishes to the topic configured in the backup
// config and gracefully degrades to a no-op when no topic is set. Delivery is
// best effort by contract: a failed notification never fails the backup or
// restore it reports on, so callers log and move on.
//
// Extend this package if you need alternative transports; the engine depends
// only on the Service interface.
package notifications
