// Package store provides the in-memory record table behind the connector.
//
// The table maps non-empty string keys to storage-shape records. It is
// populated from a single JSON persistence file when the store is opened and,
// when persistence-on-close is enabled, written back to that file when the
// store is closed.
//
// # Lifecycle
//
//	Open ──load──▶ Ready  ─┐
//	     └──load──▶ Failed ─┴─Close──▶ Closed
//
// The load runs in the background. Its result is delivered once through
// Loaded(); the close result is delivered once through Close(). Operations are
// never blocked by the lifecycle: calls made before the load finishes act on
// the empty table, and a successful load replaces the table wholesale. A
// failed load leaves the table empty and usable.
//
// # Persistence
//
// The file is read once and written at most once. Writes go to a temp file in
// the same directory and are renamed into place, so a failed save leaves the
// previous file untouched. No file locking is performed; two processes
// sharing one file will overwrite each other's saves.
package store
