// Package digest batches notifications of digestable events.
//
// Notifications sharing a tenant, a group key and an event key join the
// same open batch. The group key comes from the event's group_by path in
// the payload; a missing path is an error rather than a shared bucket. The
// first member sets the deadline to now plus the event's delay.
//
// Start scans for due batches on a ticker. Flush triggers one batch by
// hand. Both paths claim the batch with a compare-and-swap, so each batch
// reaches the FlushFunc exactly once. A flushed batch never reopens: later
// notifications open a new one.
package digest
