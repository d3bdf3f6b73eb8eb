// Package ingest feeds events into a dispatch.Dispatcher from outside the
// process: an HTTP API, a Kafka topic, and a Server-Sent Events stream that
// pushes realtime notifications back to connected clients.
package ingest
