// Package dispatch is the entry point the rest of an application calls
// when a domain event happens.
//
// Emit runs one event for one recipient through the pipeline:
//
//  1. the registry classifies the event (unknown keys get the default
//     policy);
//  2. the kill switch and the event's recipient filters may suppress it;
//  3. the channel policy picks target channels;
//  4. digestable events are queued in the digest scheduler, everything
//     else is rendered and delivered on each channel concurrently.
//
// Failures are isolated per channel. When a digest batch flushes, every
// member is rendered, the members of each recipient and channel are
// summarized into one message, and members that could not be rendered or
// delivered are pushed to a RetryQueue. A flushed batch is never reopened.
package dispatch
