// Package notifications holds the outbound side of the engine: channels,
// priorities, recipients and the transports that carry rendered content.
//
// A Router maps each Channel to a Sender. Built-in senders:
//
//   - EmailSender wraps an email.EmailSender (Postmark or the dev sender).
//   - WebhookSender POSTs signed JSON with retry and backoff.
//   - KafkaSender publishes commands for external SMS or push adapters.
//   - Inbox stores in-app notifications and pushes them to Realtime.
//   - Realtime fans out to open SSE or WebSocket subscriptions.
//
// Every outcome is reported as a DeliveryResult and, when a DeliveryLog is
// configured, recorded there. A recipient without an address for a channel
// is skipped rather than failed.
//
//	router := notifications.NewRouter(
//	    notifications.WithSender(notifications.NewEmailSender(mailer), notifications.ChannelEmail),
//	    notifications.WithSender(inbox, notifications.ChannelInApp),
//	    notifications.WithSender(rt, notifications.ChannelSSE, notifications.ChannelWS),
//	)
//	res, err := router.Deliver(ctx, msg)
package notifications
