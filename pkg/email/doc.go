// Package email provides a provider-agnostic interface for sending
// transactional notification emails.
//
// Two implementations are available:
//   - NewPostmarkClient delivers through Postmark with open tracking.
//   - NewDevSender writes every email to disk as HTML, text and JSON files.
//
// NewSender chooses between them from Config: Postmark when both tokens are
// set, the dev sender otherwise.
//
//	sender, err := email.NewSender(cfg)
//	if err != nil {
//	    return err
//	}
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//	    SendTo:   "user@example.com",
//	    Subject:  "Your order shipped",
//	    BodyText: "Order #42 is on its way.",
//	    Tag:      "order.shipped",
//	})
//
// Params are validated before any provider call; validation failures wrap
// ErrInvalidParams and provider failures wrap ErrFailedToSendEmail.
package email
