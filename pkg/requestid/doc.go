// Package requestid carries a correlation ID through HTTP requests and
// consumed Kafka messages so every log record for one inbound event can be
// found together.
//
// Middleware reuses a valid "X-Request-ID" header or generates a UUID, stores
// it in the request context and echoes it in the response. Message consumers
// call Ensure on the header value they received and WithContext on the result.
// LoggerExtractor adds the ID to slog records as "request_id":
//
//	log, _ := logger.NewFromConfig(cfg, logger.WithContextExtractors(requestid.LoggerExtractor()))
//	router.Use(requestid.Middleware)
package requestid
