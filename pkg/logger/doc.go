// Package logger builds *slog.Logger instances with consistent attribute
// names for notification dispatch.
//
// New applies functional options on top of JSON/info defaults; Config maps
// APP_ENV, LOG_LEVEL and LOG_FORMAT onto the same options:
//
//	log, err := logger.NewFromConfig(cfg)
//
// Attribute helpers such as EventKey, Channel, TenantID and BatchID keep
// keys uniform across packages. ContextWithAttrs attaches attributes to a
// context so that every record logged with it carries them:
//
//	ctx = logger.ContextWithAttrs(ctx, logger.EventKey(key), logger.TenantID(tenantID))
//	log.InfoContext(ctx, "dispatched")
package logger
