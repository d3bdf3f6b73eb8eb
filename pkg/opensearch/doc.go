// Package opensearch connects to an OpenSearch cluster and stores delivery
// outcomes in it.
//
// New builds a client from Config and runs an initial Healthcheck.
// DeliveryLog implements notifications.DeliveryLog: every delivery result is
// indexed as one document, and Recent reads them back for the admin surface.
//
//	client, err := opensearch.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	log := opensearch.NewDeliveryLog(client, cfg.DeliveryIndex)
//	router := notifications.NewRouter(notifications.WithDeliveryLog(log))
package opensearch
