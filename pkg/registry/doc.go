// Package registry holds the event taxonomy: for every event key its
// priority, broadcast scope, digest rule, forced and default channels and
// recipient filters.
//
// A Registry is built once from a versioned document and never mutated.
// Documents come from a Source (local file, bytes or an S3 object) and are
// validated exhaustively: Load rejects a document with any defect and
// reports all of them through *InvalidConfigError.
//
//	reg, err := registry.Load(ctx, registry.FileSource("events.yaml"))
//	if err != nil {
//		return err
//	}
//	def := reg.ResolveOrDefault("Order.Completed")
//
// Hot reload goes through Holder, which swaps registries atomically.
package registry
