// notifyctl checks event registry documents offline.
//
// Usage:
//
//	notifyctl validate config/events.yaml
//	notifyctl events config/events.yaml -o json
//	notifyctl dump config/events.yaml
//	notifyctl bucket user-42 test-7
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "notifyctl",
		Short:         "Inspect notification event registries",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(validateCmd())
	root.AddCommand(eventsCmd())
	root.AddCommand(dumpCmd())
	root.AddCommand(bucketCmd())
	return root
}
