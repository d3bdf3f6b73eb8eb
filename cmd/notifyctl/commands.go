package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/notifykit/pkg/registry"
	"github.com/dmitrymomot/notifykit/pkg/templates"
)

// errInvalid makes the process exit non-zero after defects were printed.
var errInvalid = errors.New("registry has defects")

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Report every defect in a registry document",
		Long: `Validate parses a JSON or YAML registry document and prints every
defect found. The command exits with status 1 when any defect exists.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			defects := registry.Validate(data, registry.FormatFromPath(args[0]))
			out := cmd.OutOrStdout()
			if len(defects) == 0 {
				fmt.Fprintf(out, "%s: ok\n", args[0])
				return nil
			}
			for _, d := range defects {
				fmt.Fprintln(out, d.String())
			}
			return fmt.Errorf("%w: %d found", errInvalid, len(defects))
		},
	}
}

func eventsCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "events <file>",
		Short: "List the events a registry defines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Load(cmd.Context(), registry.FileSource(args[0]))
			if err != nil {
				return err
			}
			events := reg.Events()
			out := cmd.OutOrStdout()
			if output == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tPRIORITY\tSCOPE\tDIGEST\tCHANNELS")
			for _, e := range events {
				digest := "-"
				if e.IsDigestable() {
					digest = e.Digest.Delay.String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Key, e.Priority, e.Scope, digest, channelList(e))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json")
	return cmd
}

func channelList(e registry.EventDefinition) string {
	var parts []string
	for _, c := range e.DefaultChannels.Sorted() {
		parts = append(parts, string(c))
	}
	for _, c := range e.ForcedChannels.Sorted() {
		parts = append(parts, string(c)+"!")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}

func dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <file>",
		Short: "Print the normalized registry as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Load(cmd.Context(), registry.FileSource(args[0]))
			if err != nil {
				return err
			}
			data, err := reg.RawJSON()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}

func bucketCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bucket <recipient> <salt>",
		Short: "Print the rollout bucket for a recipient",
		Long: `Bucket prints the value in [0,100) a recipient hashes to for the given
salt. A/B tests use the test ID as salt; feature flags use the flag name.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), templates.Bucket(args[0], args[1]))
			return err
		},
	}
}
