package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/triage-ai/catalog/internal/storage"
	"github.com/triage-ai/catalog/internal/store"
	"gopkg.in/yaml.v3"
)

func newListCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print every sensitivity record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := a.catalog()
			if err != nil {
				return err
			}

			started := time.Now()
			records, err := catalog.ListAll(cmd.Context())
			a.audit(storage.OpListAll, records, started, err)
			if err != nil && !cleanupOnly(err) {
				return fmt.Errorf("list: %w", err)
			}
			return writeRecords(cmd.OutOrStdout(), records, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format (json or yaml)")
	return cmd
}

func writeRecords(w io.Writer, records []store.SensitivityRecord, format string) error {
	if records == nil {
		records = []store.SensitivityRecord{}
	}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q (use json or yaml)", format)
	}
}
