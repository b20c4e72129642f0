package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/triage-ai/catalog/internal/auth"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a write API key and its bcrypt hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, hash, err := auth.GenerateAPIKey()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "API key (shown once): %s\n", key)
			fmt.Fprintf(out, "Set auth.api_key_hash (CATALOG_AUTH_API_KEY_HASH) to:\n%s\n", hash)
			return nil
		},
	}
}
