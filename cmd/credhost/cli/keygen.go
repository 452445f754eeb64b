package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/status-im/credential-host/cache/codec"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a store encryption key",
		Long: `Print a random base64 key for store.encryption_key
(or CREDHOST_STORE_ENCRYPTION_KEY). Every host sharing a KeyDB
database must use the same key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := codec.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}
