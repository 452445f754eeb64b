package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/status-im/credential-host/logging"
	"github.com/status-im/credential-host/metrics"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file|dir>...",
		Short: "Check descriptor files without starting the host",
		Long: `Decode and validate descriptor files the way the host would register them.

Each file is checked against the built-in types, so a name that collides with
a built-in type is reported as a duplicate. Directories are scanned for
<TypeName>.credentials.{yaml,yml,json,toml} files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, ld, _, err := loadTypes(nil, logging.NoopLogger{}, metrics.NewNoopMetrics())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0

			for _, path := range args {
				info, err := os.Stat(path)
				if err != nil {
					fmt.Fprintf(out, "FAIL  %s: %v\n", path, err)
					failed++
					continue
				}

				if !info.IsDir() {
					d, err := ld.LoadFile(path)
					if err != nil {
						fmt.Fprintf(out, "FAIL  %v\n", err)
						failed++
						continue
					}
					fmt.Fprintf(out, "ok    %s (%s)\n", d.Name, path)
					continue
				}

				res, err := ld.LoadDir(path)
				if err != nil {
					fmt.Fprintf(out, "FAIL  %s: %v\n", path, err)
					failed++
					continue
				}
				for _, name := range res.Registered {
					fmt.Fprintf(out, "ok    %s (%s)\n", name, path)
				}
				for _, s := range res.Skipped {
					fmt.Fprintf(out, "FAIL  %v\n", s.Err)
					failed++
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d descriptor(s) failed validation", failed)
			}
			return nil
		},
	}
}
