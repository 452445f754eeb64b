package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/status-im/credential-host/descriptor"
	"github.com/status-im/credential-host/logging"
	"github.com/status-im/credential-host/metrics"
)

func newFieldsCmd(opts *rootOptions) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "fields [type]",
		Short: "List credential types or the fields of one type",
		Long: `Without arguments, list every registered credential type.
With a type name, list its fields in display order.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, false)
			if err != nil {
				return err
			}

			reg, _, _, err := loadTypes(cfg.DescriptorDirs, logging.NoopLogger{}, metrics.NewNoopMetrics())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if len(args) == 0 {
				if jsonOut {
					return writeIndentedJSON(out, reg.Names())
				}
				for _, name := range reg.Names() {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			d, err := reg.Get(args[0])
			if err != nil {
				return err
			}

			views := descriptor.FieldViews(d, nil)
			if jsonOut {
				return writeIndentedJSON(out, views)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDISPLAY NAME\tTYPE\tDEFAULT\tSECRET\tDESCRIPTION")
			for _, v := range views {
				def := descriptor.FormatValue(v.Default)
				if v.Secret && def != "" {
					def = descriptor.Mask
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
					v.Name, v.DisplayName, v.Kind, def, v.Secret, strings.TrimSpace(v.Description))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

func writeIndentedJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
