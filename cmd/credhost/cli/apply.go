package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/status-im/credential-host/authrule"
	"github.com/status-im/credential-host/descriptor"
	"github.com/status-im/credential-host/logging"
	"github.com/status-im/credential-host/metrics"
)

func newApplyCmd(opts *rootOptions) *cobra.Command {
	var (
		sets       []string
		valuesFile string
		reveal     bool
	)

	cmd := &cobra.Command{
		Use:   "apply <type>",
		Short: "Render the request headers a credential type produces",
		Long: `Render the headers of a credential type from the given values.

Values start at the type's defaults. A values file (YAML map of field name to
value) is applied first, then each --set. Headers that include a secret field
are masked unless --reveal is given.

Examples:
  credhost apply CustomApi --set apiKey=sk-test
  credhost apply CustomApi --values-file ./dev-values.yaml --reveal`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, false)
			if err != nil {
				return err
			}

			reg, _, _, err := loadTypes(cfg.DescriptorDirs, logging.NoopLogger{}, metrics.NewNoopMetrics())
			if err != nil {
				return err
			}

			d, err := reg.Get(args[0])
			if err != nil {
				return err
			}

			values := descriptor.Defaults(d)

			if valuesFile != "" {
				data, err := os.ReadFile(valuesFile)
				if err != nil {
					return fmt.Errorf("failed to read values file: %w", err)
				}
				var fileValues map[string]any
				if err := yaml.Unmarshal(data, &fileValues); err != nil {
					return fmt.Errorf("failed to parse values file: %w", err)
				}
				for _, name := range sortedKeys(fileValues) {
					if err := values.Set(d, name, fileValues[name]); err != nil {
						return err
					}
				}
			}

			for _, kv := range sets {
				name, raw, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid --set %q: expected name=value", kv)
				}
				if err := values.Set(d, name, raw); err != nil {
					return err
				}
			}

			headers, err := authrule.ApplyDescriptor(d, values)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range sortedKeys(headers) {
				value := headers[name]
				if !reveal && referencesSecret(d, d.Auth.Headers[name]) {
					value = descriptor.Mask
				}
				fmt.Fprintf(out, "%s: %s\n", name, value)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&sets, "set", nil, "field value as name=value (repeatable)")
	cmd.Flags().StringVarP(&valuesFile, "values-file", "f", "", "YAML file of field values")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "print headers that contain secret values")
	return cmd
}

func referencesSecret(d *descriptor.Descriptor, tmpl descriptor.Template) bool {
	for _, name := range tmpl.Fields() {
		if f, ok := d.Field(name); ok && f.Secret {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
