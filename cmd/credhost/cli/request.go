package cli

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

func newRequestCmd(opts *rootOptions) *cobra.Command {
	var (
		data    string
		headers []string
	)

	cmd := &cobra.Command{
		Use:   "request <credential-id> <method> <url>",
		Short: "Send a request authorized with a stored credential",
		Long: `Send one HTTP request with the headers of a stored credential applied.
A relative URL is resolved against the credential's baseUrl.

The credential is read from the configured store, so this needs the shared
KeyDB tier: an L1-only store lives inside the serving process.

Example:
  credhost request 1b4e28ba-2fa1-11d2-883f-0016d3cca427 GET /v1/models`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, false)
			if err != nil {
				return err
			}
			if !cfg.Store.L2.Enabled {
				return fmt.Errorf("request needs the KeyDB store tier; set store.l2 or CREDHOST_KEYDB_URL")
			}
			cfg.Store.L1.Enabled = false
			if opts.logLevel == "" {
				cfg.Logging.Level = "error"
			}

			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := commandContext(cmd)

			var body io.Reader
			if data != "" {
				body = bytes.NewBufferString(data)
			}
			req, err := http.NewRequestWithContext(ctx, strings.ToUpper(args[1]), args[2], body)
			if err != nil {
				return err
			}
			for _, h := range headers {
				name, value, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("invalid header %q: expected Name: value", h)
				}
				req.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
			}

			resp, respBody, err := rt.client.Do(ctx, req, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", resp.Status)
			_, err = cmd.OutOrStdout().Write(respBody)
			return err
		},
	}

	cmd.Flags().StringVar(&data, "data", "", "request body")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra request header as 'Name: value' (repeatable)")
	return cmd
}
