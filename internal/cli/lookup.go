package cli

import (
	"context"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/apien/apien/internal/app"
	"github.com/apien/apien/internal/request"
)

type lookupOptions struct {
	language  string
	structure string
	gzip      bool
	pretty    bool
}

// NewLookupCommand creates the lookup command.
func NewLookupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &lookupOptions{}

	cmd := &cobra.Command{
		Use:   "lookup <path>",
		Short: "Run one lookup and print the response body",
		Long: `Run one lookup through the same pipeline the HTTP listener uses,
including the response cache, and print the body.

Example:
  apien lookup country_code/usa,can/year/2020 --language fr --structure cyi`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			a, err := app.New(cfg, app.WithLogOutput(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.Migrate(ctx); err != nil {
				return err
			}
			resp, err := a.Service().Handle(ctx, args[0], opts.values(cmd))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, err := out.Write(resp.Body); err != nil {
				return err
			}
			_, err = out.Write([]byte("\n"))
			return err
		},
	}

	cmd.Flags().StringVar(&opts.language, request.OptLanguage, "", "two-letter language code")
	cmd.Flags().StringVar(&opts.structure, request.OptStructure, "", "nesting order, a permutation of c, i and y")
	cmd.Flags().BoolVar(&opts.gzip, request.OptGzip, false, "zlib-compress the body")
	cmd.Flags().BoolVar(&opts.pretty, request.OptPretty, false, "indented HTML output")

	return cmd
}

// values passes only the flags that were set, so option validation sees
// exactly what an HTTP client would have sent.
func (o *lookupOptions) values(cmd *cobra.Command) url.Values {
	v := url.Values{}
	if cmd.Flags().Changed(request.OptLanguage) {
		v.Set(request.OptLanguage, o.language)
	}
	if cmd.Flags().Changed(request.OptStructure) {
		v.Set(request.OptStructure, o.structure)
	}
	if cmd.Flags().Changed(request.OptGzip) {
		v.Set(request.OptGzip, boolString(o.gzip))
	}
	if cmd.Flags().Changed(request.OptPretty) {
		v.Set(request.OptPretty, boolString(o.pretty))
	}
	return v
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
