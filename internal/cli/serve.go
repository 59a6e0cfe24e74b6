package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/apien/apien/internal/app"
)

type serveOptions struct {
	httpAddr string
	grpcAddr string
	noGRPC   bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Migrate the store, then serve lookups",
		Long: `Bring the schema up to date, then serve lookups over HTTP and health
checks over gRPC until SIGINT or SIGTERM. A migration failure exits before
any listener is bound.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.httpAddr, "http-addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&opts.grpcAddr, "grpc-addr", "", "gRPC listen address")
	cmd.Flags().BoolVar(&opts.noGRPC, "no-grpc", false, "disable the gRPC listener")

	return cmd
}

func runServe(ctx context.Context, rootOpts *RootOptions, opts *serveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(rootOpts)
	if err != nil {
		return err
	}
	if opts.httpAddr != "" {
		cfg.HTTP.Addr = opts.httpAddr
	}
	if opts.grpcAddr != "" {
		cfg.GRPC.Addr = opts.grpcAddr
	}
	if opts.noGRPC {
		cfg.GRPC.Enabled = false
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.Wait() }()
	signalled := make(chan error, 1)
	go func() { signalled <- a.WaitForShutdown(ctx) }()

	select {
	case err := <-serveErr:
		return errors.Join(err, a.Stop(context.Background()))
	case err := <-signalled:
		return errors.Join(err, a.Stop(context.Background()))
	}
}
