package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sekadau-online/The-Cloud-Rain-Protocol/config"
	"github.com/sekadau-online/The-Cloud-Rain-Protocol/eip712"
	"github.com/sekadau-online/The-Cloud-Rain-Protocol/eventlog"
	"github.com/sekadau-online/The-Cloud-Rain-Protocol/mintauth"
	"github.com/sekadau-online/The-Cloud-Rain-Protocol/relayer"
	"github.com/sekadau-online/The-Cloud-Rain-Protocol/token"
)

func CreateServeCommand() *cobra.Command {
	var configPath, host string
	var port int

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Rain Cloud Protocol API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv("RAINCLOUD_CONFIG")
			}
			cfg, loadErr := config.Load(configPath)
			if loadErr != nil {
				return loadErr
			}
			if cmd.Flags().Changed("host") {
				cfg.ListenHost = host
			}
			if cmd.Flags().Changed("port") {
				cfg.ListenPort = port
			}
			if validateErr := cfg.Validate(); validateErr != nil {
				return validateErr
			}

			logger := relayer.NewLogger(cfg.LogLevel)

			encoder, encoderErr := eip712.NewEncoder(cfg.ChainID, cfg.ContractAddress)
			if encoderErr != nil {
				return encoderErr
			}

			ledger := token.New(cfg.OwnerAddress, encoder)

			var journal *eventlog.Journal
			if cfg.DatabasePath != "" {
				var openErr error
				journal, openErr = eventlog.Open(cfg.DatabasePath)
				if openErr != nil {
					return openErr
				}
				defer journal.Close()

				ledger.SetEventSink(func(event token.Event) {
					if appendErr := journal.Append(context.Background(), event); appendErr != nil {
						logger.Error().Err(appendErr).Msg("appending event to journal failed")
					}
				})
			}

			authorizer := mintauth.New(encoder, ledger, ledger)
			server := relayer.NewServer(encoder, ledger, authorizer, journal, cfg.CORSAllowedOrigins, logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info().
				Str("address", cfg.ListenAddr()).
				Uint64("chain_id", cfg.ChainID).
				Str("verifying_contract", cfg.ContractAddress.Hex()).
				Str("owner", cfg.OwnerAddress.Hex()).
				Msg("starting Rain Cloud Protocol server")

			return server.Run(ctx, cfg.ListenAddr())
		},
	}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a TOML configuration file (default $RAINCLOUD_CONFIG)")
	serveCmd.Flags().StringVar(&host, "host", "0.0.0.0", "Host on which to serve the API")
	serveCmd.Flags().IntVar(&port, "port", 8380, "Port on which to serve the API")

	return serveCmd
}
