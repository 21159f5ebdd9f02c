package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ledger-reconciler/cmd/reconciler/config"
	"ledger-reconciler/internal/api"
	"ledger-reconciler/internal/service"
	"ledger-reconciler/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reconciliation HTTP API",
	Long: `Serve starts an HTTP server exposing:

  GET  /health             liveness probe
  POST /api/v1/reconcile   reconcile merchant and bank records sent as JSON

The server stops gracefully on SIGINT or SIGTERM.

Examples:
  reconciler serve --port 8080
  reconciler serve --allowed-origins https://ops.example.com --amount-tolerance 0.01`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	defaults := api.DefaultConfig()
	serveCmd.Flags().IntP("port", "p", defaults.Port, "port to listen on")
	serveCmd.Flags().StringSlice("allowed-origins", defaults.AllowedOrigins, "CORS origins allowed to call the API")
	serveCmd.Flags().String("amount-tolerance", "0", "default amount tolerance when a request sets none")

	viper.BindPFlag("serve.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("serve.allowed-origins", serveCmd.Flags().Lookup("allowed-origins"))
	viper.BindPFlag("serve.amount-tolerance", serveCmd.Flags().Lookup("amount-tolerance"))
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.GetGlobalLogger()

	serverConfig, err := config.CreateServerConfig(viper.GetInt("serve.port"), viper.GetStringSlice("serve.allowed-origins"))
	if err != nil {
		return err
	}
	serviceConfig, err := config.CreateServiceConfig(viper.GetString("serve.amount-tolerance"), false)
	if err != nil {
		return err
	}
	if err := config.ApplyParserSettings(viper.GetViper(), serviceConfig); err != nil {
		return err
	}

	svc, err := service.New(serviceConfig, log)
	if err != nil {
		return err
	}

	if !viper.GetBool("verbose") {
		gin.SetMode(gin.ReleaseMode)
	}
	server, err := api.NewServer(serverConfig, svc, log)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
