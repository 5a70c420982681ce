package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start an HTTP server to drive sessions remotely.

Sessions are started, moved through their steps and stopped with POST
requests; recorder events stream to websocket clients on /ws. The
server logs its local network URL for access from other devices.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")
		host, _ := cmd.Flags().GetString("host")

		logger := slog.Default()
		hub := server.NewHub(logger.With("component", "hub"))
		rt, err := newRuntime(cfg, cfgFile, hub)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.New(rt.service, hub, cfgFile, net.JoinHostPort(host, port), logger.With("component", "server"))
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		slog.Info("Server stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "8080", "port for the web server")
	serveCmd.Flags().String("host", "", "interface to listen on (default all)")
}
