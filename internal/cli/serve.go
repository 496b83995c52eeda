package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sawane/loom/internal/tracing"
	"github.com/sawane/loom/pkg/gateway"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway server",
	Long: `Run the gateway server: REST endpoints for conversation management, a
websocket chat endpoint streaming turn events, and health plus metrics
surfaces. Blocks until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := tracing.InitOpenTelemetry("loom"); err != nil {
		rt.logger.Warn().Err(err).Msg("Tracing unavailable")
	}
	defer func() {
		_ = tracing.ShutdownOpenTelemetry(cmd.Context())
	}()

	stopRetention, err := rt.startRetention()
	if err != nil {
		return err
	}
	defer func() {
		_ = stopRetention()
	}()

	server, err := gateway.NewServer(gateway.Config{
		Host:   rt.cfg.Gateway.Host,
		Port:   rt.cfg.Gateway.Port,
		Store:  rt.store,
		Agents: rt.registry,
		Logger: rt.logger,
	})
	if err != nil {
		return err
	}

	if err := server.Start(); err != nil {
		return err
	}

	fmt.Printf("Gateway listening on %s:%d\n", rt.cfg.Gateway.Host, rt.cfg.Gateway.Port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	return server.Stop()
}
