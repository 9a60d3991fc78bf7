package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/sbom-tm/internal/infra/httpserver"
	"github.com/bryanwahyu/sbom-tm/internal/middleware"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(root *rootFlags) *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := newApp(ctx, cmd, root, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if host == "" {
				host = a.cfg.Server.Host
			}
			if port == 0 {
				port = a.cfg.Server.Port
			}
			router := newRouter(ctx, a)

			addr := net.JoinHostPort(host, strconv.Itoa(port))
			srv := &http.Server{
				Addr:         addr,
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			fmt.Fprintf(cmd.OutOrStdout(), "[SBOM-TM] starting API on http://%s\n", addr)
			serveErr := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			// graceful shutdown
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(stop)
			select {
			case err := <-serveErr:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case <-stop:
			}
			a.log.Info("shutting down server")

			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			if err := srv.Shutdown(sctx); err != nil {
				a.log.Error("shutdown error", "error", err)
			}
			// tunggu scan background selesai sebelum tutup db
			router.Wait()
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Listen host (default server.host)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (default server.port)")
	return cmd
}

// newRouter builds the API handler and starts the limiter sweeper, which
// stops with ctx.
func newRouter(ctx context.Context, a *app) *httpserver.Router {
	health := map[string]middleware.HealthChecker{
		"database": &middleware.DatabaseHealthChecker{DB: a.repos.DB},
	}
	if a.redis != nil {
		health["redis"] = &middleware.RedisHealthChecker{Client: a.redis}
	}

	var limiter *middleware.RateLimiter
	if a.cfg.Server.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(a.cfg.Server.RateLimit, a.cfg.Server.RefillRate)
		go limiter.RunSweeper(ctx, time.Minute, 10*time.Minute)
	}

	return httpserver.NewRouter(httpserver.Options{
		Scans:       a.scans,
		AI:          a.ai,
		Rules:       a.rules,
		Metrics:     middleware.NewMetrics(),
		Health:      health,
		APIKeys:     middleware.ParseAPIKeys(a.cfg.Server.APIKeys),
		Limiter:     limiter,
		CORSOrigins: a.cfg.Server.CORSOrigin,
		Log:         a.log,
	})
}
