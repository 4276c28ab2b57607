package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go.aimuz.me/thinkbox/backend"
	"go.aimuz.me/thinkbox/supervisor"
)

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend health and Think Box settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Config:   %s\n", cfg.File())
			fmt.Fprintf(out, "Session:  %s\n", cfg.SessionID)
			fmt.Fprintf(out, "Backend:  %s\n", cfg.Backend.APIBase())

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			prober := supervisor.NewProber(cfg.Backend.Health(), cfg.SessionID)
			if !prober.Healthy(ctx) {
				fmt.Fprintf(out, "Health:   unreachable (%s)\n", prober.URL())
				return nil
			}
			fmt.Fprintln(out, "Health:   ready")

			client := backend.New(cfg.Backend.APIBase(), cfg.SessionID, backend.Options{})
			st, err := client.OverlaySettings(ctx)
			if err != nil {
				return fmt.Errorf("fetch settings: %w", err)
			}
			hotkey := st.Hotkey
			if cfg.Hotkey != "" {
				hotkey = cfg.Hotkey + " (config override)"
			}
			fmt.Fprintf(out, "Hotkey:   %s (enabled: %t)\n", hotkey, st.Enabled)
			fmt.Fprintf(out, "Position: %s, %.0f%%\n", st.Position, st.SizePercent)
			return nil
		},
	}
}

func newBackendCommand(opts *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Start the backend in the foreground and stop it on interrupt",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, err := opts.setupLogging(cfg, "")
			if err != nil {
				return err
			}
			defer logger.Close()

			if timeout <= 0 {
				timeout = cfg.Backend.StartTimeout()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			sup := supervisor.New(supervisor.Options{
				Prober:     supervisor.NewProber(cfg.Backend.Health(), cfg.SessionID),
				BackendDir: cfg.Backend.DirOverride(),
				Python:     cfg.Backend.PythonOverride(),
				Host:       cfg.Backend.Host,
				Port:       cfg.Backend.Port,
				Output:     os.Stderr,
				OnPhase: func(phase supervisor.Phase, message string) {
					fmt.Fprintf(out, "%-20s %s\n", phase, message)
				},
			})
			defer sup.Shutdown()

			if _, err := sup.EnsureReady(ctx, timeout); err != nil {
				return err
			}
			if !sup.State().OwnsChild {
				fmt.Fprintln(out, "Backend was already running; nothing to supervise.")
				return nil
			}

			<-ctx.Done()
			fmt.Fprintln(out, "Stopping backend...")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "How long to wait for the backend health check")
	return cmd
}
