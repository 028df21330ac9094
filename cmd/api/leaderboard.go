package main

import (
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"campus/api/internal/appstate"
	"campus/api/internal/client"
	"campus/api/internal/leaderboard"
	"campus/api/internal/livelist"
	"campus/api/internal/localstore"
	"campus/api/internal/realtime"
)

func newLeaderboardCmd() *cobra.Command {
	var (
		apiURL string
		token  string
		follow bool
	)
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the live leaderboard from a running API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			api := client.New(apiURL, &http.Client{Timeout: 15 * time.Second})
			local, err := localstore.Open(ctx, cfg.LocalStoreDSN, logger)
			if err != nil {
				return err
			}

			var bus realtime.Bus
			if follow && strings.TrimSpace(cfg.NATSURL) != "" {
				natsBus, err := realtime.NewNATSBus(realtime.NATSConfig{URL: cfg.NATSURL, Name: "campus-leaderboard"}, logger)
				if err != nil {
					_ = local.Close()
					return err
				}
				bus = natsBus
			}

			state := appstate.New(api, bus, local, logger)
			defer state.Close()

			if token != "" {
				api.SetToken(token)
			} else if _, err := state.RestoreSession(ctx); err != nil {
				logger.Warn("no usable stored session", zap.Error(err))
			}

			out := cmd.OutOrStdout()
			updates := make(chan livelist.Snapshot[leaderboard.Entry], 1)
			board, unmount, err := state.Leaderboard(func(s livelist.Snapshot[leaderboard.Entry]) {
				select {
				case updates <- s:
				default:
					// Drop intermediate snapshots; the latest is read below.
				}
			})
			if err != nil {
				return err
			}
			defer unmount()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-updates:
					printLeaderboard(out, board.Snapshot().Data)
					if !follow {
						return nil
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&apiURL, "api-url", "http://localhost:8787", "base URL of the campus API")
	cmd.Flags().StringVar(&token, "token", "", "access token; defaults to the locally stored session")
	cmd.Flags().BoolVar(&follow, "follow", false, "keep printing as credits change")
	return cmd
}

func printLeaderboard(w io.Writer, entries []leaderboard.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no verified users yet")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%2d. %-20s %6d\n", e.Position, e.Username, e.Credits)
	}
	fmt.Fprintln(w)
}
