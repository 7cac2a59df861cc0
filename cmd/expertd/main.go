// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nostrband/libaskexperts/config"
	"github.com/nostrband/libaskexperts/expert"
	"github.com/nostrband/libaskexperts/health"
	"github.com/nostrband/libaskexperts/internal/logger"
	"github.com/nostrband/libaskexperts/internal/metrics"
	"github.com/nostrband/libaskexperts/pkg/version"
	"github.com/nostrband/libaskexperts/registry"
)

const defaultBidSats = 21

const defaultAnswerText = "no on_question handler configured for this expertd build"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "expertd",
	Short: "Expert Agent Core daemon - answers paid questions over Nostr",
	Long: `expertd runs the Expert Agent Core: it listens for Asks, bids on the
ones its decision handler accepts, and answers Questions backed by settled
Lightning payments over Nostr Wallet Connect.

This build wires On Ask to a fixed-price bid on every ask and On Question
to a fixed placeholder answer; embed the expert package directly for a real
decision/answer policy.`,
	Version: version.String(),
	RunE:    runServe,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the daemon config file")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.Load(config.LoaderOptions{
		ConfigDir:   ".",
		Environment: config.GetEnvironment(),
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.GetDefaultLogger()
	log.Info("starting expertd", logger.String("version", version.Short()), logger.String("environment", fileCfg.Environment))

	agentCfg := expert.Config{
		NWCString:      fileCfg.NWCString,
		ExpertPrivKey:  fileCfg.ExpertPrivKey,
		AskRelays:      fileCfg.AskRelays,
		QuestionRelays: fileCfg.QuestionRelays,
		Hashtags:       fileCfg.Hashtags,
		BidTimeout:     fileCfg.BidTimeout,
		Logger:         log,
		OnAsk:          echoDecision,
		OnQuestion:     echoAnswer,
	}

	agent, err := expert.New(agentCfg)
	if err != nil {
		return fmt.Errorf("construct agent: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := agent.Start(ctx); err != nil {
		return fmt.Errorf("start agent: %w", err)
	}
	defer agent.Stop()

	checker := health.NewHealthChecker(5 * time.Second)
	relays := append(append([]string{}, fileCfg.AskRelays...), fileCfg.QuestionRelays...)
	checker.RegisterCheck("relay_connectivity", health.RelayHealthCheck(relays, agent.RelayConnected))
	checker.RegisterCheck("nwc_reachability", health.NWCHealthCheck(agent.PingWallet))

	var httpServers []*http.Server
	if fileCfg.Metrics != nil && fileCfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(fileCfg.Metrics.Path, metrics.Handler())
		srv := &http.Server{Addr: fileCfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		httpServers = append(httpServers, srv)
		go func() {
			log.Info("metrics server listening", logger.String("addr", fileCfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", logger.Error(err))
			}
		}()
	}
	if fileCfg.Health != nil && fileCfg.Health.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc(fileCfg.Health.Path, func(w http.ResponseWriter, r *http.Request) {
			status := checker.GetOverallStatus(r.Context())
			if status != health.StatusHealthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			fmt.Fprintf(w, `{"status":"%s"}`, status)
		})
		srv := &http.Server{Addr: fileCfg.Health.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		httpServers = append(httpServers, srv)
		go func() {
			log.Info("health server listening", logger.String("addr", fileCfg.Health.Addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("health server failed", logger.Error(err))
			}
		}()
	}

	log.Info("expertd ready", logger.String("pubkey", agent.PubKey()))
	<-ctx.Done()
	log.Info("shutdown signal received, stopping")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	for _, srv := range httpServers {
		_ = srv.Shutdown(shutdownCtx)
	}
	return nil
}

// echoDecision is the default On Ask handler: bid a nominal amount on every
// ask, for operators who haven't wired a pricing policy yet.
func echoDecision(ctx context.Context, ask registry.Ask) (*registry.BidDecision, error) {
	return &registry.BidDecision{Content: "happy to help", Sats: defaultBidSats}, nil
}

// echoAnswer is the default On Question handler: it ignores the question
// and returns the fixed defaultAnswerText, for operators who haven't wired
// a real answering policy yet.
func echoAnswer(ctx context.Context, ask registry.Ask, bidPayload registry.BidDecision, question registry.Question, history []registry.Turn) (registry.Answer, error) {
	return registry.Answer{Content: defaultAnswerText}, nil
}
