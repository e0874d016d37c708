// Copyright 2024 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.

// Command block-builder wires the FSM, job pipeline, nonce manager and
// post-block procedure of spec.md sections 4.1-4.4 into a runnable
// process. It is intentionally thin: every decision lives in
// internal/builder, this file only loads configuration, opens
// connections, and starts the job supervisor.
package main

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"

	"github.com/go-redis/redis/v7"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"github.com/urfave/cli"

	"github.com/klaytn/intmax2-rollup/internal/builder"
	"github.com/klaytn/intmax2-rollup/internal/common"
)

var logger = common.NewModuleLogger("block-builder")

func main() {
	app := cli.NewApp()
	app.Name = "block-builder"
	app.Usage = "intmax2 rollup block builder"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "path to a config file (BLOCK_BUILDER_-prefixed env vars always take precedence)"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		logger.Fatalw("block-builder exited", "err", err)
	}
}

func run(c *cli.Context) error {
	v := viper.New()
	v.SetEnvPrefix("BLOCK_BUILDER")
	v.AutomaticEnv()
	v.SetDefault("DATABASE_URL", "postgres://localhost/block_builder?sslmode=disable")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("VALIDITY_PROVER_URL", "http://localhost:9001")
	v.SetDefault("BUILDER_URL", "http://localhost:9002")
	v.SetDefault("ETH_ALLOWANCE_PER_BLOCK", "0")
	v.SetDefault("METRICS_LISTEN_ADDR", ":9004")
	if cfgPath := c.String("config"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	db, err := gorm.Open("postgres", v.GetString("DATABASE_URL"))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	opt, err := redis.ParseURL(v.GetString("REDIS_URL"))
	if err != nil {
		return fmt.Errorf("parsing redis url: %w", err)
	}
	redisClient := redis.NewClient(opt)
	defer redisClient.Close()

	vpClient := builder.NewValidityProverClient(v.GetString("VALIDITY_PROVER_URL"))
	allowanceInt, ok := new(big.Int).SetString(v.GetString("ETH_ALLOWANCE_PER_BLOCK"), 10)
	if !ok {
		return fmt.Errorf("invalid ETH_ALLOWANCE_PER_BLOCK: %q", v.GetString("ETH_ALLOWANCE_PER_BLOCK"))
	}
	allowance := common.U256FromBig(allowanceInt)
	chain := newChainSeam(vpClient, allowance)

	fsm := builder.NewFSM()
	nonces := builder.NewNonceManager(chain)
	poster := builder.NewPoster(chain, chain, vpClient, chain, chain, nonces, nil)
	queue := builder.NewRedisQueue(redisClient, "block_builder:post_queue")
	registry := newBuilderRegistry(db, vpClient)

	jobs := builder.NewJobs(builder.DefaultConfig(), fsm, registry, queue, poster, v.GetString("BUILDER_URL"))

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		logger.Infow("shutting down")
		cancel()
	}()

	metricsSrv := &http.Server{Addr: v.GetString("METRICS_LISTEN_ADDR"), Handler: promhttp.Handler()}
	go func() {
		<-ctx.Done()
		_ = metricsSrv.Close()
	}()
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorw("metrics server stopped", "err", err)
		}
	}()

	jobs.RunAll(ctx)
	return nil
}
