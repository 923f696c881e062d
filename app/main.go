package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/coldtoo/saveq/config"
	"github.com/coldtoo/saveq/log"
	"github.com/coldtoo/saveq/saveq"
	"github.com/coldtoo/saveq/saveq/metrics"
	"github.com/coldtoo/saveq/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// main wires up a single member's save queue: config, logging, a pebble
// backed storage adapter, a metrics collector, and a notifier that just
// logs index advances. It is a runnable demonstration of the pipeline
// described in the save queue package, not a full cluster member.
func main() {
	confPath := flag.String("config", "config.yaml", "path to the yaml config file")
	memberID := flag.Uint64("member-id", 1, "member id this process owns in storage")
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve /metrics on")
	flag.Parse()

	if err := config.InitConfig(*confPath); err != nil {
		panic(err)
	}
	log.InitLog(config.GetZapConf())

	adapter, err := storage.NewPebbleAdapter(config.GetDBConf().DBPath)
	if err != nil {
		log.Fatal("open storage adapter").Err("error", err).Record()
	}

	collector, err := metrics.NewCollector(nil, strconv.FormatUint(*memberID, 10))
	if err != nil {
		log.Fatal("build metrics collector").Err("error", err).Record()
	}

	notifier := saveq.NotifierFunc(func(isError, deleted bool) {
		if isError {
			log.Warn("saveq: index update reported an error").Record()
			return
		}
		log.Debug("saveq: index updated").Bool("deleted", deleted).Record()
	})

	q, err := saveq.New(*memberID, adapter, notifier, saveq.WithMetrics(collector))
	if err != nil {
		log.Fatal("construct save queue").Err("error", err).Record()
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := q.Start(ctx); err != nil {
		log.Fatal("start save queue").Err("error", err).Record()
	}

	http.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server exited").Err("error", err).Record()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	cancel()
	if err := q.Stop(); err != nil {
		log.Error("save queue shutdown reported an error").Err("error", err).Record()
	}
}
