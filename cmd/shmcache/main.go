// Command shmcache runs a shared memory cache instance. The run subcommand
// starts the manager; broker and tracker are the roles it spawns.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/viant/shmcache"
	"github.com/viant/shmcache/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := logger.Get("cmd")
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch role := os.Args[1]; role {
	case "run":
		err = run(ctx, os.Args[2:])
	case "broker", "tracker":
		err = shmcache.RunRole(ctx, role)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("%v", err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s run [-config URL] [-cache on:512MB] [-metrics-address :9090] | broker | tracker\n", os.Args[0])
}

func run(ctx context.Context, args []string) error {
	var configURL, cacheFlag, metricsAddress string
	var inProcess bool
	flags := flag.NewFlagSet("run", flag.ExitOnError)
	flags.StringVar(&configURL, "config", "", "config URL (file://, mem://, s3:// ...)")
	flags.StringVar(&cacheFlag, "cache", "", "cache flag, e.g. on, off or on:512MB")
	flags.StringVar(&metricsAddress, "metrics-address", "", "address serving /metrics")
	flags.BoolVar(&inProcess, "in-process", false, "run broker and tracker as goroutines")
	if err := flags.Parse(args); err != nil {
		return err
	}

	config := shmcache.DefaultConfig()
	if configURL != "" {
		loaded, err := shmcache.LoadConfig(ctx, configURL)
		if err != nil {
			return err
		}
		config = loaded
	}
	if cacheFlag != "" {
		if err := config.ApplyFlag(cacheFlag); err != nil {
			return err
		}
	}
	var options []shmcache.Option
	if !inProcess && config.Executable == "" {
		executable, err := os.Executable()
		if err != nil {
			return err
		}
		options = append(options, shmcache.WithExecutable(executable))
	}
	registry := prometheus.NewRegistry()
	options = append(options, shmcache.WithRegisterer(registry))

	srv, handle, err := shmcache.StartCache(ctx, config, options...)
	if err != nil {
		return err
	}
	encoded, err := handle.Encode()
	if err != nil {
		_ = srv.Stop(context.Background())
		return err
	}
	fmt.Println(encoded)

	var server *http.Server
	if metricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server = &http.Server{Addr: metricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Get("cmd").Errorf("metrics server failed: %v", err)
			}
		}()
	}

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 2*config.StopTimeout+5*time.Second)
	defer cancel()
	if server != nil {
		_ = server.Shutdown(stopCtx)
	}
	return shmcache.StopCache(stopCtx, srv)
}
