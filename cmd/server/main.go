// Command server serves replicated documents over websockets.
//
// Clients connect to /ws. With -redis_addr, operations and site IDs are shared through redis,
// so that many servers can serve the same documents.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/brunokim/woot/hub"
	"github.com/brunokim/woot/logging"
	"github.com/brunokim/woot/woot"
)

var (
	port          = flag.Int("port", 8009, "port to run server")
	redisAddr     = flag.String("redis_addr", os.Getenv("REDIS_ADDR"), "redis address for relaying operations between servers. Defaults to $REDIS_ADDR; if empty, operations stay in this process")
	debug         = flag.Bool("debug", false, "whether to dump debug information. Default debug file is log_{{datetime}}.jsonl")
	debugFilename = flag.String("debug_file", "", "file to dump debug information in JSONL format. Implies --debug")
	staticDir     = flag.String("static_dir", "", "Directory with static files")
	poolWarn      = flag.Int("pool_warn", 100, "pool depth above which a warning is logged. Zero disables it")
	logLevel      = flag.String("log_level", "info", "minimum log level: debug, info, warn or error")
)

func main() {
	flag.Parse()
	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log_level: %v\n", err)
		os.Exit(2)
	}
	log := logging.NewDefaultLogger(level)
	if err := run(log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(log logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	relay, sites, closeRedis, err := newBackend(ctx, log)
	if err != nil {
		return err
	}
	defer closeRedis()

	debugMsgs, debugDone := runDebug(log)
	cfg := hub.Config{PoolWarn: *poolWarn}
	if debugMsgs != nil {
		cfg.Trace = traceDebug(debugMsgs, log)
		defer func() {
			close(debugMsgs)
			<-debugDone
		}()
	}
	h := hub.New(cfg, relay, sites, log)
	defer h.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := hub.RegisterMetrics(reg); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(*staticDir)))
	mux.Handle("/ws", h)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("serving", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	// Websocket connections are hijacked and not tracked by Shutdown; the hub closes them.
	h.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Returns the relay and site allocator, backed by redis if an address is configured.
func newBackend(ctx context.Context, log logging.Logger) (hub.Relay, hub.SiteAllocator, func(), error) {
	if *redisAddr == "" {
		log.Info("relaying operations in process")
		return hub.NewLocalRelay(), hub.NewCounterAllocator(), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, nil, fmt.Errorf("could not connect to redis at %s: %w", *redisAddr, err)
	}
	log.Info("relaying operations through redis", "addr", *redisAddr)
	return hub.NewRedisRelay(rdb), hub.NewRedisAllocator(rdb), func() { rdb.Close() }, nil
}

// +-------+
// | Debug |
// +-------+

type debugMessage struct {
	Time time.Time      `json:"time"`
	Doc  string         `json:"doc"`
	Op   woot.Operation `json:"op"`
	Text string         `json:"text"`
}

// Returns a hub trace function queueing debug messages. Messages are dropped if the writer
// can't keep up, so documents never wait on the debug file.
func traceDebug(debugMsgs chan<- debugMessage, log logging.Logger) func(string, woot.Operation, string) {
	return func(doc string, op woot.Operation, text string) {
		select {
		case debugMsgs <- debugMessage{Time: time.Now(), Doc: doc, Op: op, Text: text}:
		default:
			log.Warn("dropping debug message", "doc", doc)
		}
	}
}

// Starts the debug writer, returning a nil channel if debugging is disabled. Closing the channel
// closes the debug file, and then done.
func runDebug(log logging.Logger) (msgs chan debugMessage, done <-chan struct{}) {
	f := createDebug(log)
	if f == nil {
		return nil, nil
	}
	ch := make(chan debugMessage, 256)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		defer f.Close()
		enc := json.NewEncoder(f)
		for msg := range ch {
			if err := enc.Encode(msg); err != nil {
				log.Error("error while writing to debug file", "error", err)
			}
		}
		f.Sync()
	}()
	return ch, closed
}

func createDebug(log logging.Logger) *os.File {
	if !*debug && *debugFilename == "" {
		return nil
	}
	if *debugFilename == "" {
		datetime := time.Now().Format("2006-01-02T15:04:05")
		*debugFilename = fmt.Sprintf("log_%s.jsonl", datetime)
	}
	debugFile, err := os.Create(*debugFilename)
	if err != nil {
		log.Error("error opening debug file", "error", err)
		return nil
	}
	log.Info("writing debug information", "file", *debugFilename)
	return debugFile
}
