package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreybb/qcdash/api"
	"github.com/coreybb/qcdash/config"
	"github.com/coreybb/qcdash/console"
	"github.com/coreybb/qcdash/delivery"
	"github.com/coreybb/qcdash/qcclient"
	rh "github.com/coreybb/qcdash/route-handlers"
	"github.com/coreybb/qcdash/scheduler"
	"github.com/coreybb/qcdash/table"
)

const (
	initialLoadTimeout = 10 * time.Second
	listTimeout        = 30 * time.Second
)

const usage = `Usage: qcdash [-config file] [command]

Commands:
  serve             run the dashboard API (default)
  list [flags]      print the delivery table
  upload <zip>      upload a delivery with resumable chunks
`

func main() {
	// Parse command line flags
	configFile := flag.String("config", "", "Config file path (optional)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Configuration failed: %v", err)
	}
	if cfg.QC.APIKey == "" {
		log.Println("WARNING: QC_API_KEY not set. Requests to the QC server are sent unauthenticated.")
	}

	client := qcclient.New(cfg.QC.ServerURL,
		qcclient.WithAPIKey(cfg.QC.APIKey),
		qcclient.WithTimeout(cfg.QC.Timeout),
	)

	args := flag.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		serve(cfg, client)
	case "list":
		if err := list(cfg, client, args); err != nil {
			log.Fatalf("List failed: %v", err)
		}
	case "upload":
		if err := upload(cfg, client, args); err != nil {
			log.Fatalf("Upload failed: %v", err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func serve(cfg *config.Config, client *qcclient.Client) {
	deliveryTables := table.NewRegistry(client, cfg.Capabilities(), table.DefaultMaxTables)

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), initialLoadTimeout)
	if _, err := deliveryTables.Load(loadCtx, cfg.InitialQuery(), false); err != nil {
		log.Printf("WARNING: Initial delivery load failed, pages will retry: %v", err)
	}
	cancelLoad()

	deliveryService := delivery.NewService(client, deliveryTables)

	deliveryHandler := rh.NewDeliveryHandler(deliveryTables, deliveryService, client)
	jobHandler := rh.NewJobHandler(client, deliveryService)
	productHandler := rh.NewProductHandler(client)

	// Initialize scheduler
	jobScheduler := scheduler.New(deliveryTables, client, cfg.Poll.Interval, cfg.Poll.Concurrency)

	router := api.SetupRoutes(deliveryHandler, jobHandler, productHandler, jobScheduler)

	jobScheduler.Start(context.Background())
	defer jobScheduler.Stop()

	startServer(cfg.Server.Port, cfg.Server.ShutdownTimeout, router)
}

func list(cfg *config.Config, client *qcclient.Client, args []string) error {
	params := cfg.InitialQuery()
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	fs.StringVar(&params.Search, "search", "", "Filter by filename or product")
	fs.IntVar(&params.Limit, "limit", params.Limit, "Rows per page")
	fs.IntVar(&params.Offset, "offset", 0, "Rows to skip")
	fs.StringVar(&params.Sort, "sort", params.Sort, "Sort column")
	fs.StringVar(&params.Order, "order", params.Order, "Sort order (asc or desc)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
	defer cancel()

	deliveryTable := table.New(client, cfg.Capabilities())
	snap, _, err := deliveryTable.Load(ctx, params)
	if err != nil {
		return err
	}
	console.WriteDeliveries(os.Stdout, snap.Rows, snap.Total)
	if n := snap.Skipped; n > 0 {
		log.Printf("WARNING: %d malformed rows were skipped", n)
	}
	return nil
}

func upload(cfg *config.Config, client *qcclient.Client, args []string) error {
	if len(args) != 1 {
		return errors.New("upload expects exactly one file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := client.Upload(ctx, args[0], cfg.Upload.ChunkSize, func(p qcclient.Progress) {
		console.WriteProgress(os.Stdout, p)
	})
	if err != nil {
		return err
	}
	if res.Resumed > 0 {
		log.Printf("Resumed upload, %d chunks were already on the server", res.Resumed)
	}
	log.Printf("Uploaded %s to %s", res.Filename, res.URL)
	return nil
}

func startServer(port string, shutdownTimeout time.Duration, router http.Handler) {
	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on port %s", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownSignal // Block until signal received
	log.Println("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}

	log.Println("Server gracefully stopped")
}
