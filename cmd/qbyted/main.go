// qbyted serves the generation and analysis API over HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/qbyte.report/internal/api"
	"github.com/banshee-data/qbyte.report/internal/regdb"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	dataDir    = flag.String("data-dir", "data", "Directory for trial log files")
	dbPath     = flag.String("db", "qbyte.db", "Path to the run catalog database")
	serialPath = flag.String("serial", "", "Serial device path for a TrueRNG entropy source")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}

	db, err := regdb.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open run catalog: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatalf("failed to migrate run catalog: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(api.CORSMiddleware(api.NewServer(*dataDir, db, *serialPath).ServeMux())),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		log.Printf("listening on %s (data dir %s)", *listen, *dataDir)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
