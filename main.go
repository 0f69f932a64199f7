package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearclaim/claim-agent/agent"
	"github.com/clearclaim/claim-agent/api"
	"github.com/clearclaim/claim-agent/config"
	"github.com/clearclaim/claim-agent/database"
	"github.com/clearclaim/claim-agent/embeddings"
	"github.com/clearclaim/claim-agent/history"
	"github.com/clearclaim/claim-agent/ingestion"
	"github.com/clearclaim/claim-agent/search"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "query":
		queryCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.HTTPAddr, "address for the HTTP API to listen on")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, store, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("store setup: %v", err)
	}
	defer pool.Close()

	orch := agent.New(store, logger)
	historyStore := history.NewStore(pool)
	ingestor := ingestion.NewService(store, logger)

	server := api.New(cfg, logger, orch, historyStore, ingestor, store, pool)

	httpServer := &http.Server{Addr: *addr, Handler: server.Handler()}
	go func() {
		<-ctx.Done()
		if err := httpServer.Shutdown(context.Background()); err != nil {
			logger.Printf("http shutdown: %v", err)
		}
	}()

	logger.Printf("claim-agent API listening on %s (search=%s, embeddings=%s)", *addr, cfg.Search.Provider, cfg.Embeddings.Provider)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("http server: %v", err)
	}
}

func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	dataDir := flags.String("dir", cfg.DataDir, "path to directory containing policy documents")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, store, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("store setup: %v", err)
	}
	defer pool.Close()

	svc := ingestion.NewService(store, logger)
	logger.Printf("ingesting policy documents from %s using %s/%s embeddings", *dataDir, strings.ToUpper(cfg.Embeddings.Provider), cfg.Embeddings.Model)

	if err := svc.IngestDirectory(ctx, *dataDir); err != nil {
		logger.Fatalf("ingestion failed: %v", err)
	}
}

func queryCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("query", flag.ExitOnError)
	question := flags.String("question", "", "claim query to evaluate")
	limit := flags.Int("limit", cfg.MaxChunks, "number of policy fragments to retrieve")
	trace := flags.Bool("trace", false, "print the per-stage trace after the answer")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse query flags: %v", err)
	}

	if strings.TrimSpace(*question) == "" {
		logger.Fatal("a question is required (use --question)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, store, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("store setup: %v", err)
	}
	defer pool.Close()

	orch := agent.New(store, logger)
	result := orch.Run(ctx, *question, *limit, true)

	resp := result.FinalResponse
	fmt.Printf("Decision: %s\n", resp.Decision)
	if resp.Amount != nil {
		fmt.Printf("Amount: %.2f\n", *resp.Amount)
	}
	fmt.Printf("Confidence: %.2f (%s)\n", resp.ConfidenceScore, agent.ConfidenceLevel(resp.ConfidenceScore))
	fmt.Println()
	fmt.Println(resp.Justification)

	if len(resp.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for idx, source := range resp.Sources {
			location := source.Document
			if source.Page != nil {
				location = fmt.Sprintf("%s, page %d", source.Document, *source.Page)
			}
			fmt.Printf("%d. %s (confidence %.2f)\n", idx+1, location, source.Confidence)
		}
	}

	if *trace {
		fmt.Println()
		fmt.Printf("Processed in %d ms across %d steps:\n", result.TotalTimeMs, len(result.Steps))
		for _, step := range result.Steps {
			fmt.Printf("- [%s] %s: %s\n", step.StageName, step.Action, step.Reasoning)
		}
	}
}

func clearCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse clear flags: %v", err)
	}

	if !*confirmed {
		logger.Fatal("refusing to clear indexed policy documents without --confirm")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, store, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("store setup: %v", err)
	}
	defer pool.Close()

	if err := store.Clear(ctx); err != nil {
		logger.Fatalf("clear indexed documents: %v", err)
	}
	logger.Println("indexed policy documents cleared")
}

func openStores(ctx context.Context, cfg config.Config) (*pgxpool.Pool, search.Store, error) {
	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres connection: %w", err)
	}

	if err := database.EnsureSchema(ctx, pool, cfg.Embeddings.Dimension); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("embedder setup: %w", err)
	}

	store, err := search.NewStore(cfg, pool, embedder)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("search store setup: %w", err)
	}

	return pool, store, nil
}

func printUsage() {
	fmt.Println("Usage: claim-agent <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve    Run the HTTP API for claim queries and chat sessions")
	fmt.Println("  ingest   Ingest policy documents into the vector store (use --dir to override data directory)")
	fmt.Println("  query    Evaluate a single claim query from the command line")
	fmt.Println("  clear    Remove indexed policy documents")
}
