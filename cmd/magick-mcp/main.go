package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ironsheep/magick-tools-mcp/internal/config"
	"github.com/ironsheep/magick-tools-mcp/internal/magick"
	"github.com/ironsheep/magick-tools-mcp/internal/server"
	"github.com/ironsheep/magick-tools-mcp/internal/worker"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "--version", "-v", "version":
		fmt.Printf("magick-tools-mcp %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return
	case "--help", "-h", "help":
		printHelp()
		return
	case "serve", "check", "worker":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		printHelp()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Logging goes to stderr (stdout is for MCP protocol)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := magick.New(cfg.Backend,
		magick.WithBinDir(cfg.BinDir),
		magick.WithTimeout(cfg.Timeout),
		magick.WithLogger(logger),
	)

	switch command {
	case "check":
		os.Exit(runCheck(ctx, client))
	case "worker":
		err = runWorker(ctx, cfg, client, logger)
	default:
		err = runServer(ctx, cfg, client, logger)
	}
	if err != nil {
		logger.Error("exiting", "command", command, "error", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("magick-tools-mcp - ImageMagick and GraphicsMagick over MCP")
	fmt.Println()
	fmt.Println("Usage: magick-tools-mcp [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve            Run the MCP server on stdin/stdout (default)")
	fmt.Println("  worker           Process jobs from RabbitMQ with files in S3")
	fmt.Println("  check            Report whether the image tools are installed")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables (also read from .env and .env.$APP_ENV):")
	fmt.Println("  MAGICK_BACKEND=imagemagick|graphicsmagick")
	fmt.Println("  MAGICK_BIN_DIR=/opt/magick/bin    Look up tools here instead of PATH")
	fmt.Println("  MAGICK_TIMEOUT_MS=10000           Per-process timeout")
	fmt.Println("  MAGICK_LOG_LEVEL=debug            Log level")
	fmt.Println("  PREVIEW_MAX_SIDE=256              Preview size")
	fmt.Println("  RABBITMQ_URL, RABBITMQ_QUEUE, RABBITMQ_STATUS_EXCHANGE,")
	fmt.Println("  RABBITMQ_STATUS_ROUTING_KEY, AWS_BUCKET_NAME, WORK_DIR,")
	fmt.Println("  WORKER_CONCURRENCY, PRESIGN_TTL   Worker settings")
	fmt.Println()
	fmt.Println("The server communicates via MCP protocol over stdin/stdout.")
	fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
}

func runCheck(ctx context.Context, client *magick.Client) int {
	health, err := client.CheckInstalled(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("%s: %s\n", health.Backend, health.Version)
	return 0
}

func runServer(ctx context.Context, cfg *config.Config, client *magick.Client, logger *slog.Logger) error {
	logger.Debug("starting MCP server", "version", Version, "built", BuildTime, "commit", GitCommit)

	if health, err := client.CheckInstalled(ctx); err != nil {
		logger.Warn("image tools unavailable, operations will fail", "error", err)
	} else {
		logger.Info("image tools found", "backend", health.Backend, "version", health.Version)
	}

	srv := server.New(client,
		server.WithPreviewMaxSide(cfg.PreviewMaxSide),
		server.WithVersion(Version),
		server.WithLogger(logger),
	)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runWorker(ctx context.Context, cfg *config.Config, client *magick.Client, logger *slog.Logger) error {
	if err := cfg.ValidateWorker(); err != nil {
		return err
	}
	if _, err := client.CheckInstalled(ctx); err != nil {
		return err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("load AWS configuration: %w", err)
	}
	store := worker.NewS3Store(s3.NewFromConfig(awsCfg), cfg.BucketName, logger)

	publisher := worker.NewAMQPPublisher(cfg.StatusExchange, cfg.StatusRoutingKey)
	processor := worker.NewProcessor(client, store, publisher, worker.ProcessorConfig{
		WorkDir:     cfg.WorkDir,
		Concurrency: cfg.Concurrency,
		PresignTTL:  cfg.PresignTTL,
	}, logger)

	consumer := worker.NewConsumer(worker.ConsumerConfig{
		URL:            cfg.RabbitMQURL,
		Queue:          cfg.Queue,
		StatusExchange: cfg.StatusExchange,
		Prefetch:       cfg.Concurrency,
	}, processor, publisher, logger)

	logger.Info("worker started", "queue", cfg.Queue, "bucket", cfg.BucketName, "backend", cfg.Backend)
	return consumer.Run(ctx)
}
