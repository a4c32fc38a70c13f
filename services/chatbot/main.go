package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/EdisonLim17/ai-tech-support-chatbot/services/chatbot/conversation"
	"github.com/EdisonLim17/ai-tech-support-chatbot/services/chatbot/observability"
	"github.com/EdisonLim17/ai-tech-support-chatbot/services/chatbot/pipeline"
	"github.com/EdisonLim17/ai-tech-support-chatbot/services/chatbot/routes"
	"github.com/EdisonLim17/ai-tech-support-chatbot/services/llm"
	"github.com/EdisonLim17/ai-tech-support-chatbot/services/policy_engine"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		slog.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, tracing disabled")
		return func(context.Context) {}, nil
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("chatbot-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	port := os.Getenv("CHATBOT_PORT")
	if port == "" {
		port = "12310"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	dataDir := os.Getenv("CHATBOT_DATA_DIR")
	if dataDir == "" {
		dataDir = "/var/lib/chatbot/conversations"
		slog.Warn("CHATBOT_DATA_DIR not set, defaulting", "path", dataDir)
	}
	storeCfg := conversation.DefaultConfig(dataDir)
	storeCfg.Logger = logger
	store, err := conversation.Open(storeCfg)
	if err != nil {
		log.Fatalf("FATAL: Could not open the conversation store: %v", err)
	}
	defer store.Close()

	validator, err := policy_engine.NewValidator()
	if err != nil {
		log.Fatalf("FATAL: Could not initialize the policy validator: %v", err)
	}
	if domains := os.Getenv("CHATBOT_ALLOWED_DOMAINS"); domains != "" {
		var allowed []string
		for _, d := range strings.Split(domains, ",") {
			if d = strings.TrimSpace(d); d != "" {
				allowed = append(allowed, d)
			}
		}
		validator.SetAllowedDomains(allowed)
		slog.Info("Using allowed domains from environment", "count", len(allowed))
	}

	log.Println("Configuring the LLM Client")
	llmClient, err := llm.NewOpenAIClient()
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	cfg := pipeline.DefaultConfig()
	if prompt := os.Getenv("CHATBOT_SYSTEM_PROMPT"); prompt != "" {
		cfg.SystemPrompt = prompt
	}

	metrics := observability.NewPipelineMetrics(prometheus.DefaultRegisterer)
	pipe := pipeline.New(store, llmClient, validator, cfg, metrics)

	router := gin.Default()
	router.Use(otelgin.Middleware("chatbot-service"))
	routes.SetupRoutes(router, pipe, os.Getenv("CHATBOT_API_KEY"))

	server := &http.Server{Addr: ":" + port, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Starting the chatbot server", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
}
