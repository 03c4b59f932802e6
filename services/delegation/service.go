// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package delegation

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianDelegate/services/delegation/observability"
	"github.com/AleutianAI/AleutianDelegate/services/delegation/routes"
	"github.com/AleutianAI/AleutianDelegate/services/graphrag"
	"github.com/AleutianAI/AleutianDelegate/services/graphstore"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the delegation service.
//
// # Description
//
// Service abstracts the service lifecycle, enabling testing and
// alternative implementations. Only essential lifecycle methods are
// exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine

	// Registry returns the delegation registry so embedding applications
	// can register agents and open request scopes.
	Registry() *Registry
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds delegation service configuration options.
//
// # Description
//
// Config centralizes all configuration for the delegation service. Values
// can be populated from environment variables (see cmd/delegated),
// config files, or programmatically for testing.
//
// # Required Fields
//
// None - all fields have sensible defaults, though without a reachable
// Neo4j instance the service refuses to start: the analytics surface is
// the point of this service, so a missing graph store is fatal rather
// than degraded.
type Config struct {
	// Port is the HTTP server port. Default: 12230
	Port int

	// Graph holds the Neo4j connection settings.
	Graph graphstore.Config

	// WeaviateURL is the vector store URL for semantic insights.
	// If empty, the hybrid recommendation endpoint is disabled and the
	// service serves graph analytics only.
	WeaviateURL string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "aleutian-otel-collector:4317"
	OTelEndpoint string

	// DeploymentID groups persisted records by release or pipeline run.
	DeploymentID string

	// DelegationDisabled turns the dispatch subsystem off; the analytics
	// surface stays up.
	DelegationDisabled bool

	// DisableTimeout turns off per-delegation timeout enforcement.
	DisableTimeout bool

	// GinMode sets the Gin framework mode: "debug", "release", "test".
	// Default: uses GIN_MODE env var or "debug".
	GinMode string
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Fields
//
//   - config: Service configuration
//   - router: Gin HTTP engine
//   - store: Persistent graph store (never nil after New)
//   - registry: Delegation dispatcher
//   - synthesizer: Recommendation synthesizer; the structural side is
//     always the graph store, the semantic side is nil without Weaviate
//   - tracerCleanup: Function to shutdown tracer on exit
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config        Config
	router        *gin.Engine
	store         *graphstore.Store
	registry      *Registry
	synthesizer   *graphrag.Synthesizer
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new delegation Service with the given configuration.
//
// # Description
//
// New initializes all service components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Initializes Prometheus metrics
//  4. Connects to the Neo4j graph store and applies the schema
//  5. Builds the recommendation synthesizer (semantic side if configured)
//  6. Builds the delegation registry
//  7. Sets up HTTP routes
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run delegation service
//   - error: Non-nil if initialization fails
//
// # Examples
//
//	cfg := delegation.Config{Port: 12230}
//	svc, err := delegation.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
//
// # Assumptions
//
//   - Neo4j is running and reachable at the configured URI
//   - The OTel collector endpoint may be unreachable; spans are dropped
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	observability.InitMetrics()
	slog.Info("Initialized Prometheus metrics for delegation")

	if err := s.initGraphStore(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize graph store: %w", err)
	}

	if err := s.initSynthesizer(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize synthesizer: %w", err)
	}

	s.registry = NewRegistry(s.store, RegistryConfig{
		DeploymentID:   s.config.DeploymentID,
		Disabled:       s.config.DelegationDisabled,
		DisableTimeout: s.config.DisableTimeout,
	})

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting delegation server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Registry returns the delegation registry for agent registration and
// request scopes.
func (s *service) Registry() *Registry {
	return s.registry
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12230
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "aleutian-otel-collector:4317"
	}
	cfg.Graph.EnsureDefaults()
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Limitations
//
//   - Uses insecure gRPC connection (appropriate for internal networks)
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("delegation-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initGraphStore connects to Neo4j and applies the schema.
func (s *service) initGraphStore() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := graphstore.NewStore(ctx, s.config.Graph)
	if err != nil {
		return err
	}
	if err := store.InitSchema(ctx); err != nil {
		_ = store.Close(ctx)
		return err
	}
	s.store = store
	return nil
}

// initSynthesizer builds the recommendation synthesizer. The structural
// side is always the graph store; the semantic side is added when a vector
// store URL is configured and reachable. A semantic failure disables the
// hybrid endpoint only - the target cross-check and structural analytics
// stay fully available.
func (s *service) initSynthesizer() error {
	var insights graphrag.ContextAugmenter
	if retriever := s.initRetriever(); retriever != nil {
		insights = retriever
	}

	synthesizer, err := graphrag.NewSynthesizer(insights, s.store)
	if err != nil {
		return err
	}
	s.synthesizer = synthesizer
	return nil
}

// initRetriever creates the Weaviate-backed insight retriever when a vector
// store URL is configured. Returns nil when unconfigured or unreachable.
func (s *service) initRetriever() *graphrag.InsightRetriever {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")

	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("Weaviate URL not configured, hybrid recommendations disabled")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("Invalid Weaviate URL, hybrid recommendations disabled",
			"url", weaviateURL)
		return nil
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Warn("Failed to create Weaviate client, hybrid recommendations disabled",
			"error", err)
		return nil
	}

	retriever, err := graphrag.NewInsightRetriever(client)
	if err != nil {
		slog.Warn("Failed to create insight retriever, hybrid recommendations disabled",
			"error", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := retriever.EnsureSchema(ctx); err != nil {
		slog.Warn("Vector store schema initialization failed, hybrid recommendations disabled",
			"error", err)
		return nil
	}

	slog.Info("Weaviate client initialized, hybrid recommendations enabled",
		"url", weaviateURL)
	return retriever
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("delegation-service"))

	routes.SetupRoutes(s.router, s.store, s.synthesizer)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.store.Close(ctx); err != nil {
			slog.Warn("graph store close error", "error", err)
		}
		cancel()
	}

	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
