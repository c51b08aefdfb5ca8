// Command server boots the optimization core's Public API surface (spec.md
// §4.8, C8): it wires the Model Registry, Provider Façade, Event Bus,
// Recovery Store, Insight Extractor, and Orchestrator, then serves the HTTP
// surface, following the teacher's example/cmd/assistant bootstrap shape
// (flag-configured host/port, goa.design/clue/log context logger, a
// sync.WaitGroup/error-channel-driven graceful shutdown on SIGINT/SIGTERM).
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"goa.design/clue/log"

	"github.com/resumeforge/tailorcore/api"
	tailorconfig "github.com/resumeforge/tailorcore/config"
	"github.com/resumeforge/tailorcore/eventbus"
	"github.com/resumeforge/tailorcore/eventbus/pulse"
	"github.com/resumeforge/tailorcore/insight"
	"github.com/resumeforge/tailorcore/model"
	"github.com/resumeforge/tailorcore/model/anthropic"
	"github.com/resumeforge/tailorcore/model/bedrock"
	"github.com/resumeforge/tailorcore/model/middleware"
	"github.com/resumeforge/tailorcore/model/openai"
	"github.com/resumeforge/tailorcore/orchestrator"
	"github.com/resumeforge/tailorcore/recovery"
	"github.com/resumeforge/tailorcore/recovery/inmem"
	recoverymongo "github.com/resumeforge/tailorcore/recovery/mongo"
	"github.com/resumeforge/tailorcore/registry"
	"github.com/resumeforge/tailorcore/telemetry"
)

func main() {
	var (
		hostF     = flag.String("host", "localhost", "Server host")
		httpPortF = flag.String("http-port", "8080", "HTTP port")
		dbgF      = flag.Bool("debug", false, "Log request and response bodies")
		catalogF  = flag.String("catalog", "", "Path to the model catalog YAML file (defaults to a small built-in catalog)")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	cfg := tailorconfig.FromEnv()

	reg := registry.New(cfg)
	if *catalogF != "" {
		if err := reg.LoadYAMLFile(*catalogF); err != nil {
			log.Fatalf(ctx, err, "could not load model catalog")
		}
	} else {
		registerBuiltinCatalog(reg)
	}

	router := model.NewRouter(reg)
	wireProviders(ctx, router, cfg)

	store, closeStore := buildStore(ctx)
	defer closeStore()

	bus := eventbus.New(store, 0, 0)
	if addr := os.Getenv("PULSE_REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		relay, err := pulse.NewRelay(pulse.NewRedisClient(rdb), bus)
		if err != nil {
			log.Fatalf(ctx, err, "could not initialize pulse relay")
		}
		bus.SetForwarder(relay)
	}

	var ins *insight.Extractor
	if cfg.InsightModel != "" {
		ins = insight.New(router, cfg.InsightModel, bus, insight.WithFlush(cfg.InsightFlushChars, cfg.InsightFlushInterval))
	}

	logger := telemetry.NewClueLogger()
	orch := orchestrator.New(reg, store, bus, ins, cfg, router)
	orch.Logger = logger

	srv := api.NewServer(orch, bus, store, api.UnavailableRenderer{}, logger)

	addr := fmt.Sprintf("http://%s", net.JoinHostPort(*hostF, *httpPortF))
	u, err := url.Parse(addr)
	if err != nil {
		log.Fatalf(ctx, err, "invalid host/port")
	}

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(ctx)
	handleHTTPServer(ctx, u, srv, &wg, errc)

	log.Printf(ctx, "exiting (%v)", <-errc)
	cancel()
	wg.Wait()
}

// handleHTTPServer mirrors the teacher's handleHTTPServer: it starts the
// server in a goroutine and shuts it down gracefully when ctx is canceled.
func handleHTTPServer(ctx context.Context, u *url.URL, handler http.Handler, wg *sync.WaitGroup, errc chan error) {
	httpHandler := log.HTTP(ctx)(handler)
	httpSrv := &http.Server{Addr: u.Host, Handler: httpHandler, ReadHeaderTimeout: 60 * time.Second}

	wg.Add(1)
	go func() {
		defer wg.Done()
		go func() {
			log.Printf(ctx, "HTTP server listening on %q", u.Host)
			errc <- httpSrv.ListenAndServe()
		}()
		<-ctx.Done()
		log.Printf(ctx, "shutting down HTTP server at %q", u.Host)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf(ctx, "failed to shutdown: %v", err)
		}
	}()
}

// Initial/max tokens-per-minute budgets seeded per provider for
// middleware.AdaptiveRateLimiter, matching each provider's typical
// pay-as-you-go tier; the limiter backs these off further on observed
// RATE_LIMITED errors and recovers over time (model/middleware/ratelimit.go).
const (
	anthropicInitialTPM, anthropicMaxTPM = 60000, 200000
	openaiInitialTPM, openaiMaxTPM       = 60000, 200000
	bedrockInitialTPM, bedrockMaxTPM     = 60000, 200000
)

// wireProviders registers every provider adapter with credentials present in
// the environment, each wrapped in its own adaptive rate limiter so a
// provider's RATE_LIMITED errors throttle only that provider's calls. A
// provider missing its credential is simply left unregistered; model.Router
// surfaces a clear error only if a request actually resolves to it.
func wireProviders(ctx context.Context, router *model.Router, cfg *tailorconfig.Config) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c, err := anthropic.NewFromAPIKey(key, cfg.DefaultModel)
		if err != nil {
			log.Print(ctx, log.KV{K: "provider_error", V: fmt.Sprintf("anthropic: %v", err)})
		} else {
			facade := model.NewFacade("anthropic", c, cfg.AgentTimeout)
			limiter := middleware.NewAdaptiveRateLimiter(anthropicInitialTPM, anthropicMaxTPM)
			router.Register("anthropic", limiter.Middleware()(facade))
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c, err := openai.NewFromAPIKey(key, cfg.DefaultModel)
		if err != nil {
			log.Print(ctx, log.KV{K: "provider_error", V: fmt.Sprintf("openai: %v", err)})
		} else {
			facade := model.NewFacade("openai", c, cfg.AgentTimeout)
			limiter := middleware.NewAdaptiveRateLimiter(openaiInitialTPM, openaiMaxTPM)
			router.Register("openai", limiter.Middleware()(facade))
		}
	}
	if os.Getenv("AWS_REGION") != "" || os.Getenv("AWS_PROFILE") != "" {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			log.Print(ctx, log.KV{K: "provider_error", V: fmt.Sprintf("bedrock config: %v", err)})
		} else {
			rc := bedrockruntime.NewFromConfig(awsCfg)
			c, err := bedrock.New(rc, cfg.DefaultModel)
			if err != nil {
				log.Print(ctx, log.KV{K: "provider_error", V: fmt.Sprintf("bedrock client: %v", err)})
			} else {
				facade := model.NewFacade("bedrock", c, cfg.AgentTimeout)
				limiter := middleware.NewAdaptiveRateLimiter(bedrockInitialTPM, bedrockMaxTPM)
				router.Register("bedrock", limiter.Middleware()(facade))
			}
		}
	}
}

// buildStore selects the MongoDB-backed recovery.Store when MONGO_URI is
// configured, falling back to the in-memory store for local development.
func buildStore(ctx context.Context) (recovery.Store, func()) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		return inmem.New(), func() {}
	}
	client, err := mongodriver.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		log.Fatalf(ctx, err, "could not connect to MongoDB")
	}
	db := os.Getenv("MONGO_DATABASE")
	if db == "" {
		db = "tailorcore"
	}
	store, err := recoverymongo.New(recoverymongo.Options{Client: client, Database: db})
	if err != nil {
		log.Fatalf(ctx, err, "could not initialize recovery store")
	}
	return store, func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
	}
}

// registerBuiltinCatalog seeds a minimal default catalog so the service is
// usable without an external YAML file; deployments with a richer lineup
// should pass -catalog instead.
func registerBuiltinCatalog(reg *registry.Registry) {
	reg.Register(registry.ModelInfo{
		Provider: "anthropic", ModelName: "claude-sonnet-4-5", ContextLength: 200000,
		InputPricePerMillion: 3, OutputPricePerMillion: 15, SupportsStreaming: true,
		FallbackModelID: "anthropic::claude-haiku-4-5",
	})
	reg.Register(registry.ModelInfo{
		Provider: "anthropic", ModelName: "claude-haiku-4-5", ContextLength: 200000,
		InputPricePerMillion: 0.8, OutputPricePerMillion: 4, SupportsStreaming: true,
	})
	reg.Register(registry.ModelInfo{
		Provider: "openai", ModelName: "gpt-4.1", ContextLength: 128000,
		InputPricePerMillion: 2, OutputPricePerMillion: 8, SupportsStreaming: true,
		FallbackModelID: "anthropic::claude-sonnet-4-5",
	})
	reg.Register(registry.ModelInfo{
		Provider: "bedrock", ModelName: "anthropic.claude-3-5-sonnet", ContextLength: 200000,
		InputPricePerMillion: 3, OutputPricePerMillion: 15, SupportsStreaming: true,
	})
}
