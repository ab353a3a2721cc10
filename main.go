package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"gt_housing/config"
	"gt_housing/httputil"
	"gt_housing/identity"
	"gt_housing/logging"
	"gt_housing/places"
	"gt_housing/resolver"
	"gt_housing/scheduler"
	"gt_housing/server"
	"gt_housing/storage"
)

var (
	resolveInput = flag.String("resolve", "", "Resolve an apartment name once and exit")
	createName   = flag.String("create", "", "Validate and create an apartment once and exit")
	forceCreate  = flag.Bool("force", false, "With -create: skip the duplicate check")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting apartment resolver...")

	ctx := context.Background()
	clients := httputil.NewClients()

	store, cleanup, err := newStore(ctx, cfg, clients)
	if err != nil {
		log.Fatalf("Failed to connect to datastore: %v", err)
	}
	defer cleanup()

	lookup, lookupCleanup := newLookup(cfg, clients)
	defer lookupCleanup()

	res := resolver.New(store, lookup, thresholds(cfg))
	if err := res.Load(ctx); err != nil {
		log.Fatalf("Failed to load listings: %v", err)
	}
	log.Printf("Loaded %d listings", res.CachedCount())

	// One-shot modes
	if *resolveInput != "" {
		runResolve(ctx, res, *resolveInput)
		return
	}
	if *createName != "" {
		runCreate(ctx, res, *createName, *forceCreate)
		return
	}

	// Daemon mode
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(&cfg.Scheduler, res)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	var verifier *identity.Verifier
	if cfg.Supabase.JWTSecret != "" {
		verifier = identity.NewVerifier(cfg.Supabase.JWTSecret, cfg.Server.AllowedEmailDomain)
	} else {
		log.Println("Warning: SUPABASE_JWT_SECRET not set, API auth disabled")
	}

	srv := server.New(res, verifier, &cfg.Server)
	go func() {
		log.Printf("Listening on %s", cfg.Server.ListenAddr)
		if err := srv.Router().Run(cfg.Server.ListenAddr); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down")
}

// newStore prefers the direct Postgres connection when one is configured,
// else the PostgREST path.
func newStore(ctx context.Context, cfg *config.Config, clients *httputil.Clients) (storage.ListingStore, func(), error) {
	if cfg.Supabase.DBURL != "" {
		pgStore, err := storage.NewPostgresStore(ctx, cfg.Supabase.DBURL)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.Supabase.DBURL))
		return pgStore, pgStore.Close, nil
	}

	log.Printf("Using Supabase REST: %s", cfg.Supabase.URL)
	return storage.NewSupabaseStore(&cfg.Supabase, clients.Datastore), func() {}, nil
}

func newLookup(cfg *config.Config, clients *httputil.Clients) (places.Searcher, func()) {
	if cfg.Places.APIKey == "" {
		log.Println("Warning: PLACES_API_KEY not set, external suggestions disabled")
		return nil, func() {}
	}

	opts := []places.Option{places.WithHTTPClient(clients.Lookup)}
	if cfg.Places.BaseURL != "" {
		opts = append(opts, places.WithBaseURL(cfg.Places.BaseURL))
	}

	cleanup := func() {}
	if cfg.Places.CachePath != "" {
		cache, err := places.NewCache(cfg.Places.CachePath, cfg.Places.CacheTTL)
		if err != nil {
			log.Printf("Warning: could not open place cache: %v", err)
		} else {
			opts = append(opts, places.WithCache(cache))
			cleanup = func() { cache.Close() }
		}
	}

	return places.NewClient(cfg.Places.APIKey, opts...), cleanup
}

func thresholds(cfg *config.Config) resolver.Thresholds {
	return resolver.Thresholds{
		FuzzyMatch:    cfg.Matching.FuzzyMatch,
		FuzzyHigh:     cfg.Matching.FuzzyHigh,
		Duplicate:     cfg.Matching.Duplicate,
		DuplicateHigh: cfg.Matching.DuplicateHigh,
		PartialFloor:  cfg.Matching.PartialFloor,
		CoordinateKm:  cfg.Matching.CoordinateKm,
	}
}

func runResolve(ctx context.Context, res *resolver.Resolver, input string) {
	result, err := res.Resolve(ctx, input)
	if err != nil {
		log.Fatalf("Resolve failed: %v", err)
	}
	printJSON(result)
}

func runCreate(ctx context.Context, res *resolver.Resolver, name string, force bool) {
	if force {
		created, err := res.ForceCreate(ctx, name)
		if err != nil {
			log.Fatalf("Create failed: %v", err)
		}
		printJSON(created)
		return
	}

	created, dup, err := res.CreateWithValidation(ctx, name)
	if err != nil {
		log.Fatalf("Create failed: %v", err)
	}
	if dup != nil {
		log.Printf("Duplicate found (%s), re-run with -force to create anyway", dup.Reason)
		printJSON(dup)
		return
	}
	printJSON(created)
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Encode failed: %v", err)
	}
	os.Stdout.Write(append(data, '\n'))
}

func maskConnectionString(connString string) string {
	u, err := url.Parse(connString)
	if err != nil {
		return "(unparseable)"
	}
	return u.Redacted()
}
