package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blackat5445/cisia-sentinel/sentinel"
	"github.com/blackat5445/cisia-sentinel/sentinel/commands"
	"github.com/blackat5445/cisia-sentinel/sentinel/crawler"
	"github.com/blackat5445/cisia-sentinel/sentinel/crawler/cisia"
	"github.com/blackat5445/cisia-sentinel/sentinel/database"
	"github.com/blackat5445/cisia-sentinel/sentinel/database/repositories"
	"github.com/blackat5445/cisia-sentinel/sentinel/donations"
	"github.com/blackat5445/cisia-sentinel/sentinel/enforcer"
	gateways "github.com/blackat5445/cisia-sentinel/sentinel/gateways/discord"
	"github.com/blackat5445/cisia-sentinel/sentinel/github"
	"github.com/blackat5445/cisia-sentinel/sentinel/handlers"
	"github.com/blackat5445/cisia-sentinel/sentinel/invites"
	"github.com/blackat5445/cisia-sentinel/sentinel/logger"
	"github.com/blackat5445/cisia-sentinel/sentinel/notifications"
	"github.com/blackat5445/cisia-sentinel/sentinel/scheduler"
	"github.com/blackat5445/cisia-sentinel/sentinel/subscribers"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/handler"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	customHandler := logger.NewHandler()
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting CISIA sentinel",
		slog.String("version", version),
		slog.String("commit", commit))

	shouldSyncCommands := flag.Bool("sync-commands", false, "Whether to sync commands to discord")
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := sentinel.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Configuration loaded successfully")

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.New(ctx, cfg.DatabaseConfig())
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer db.Close()

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema",
			slog.String("error", err.Error()))
		os.Exit(-1)
	}
	slog.Info("Database ready",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	b := sentinel.New(*cfg, version, commit)
	b.DB = db
	b.Directory = cfg.Directory()
	b.Stats = crawler.NewStats()

	b.SubscriberRepository = repositories.NewSubscriberRepository(db.BunDB())
	b.ClaimRepository = repositories.NewClaimRepository(db.BunDB())
	b.InviteRepository = repositories.NewInviteRepository(db.BunDB())

	b.StarChecker, err = github.NewStarChecker(cfg.GitHubStarsConfig())
	if err != nil {
		slog.Error("Failed to set up the github star checker", slog.Any("error", err))
		os.Exit(-1)
	}

	b.Store = subscribers.NewStore(b.SubscriberRepository)
	if err := b.Store.Load(ctx); err != nil {
		slog.Error("Failed to load subscribers", slog.Any("error", err))
		os.Exit(-1)
	}
	b.Verifier = subscribers.NewVerifier(b.Store, b.StarChecker)

	sched, err := scheduler.New(cfg.SchedulerConfig())
	if err != nil {
		slog.Error("Invalid crawl interval configuration", slog.Any("error", err))
		os.Exit(-1)
	}

	h := handler.New()
	h.Command("/start", handlers.WrapWithLogging("start", commands.StartHandler(b)))
	h.Command("/stop", handlers.WrapWithLogging("stop", commands.StopHandler(b)))
	h.Command("/status", handlers.WrapWithLogging("status", commands.StatusHandler(b)))
	h.Command("/github", handlers.WrapWithLogging("github", commands.GitHubHandler(b)))
	h.Command("/donate", handlers.WrapWithLogging("donate", commands.DonateHandler(b)))
	h.Command("/exams", handlers.WrapWithLogging("exams", commands.ExamsHandler(b)))
	h.Command("/exam", handlers.WrapWithLogging("exam", commands.ExamHandler(b)))
	h.Command("/interval", handlers.WrapWithLogging("interval", commands.IntervalHandler(b)))
	h.Command("/claims", handlers.WrapWithLogging("claims", commands.ClaimsHandler(b)))
	h.Command("/stats", handlers.WrapWithLogging("stats", commands.StatsHandler(b)))

	if err = b.SetupBot(h, bot.NewListenerFunc(b.OnReady), handlers.MemberJoinHandler(b)); err != nil {
		slog.Error("Failed to setup bot",
			slog.String("type", "sys"),
			slog.Any("error", err),
			slog.String("error_details", fmt.Sprintf("%+v", err)))
		os.Exit(-1)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b.Client.Close(ctx)
	}()

	// Transport-backed collaborators need the client, so they come
	// after SetupBot.
	gateway := gateways.NewGateway(b.Client)

	b.Issuer = invites.NewIssuer(b.Directory, b.Store, gateway, b.InviteRepository)
	if err := b.Issuer.Load(ctx); err != nil {
		slog.Error("Failed to load invite links", slog.Any("error", err))
		os.Exit(-1)
	}

	b.Enforcer = enforcer.New(b.Directory, b.Store, b.Issuer, gateway, gateway, cfg.GitHubStarsConfig().RepoURL())

	b.Donations = donations.NewWorkflow(b.ClaimRepository, b.Store, b.Issuer, gateway, cfg.Bot.AdminID)
	if err := b.Donations.Load(ctx); err != nil {
		slog.Error("Failed to load donation claims", slog.Any("error", err))
		os.Exit(-1)
	}
	b.Sessions = donations.NewSessionManager()

	var alerter crawler.Alerter
	if cfg.Email.Enabled {
		alerter = notifications.NewEmailNotifier(notifications.Config{
			PublicKey:  cfg.Email.PublicKey,
			PrivateKey: cfg.Email.PrivateKey,
			From:       cfg.Email.From,
			To:         cfg.Email.To,
		})
		slog.Info("Email alerts enabled", slog.String("to", cfg.Email.To))
	} else {
		slog.Warn("Email alerts disabled")
	}

	orchestrator, err := crawler.NewOrchestrator(
		cisia.NewFetcher(cfg.FetcherConfig()),
		gateway,
		alerter,
		b.Directory,
		sched,
		b.Stats,
		cfg.CrawlerConfig(),
	)
	if err != nil {
		slog.Error("Invalid crawl configuration", slog.Any("error", err))
		os.Exit(-1)
	}

	if *shouldSyncCommands {
		slog.Info("Syncing commands",
			slog.String("type", "sys"),
			slog.Any("guild_ids", cfg.Bot.DevGuilds))
		if err = handler.SyncCommands(b.Client, commands.Commands, cfg.Bot.DevGuilds); err != nil {
			slog.Error("Failed to sync commands",
				slog.String("type", "sys"),
				slog.Any("error", err))
		}
	}

	gatewayCtx, gatewayCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer gatewayCancel()
	if err = b.Client.OpenGateway(gatewayCtx); err != nil {
		slog.Error("Failed to open gateway",
			slog.String("type", "sys"),
			slog.Any("error", err))
		os.Exit(-1)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	b.Issuer.StartSweeper(runCtx)

	go func() {
		if err := orchestrator.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Crawl loop halted",
				slog.String("type", "crawl"),
				slog.Any("error", err))
		}
	}()

	slog.Info("Sentinel is running. Press CTRL-C to exit.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
	slog.Info("Shutting down...")
	runCancel()
}
