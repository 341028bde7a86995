package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"chat-digest/internal/auth"
	"chat-digest/internal/config"
	"chat-digest/internal/digest"
	"chat-digest/internal/filter"
	"chat-digest/internal/history"
	"chat-digest/internal/ingest"
	"chat-digest/internal/llm"
	"chat-digest/internal/metrics"
	"chat-digest/internal/reminder"
	"chat-digest/internal/scheduler"
	"chat-digest/internal/storage"
	"chat-digest/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("invalid timezone: %v", err)
	}

	words, err := config.LoadWordLists(cfg.WordListsFilePath)
	if err != nil {
		log.Printf("⚠️ failed to load word lists, using defaults: %v", err)
		words = config.DefaultWordLists()
	}

	llmClient, err := llm.NewFactory(cfg).CreateClient(string(cfg.LLMProvider))
	if err != nil {
		log.Fatalf("failed to create llm client: %v", err)
	}

	fileStore, err := storage.NewFileStore(cfg.DataFilePath)
	if err != nil {
		log.Fatalf("failed to init data file: %v", err)
	}
	store := history.Open(fileStore)
	log.Printf("Loaded message store: %d chats with pending messages", len(store.PendingChats()))

	tg, err := telegram.NewClient(cfg.TelegramBotToken, cfg.SendTimeout)
	if err != nil {
		log.Fatalf("failed to create telegram client: %v", err)
	}

	m := metrics.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.MetricsAddr != "" {
		go m.Serve(ctx, cfg.MetricsAddr)
	}

	pipeline := ingest.New(
		filter.NewNormalizer(words.Banned),
		filter.NewSpamFilter(words.ShortReplies),
		store,
		m,
	)
	producer := digest.NewProducer(store, llmClient, tg, digest.Options{
		Urgent:        words.Urgent,
		KeywordsCount: cfg.KeywordsCount,
		LLMTimeout:    cfg.LLMTimeout,
		SendTimeout:   cfg.SendTimeout,
		Escape:        telegram.Escape,
		Recorder:      m,
	})
	reminders := reminder.New(tg.Plain(), cfg.SendTimeout)
	reminders.OnScheduled(m.ReminderScheduled)

	sched := scheduler.New(loc, cfg.DigestHour, cfg.DigestMinute)
	sched.SetDigestFunction(producer.RunAll)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}

	bot := telegram.New(tg, telegram.Deps{
		Ingest:        pipeline,
		Store:         store,
		Producer:      producer,
		Reminders:     reminders,
		Auth:          auth.New(tg, cfg.AdminUserID),
		KeywordsCount: cfg.KeywordsCount,
	})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	bot.Start(ctx)

	sched.Stop()
	reminders.Stop()
	if err := store.Flush(); err != nil {
		log.Printf("❌ final save failed: %v", err)
	}
	log.Println("Shutdown complete")
}
