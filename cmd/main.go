package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ejimurphy/task-earnings-bot/internal/auth"
	"github.com/Ejimurphy/task-earnings-bot/internal/bot"
	"github.com/Ejimurphy/task-earnings-bot/internal/config"
	"github.com/Ejimurphy/task-earnings-bot/internal/handlers"
	"github.com/Ejimurphy/task-earnings-bot/internal/logger"
	"github.com/Ejimurphy/task-earnings-bot/internal/service"
	"github.com/Ejimurphy/task-earnings-bot/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("database_init", fmt.Sprintf("dialect=%s", storage.DetectDialect(cfg.DatabaseURL)))
	store, err := storage.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	b, webhook, err := bot.NewBot(cfg)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	notifier := service.NewNotificationService(b, cfg.AdminIDs, cfg.Currency)
	notifier.Start()
	defer notifier.Stop()
	admins := service.NewAdmins(cfg.AdminIDs)
	rules := service.NewRulesService(store, cfg)

	tasks := service.NewTaskService(store, rules, notifier, cfg.BaseURL, cfg.SessionIdleReset)
	accounts := service.NewAccountService(store, rules, notifier)
	withdrawals := service.NewWithdrawalService(store, rules, notifier, admins)

	bot.NewHandler(bot.Services{
		Tasks:       tasks,
		Accounts:    accounts,
		Withdrawals: withdrawals,
		Admin:       service.NewAdminService(store, rules, notifier, admins),
		Support:     service.NewSupportService(store, notifier),
		Rules:       rules,
	}, b.Me.Username, cfg.SupportContact).Register(b)

	// Remind admins about withdrawals left pending
	reminders := service.NewReminderWorker(store, notifier, cfg.ReminderInterval)
	reminders.Start()
	defer reminders.Stop()

	router := handlers.NewRouter(handlers.Options{
		Tasks:          tasks,
		Accounts:       accounts,
		Withdrawals:    withdrawals,
		Validator:      auth.NewValidator(cfg.BotToken),
		PostbackSecret: cfg.PostbackSecret,
		MonetagZoneID:  cfg.MonetagZoneID,
		MonetagSDKURL:  cfg.MonetagSDKURL,
		Webhook:        webhook,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// The poller must be attached before Telegram can reach the webhook route
	logger.Info("bot_starting", fmt.Sprintf("username=%s mode=%s", b.Me.Username, cfg.BotMode))
	go b.Start()

	go func() {
		logger.Info("server_starting", fmt.Sprintf("addr=%s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown", "stopping server and bot")

	// Stop accepting webhook calls before the poller goes away
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error(0, "server_shutdown_error", err)
	}

	b.Stop()
}
