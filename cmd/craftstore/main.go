// Package main запускает HTTP-сервер интернет-магазина.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/craftstore-system/internal/config"
	"github.com/mmeshcher/craftstore-system/internal/email"
	"github.com/mmeshcher/craftstore-system/internal/gateway"
	"github.com/mmeshcher/craftstore-system/internal/gateway/paypal"
	"github.com/mmeshcher/craftstore-system/internal/gateway/pesapal"
	"github.com/mmeshcher/craftstore-system/internal/handler"
	"github.com/mmeshcher/craftstore-system/internal/middleware"
	"github.com/mmeshcher/craftstore-system/internal/model"
	"github.com/mmeshcher/craftstore-system/internal/repository"
	"github.com/mmeshcher/craftstore-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gateways := make(map[model.PaymentMethod]gateway.Gateway)
	if cfg.PesapalConsumerKey != "" {
		pesapalClient := pesapal.NewClient(cfg.PesapalBaseURL, cfg.PesapalConsumerKey, cfg.PesapalConsumerSecret)
		gateways[model.PaymentMethodPesapal] = pesapalClient

		// Регистрация IPN-адреса необязательна для старта: шлюз может быть
		// недоступен, уведомления тогда догонит фоновая сверка.
		ipnURL := cfg.PublicBaseURL + "/api/payments/ipn"
		if err := pesapalClient.RegisterIPN(ctx, ipnURL); err != nil {
			sugar.Warnw("pesapal ipn registration failed", "url", ipnURL, "error", err.Error())
		}
	}
	if cfg.PayPalClientID != "" {
		gateways[model.PaymentMethodPayPal] = paypal.NewClient(cfg.PayPalBaseURL, cfg.PayPalClientID, cfg.PayPalSecret)
	}

	var sender email.Sender
	if cfg.SMTPAddress != "" {
		sender = email.NewSMTPSender(cfg.SMTPAddress, cfg.SMTPFrom)
	}

	svc := service.NewService(repo, gateways, sender, logger, service.Settings{
		TaxRateBP:     cfg.TaxRateBP,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, cfg.PublicBaseURL)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фоновой сверки зависших платежей
	g.Go(func() error {
		svc.StartPaymentSweeper(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting craftstore server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
