package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/character"
	characterrepo "github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/character/repo"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/esi"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/setting"
	settingrepo "github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/setting/repo"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/internal/sso"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-esi-sso-go/pkg/utilities"
)

func main() {
	// best-effort: without a .env the real environment and defaults apply
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-esi-sso-go")

	dbCfg := database.ConfigFromEnv()
	db, err := database.Open(dbCfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	sealer, err := utilities.SealerFromEnv()
	if err != nil {
		sugar.Fatalf("token seal key: %v", err)
	}
	if !sealer.Enabled() {
		sugar.Warn("TOKEN_SEAL_KEY not set; tokens and client secret are stored unencrypted")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings := settingrepo.NewRepo(db, sealer)
	characters := characterrepo.NewCharacterRepo(db, sealer)
	if err := settings.EnsureTable(ctx); err != nil {
		sugar.Fatalf("ensure sso_configurations: %v", err)
	}
	if err := characters.EnsureTable(ctx); err != nil {
		sugar.Fatalf("ensure character_info: %v", err)
	}

	settingSvc := setting.NewService(settings, sugar)
	ssoCfg, err := settingSvc.Bootstrap(ctx, setting.ConfigFromEnv())
	if err != nil {
		if errors.Is(err, sso.ErrConfiguration) {
			sugar.Fatalf("sso configuration invalid: %v", err)
		}
		sugar.Fatalf("load sso configuration: %v", err)
	}

	sessCfg := session.ConfigFromEnv()
	store, err := session.New(ctx, sessCfg)
	if err != nil {
		sugar.Fatalf("session store: %v", err)
	}
	if rs, ok := store.(*session.RedisStore); ok {
		defer rs.Close()
	}

	metrics := sso.NewMetrics(prometheus.DefaultRegisterer)
	clientCfg := sso.ConfigFromEnv()
	creds := sso.ClientCredentials{
		ClientID:     ssoCfg.ClientID,
		ClientSecret: ssoCfg.ClientSecret,
		RedirectURI:  ssoCfg.CallbackURL,
	}
	oauth, err := sso.NewOAuthClient(creds, clientCfg, ssoCfg.Scopes(), nil, sugar, metrics)
	if err != nil {
		sugar.Fatalf("sso client: %v", err)
	}

	characterSvc := character.NewService(characters, sugar)
	ssoSvc := sso.NewSSOService(oauth.Builder, oauth.Exchanger, oauth.Verifier, sso.Options{
		Store:      store,
		Characters: characterSvc,
		Logger:     sugar,
		StateTTL:   clientCfg.StateTTL,
		SessionTTL: sessCfg.TTL,
	})

	adminToken := setting.AdminTokenFromEnv()
	if adminToken == "" {
		sugar.Info("ADMIN_TOKEN not set; /settings/sso is disabled")
	}

	cookies := session.Cookies{Secure: sessCfg.CookieSecure, TTL: sessCfg.TTL}
	handler := router.RegisterRoutes(sugar, router.Handlers{
		SSO:     sso.NewHandler(ssoSvc, cookies, sugar),
		ESI:     esi.NewHandler(esi.NewClient(esi.ConfigFromEnv(), creds.UserAgent(), sugar), ssoSvc, cookies, sugar),
		Setting: setting.NewHandler(settingSvc, adminToken, sugar),
	})

	addr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if addr == "" {
		addr = "0.0.0.0:8431"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("service is running; press Ctrl+C to stop",
		"addr", addr, "session_store", sessCfg.Driver, "db_driver", dbCfg.Driver, "callback_url", creds.RedirectURI)

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	if err := db.PingContext(doneCtx); err != nil {
		sugar.Warnf("db ping on shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
