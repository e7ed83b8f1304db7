package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	apphandler "securecard/internal/application/handler"
	appmetrics "securecard/internal/application/metrics"
	appservice "securecard/internal/application/service"
	appstore "securecard/internal/application/store/application"
	cardhandler "securecard/internal/card/handler"
	cardmetrics "securecard/internal/card/metrics"
	cardservice "securecard/internal/card/service"
	cardstore "securecard/internal/card/store/card"
	httpapi "securecard/internal/http"
	jwttoken "securecard/internal/jwt_token"
	otpmetrics "securecard/internal/otp/metrics"
	otpservice "securecard/internal/otp/service"
	"securecard/internal/otp/store/challenge"
	"securecard/internal/otp/store/throttle"
	paymenthandler "securecard/internal/payment/handler"
	paymentmetrics "securecard/internal/payment/metrics"
	paymentmodels "securecard/internal/payment/models"
	paymentservice "securecard/internal/payment/service"
	couponstore "securecard/internal/payment/store/coupon"
	paymentstore "securecard/internal/payment/store/payment"
	"securecard/internal/platform/config"
	"securecard/internal/platform/httpserver"
	"securecard/internal/platform/kafka"
	"securecard/internal/platform/logger"
	"securecard/internal/platform/metrics"
	"securecard/internal/platform/postgres"
	"securecard/internal/platform/redis"
	"securecard/internal/platform/tracing"
	supporthandler "securecard/internal/support/handler"
	supportmetrics "securecard/internal/support/metrics"
	supportservice "securecard/internal/support/service"
	querystore "securecard/internal/support/store/query"
	userhandler "securecard/internal/user/handler"
	usermetrics "securecard/internal/user/metrics"
	userservice "securecard/internal/user/service"
	userstore "securecard/internal/user/store/user"
	"securecard/pkg/email"
	"securecard/pkg/platform/audit"
	"securecard/pkg/platform/audit/publisher"
	"securecard/pkg/platform/audit/publishers/security"
	auditmemory "securecard/pkg/platform/audit/store/memory"
	auditpostgres "securecard/pkg/platform/audit/store/postgres"
	"securecard/pkg/platform/audit/worker"
	"securecard/pkg/platform/middleware/ratelimit"
	txcontext "securecard/pkg/platform/tx"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// stores groups the persistence choice made at startup.
type stores struct {
	users        userservice.Store
	cards        *cardStores
	applications appservice.Store
	payments     paymentservice.Store
	coupons      paymentservice.CouponStore
	queries      supportservice.Store
	challenges   otpservice.Store
	throttle     otpservice.Throttle
	audit        audit.Store
	outbox       *auditpostgres.Store
	tx           txcontext.Runner
}

type cardStores struct {
	cards        cardservice.Store
	transactions cardservice.TransactionStore
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	health := map[string]httpapi.HealthCheck{}
	st := stores{tx: txcontext.Passthrough{}}

	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		usePostgres(&st, db)
		health["postgres"] = db.PingContext
		log.Info("using postgres stores")
	} else {
		useMemory(&st)
		log.Info("using in-memory stores")
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		st.challenges = challenge.NewRedis(redisClient.Client)
		st.throttle = throttle.NewRedis(redisClient.Client)
		health["redis"] = redisClient.Health
		log.Info("using redis for otp challenges")
	} else {
		st.challenges = challenge.NewInMemory()
		st.throttle = throttle.NewInMemory()
	}

	var auditOpts []publisher.Option
	if st.outbox == nil {
		auditOpts = append(auditOpts, publisher.WithAsyncBuffer(1024))
	}
	storePublisher := publisher.NewPublisher(st.audit, append(auditOpts, publisher.WithLogger(log))...)
	defer storePublisher.Close()
	auditPublisher := security.New(storePublisher,
		security.WithLogger(log),
		security.WithMetrics(security.NewMetrics()),
	)

	mailer := newMailer(cfg.SMTP, log)
	tokens := jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.TTL)

	cardSvc := cardservice.New(st.cards.cards, st.cards.transactions,
		cardservice.WithLogger(log),
		cardservice.WithAuditPublisher(auditPublisher),
		cardservice.WithMetrics(cardmetrics.New()),
		cardservice.WithTxRunner(st.tx),
	)
	appSvc := appservice.New(st.applications, cardSvc,
		appservice.WithLogger(log),
		appservice.WithAuditPublisher(auditPublisher),
		appservice.WithMetrics(appmetrics.New()),
		appservice.WithTxRunner(st.tx),
		appservice.WithApplicantDirectory(st.users),
	)
	otpSvc := otpservice.New(st.challenges, st.throttle, mailer,
		otpservice.WithLogger(log),
		otpservice.WithAuditPublisher(auditPublisher),
		otpservice.WithMetrics(otpmetrics.New()),
		otpservice.WithTTL(cfg.OTP.TTL),
		otpservice.WithMaxAttempts(cfg.OTP.MaxAttempts),
		otpservice.WithIssueLimit(cfg.OTP.IssueLimit, cfg.OTP.IssueWindow),
	)
	userSvc := userservice.New(st.users, otpSvc, tokens, appSvc, cardSvc,
		userservice.WithLogger(log),
		userservice.WithAuditPublisher(auditPublisher),
		userservice.WithMetrics(usermetrics.New()),
		userservice.WithTxRunner(st.tx),
		userservice.WithAdminEmails(cfg.AdminEmails),
	)
	paymentSvc := paymentservice.New(st.payments, st.coupons, cardSvc, otpSvc,
		paymentservice.WithLogger(log),
		paymentservice.WithAuditPublisher(auditPublisher),
		paymentservice.WithMetrics(paymentmetrics.New()),
		paymentservice.WithTxRunner(st.tx),
		paymentservice.WithStepUpThreshold(cfg.Payment.StepUpThreshold),
	)
	supportSvc := supportservice.New(st.queries, mailer,
		supportservice.WithLogger(log),
		supportservice.WithAuditPublisher(auditPublisher),
		supportservice.WithMetrics(supportmetrics.New()),
	)

	router := httpapi.NewRouter(httpapi.Deps{
		Handlers: httpapi.Handlers{
			Users:        userhandler.New(userSvc, log),
			Cards:        cardhandler.New(cardSvc, log),
			Applications: apphandler.New(appSvc, log),
			Payments:     paymenthandler.New(paymentSvc, log),
			Support:      supporthandler.New(supportSvc, log),
		},
		Tokens:  jwttoken.NewJWTServiceAdapter(tokens),
		Logger:  log,
		Metrics: metrics.New(),
		RateLimiter: ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, log,
			ratelimit.WithDisabled(cfg.RateLimit.Disabled)),
		Health: health,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, log)
	})
	g.Go(func() error {
		return auditPublisher.Run(gctx)
	})

	if cfg.Kafka.Enabled() {
		if st.outbox == nil {
			log.Warn("kafka brokers configured without postgres; audit relay disabled")
		} else {
			producer, err := kafka.NewProducer(cfg.Kafka, log)
			if err != nil {
				return err
			}
			defer producer.Close()
			if err := producer.EnsureTopic(ctx, 3, 1); err != nil {
				log.Warn("could not ensure audit topic", "error", err)
			}
			relay := worker.NewRelay(st.outbox, producer, worker.WithLogger(log))
			g.Go(func() error {
				return relay.Run(gctx)
			})
		}
	}

	return g.Wait()
}

func usePostgres(st *stores, db *sql.DB) {
	cards := cardstore.NewPostgres(db)
	outbox := auditpostgres.New(db)
	st.users = userstore.NewPostgres(db)
	st.cards = &cardStores{cards: cards, transactions: cards}
	st.applications = appstore.NewPostgres(db)
	st.payments = paymentstore.NewPostgres(db)
	st.coupons = couponstore.NewPostgres(db)
	st.queries = querystore.NewPostgres(db)
	st.audit = outbox
	st.outbox = outbox
	st.tx = postgres.NewTxRunner(db)
}

func useMemory(st *stores) {
	cards := cardstore.NewInMemory()
	st.users = userstore.NewInMemory()
	st.cards = &cardStores{cards: cards, transactions: cards}
	st.applications = appstore.NewInMemory()
	st.payments = paymentstore.NewInMemory()
	st.coupons = couponstore.NewInMemory(paymentmodels.DefaultCoupons()...)
	st.queries = querystore.NewInMemory()
	st.audit = auditmemory.NewInMemoryStore()
}

func newMailer(cfg config.SMTPConfig, log *slog.Logger) email.Sender {
	if !cfg.Enabled() {
		log.Info("smtp not configured; mail is logged instead of sent")
		return email.NewLogSender(log)
	}
	return email.NewSMTPSender(email.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
	}, email.WithLogger(log))
}
