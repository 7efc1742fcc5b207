package main

import (
	"context"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jhoicas/claims-engine/internal/application/analytics"
	"github.com/jhoicas/claims-engine/internal/application/claims"
	"github.com/jhoicas/claims-engine/internal/infrastructure/lock"
	"github.com/jhoicas/claims-engine/internal/infrastructure/memory"
	"github.com/jhoicas/claims-engine/internal/infrastructure/metrics"
	"github.com/jhoicas/claims-engine/internal/infrastructure/notification"
	"github.com/jhoicas/claims-engine/internal/infrastructure/postgres"
	"github.com/jhoicas/claims-engine/internal/infrastructure/storage"
	"github.com/jhoicas/claims-engine/internal/infrastructure/tiss"
	"github.com/jhoicas/claims-engine/internal/infrastructure/webservice"
	httpRouter "github.com/jhoicas/claims-engine/internal/interfaces/http"
	"github.com/jhoicas/claims-engine/pkg/config"
	"github.com/jhoicas/claims-engine/pkg/logger"
	"github.com/jhoicas/claims-engine/pkg/secrets"
)

const deadlineScanEvery = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
		App:   cfg.App.Name,
	})
	log.Info().Str("env", cfg.App.Env).Msg("iniciando aplicación")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	repos := postgres.Repositories(pool)
	txRunner := postgres.NewTxRunner(pool)
	operatorRepo := postgres.NewOperatorRepository(pool)
	sequenceRepo := postgres.NewSequenceRepository(pool)
	analyticsRepo := postgres.NewAnalyticsRepository(pool)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// Lock por entidad: Redis si hay varias instancias, memoria si no.
	var locker claims.Locker = memory.NewKeyedLocker()
	if cfg.Redis.Addr != "" {
		rdb, err := lock.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a Redis")
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, cfg.Redis.LockTTL)
	}

	var decrypter webservice.Decrypter = secrets.Plaintext{}
	if cfg.Secrets.Key != "" {
		box, err := secrets.NewBox(cfg.Secrets.Key)
		if err != nil {
			log.Fatal().Err(err).Msg("llave de secretos inválida")
		}
		decrypter = box
	}

	// Certificado del prestador: sin certificado los mensajes salen sin firma.
	cert, err := tiss.LoadCertificate(cfg.TISS.CertPath, cfg.TISS.CertKeyPath, cfg.TISS.CertPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("certificado del prestador")
	}
	codec := tiss.NewCodec(tiss.NewDigitalSignatureService(), cert)

	soap := webservice.NewSOAPAdapter(
		&nethttp.Client{},
		codec.Builder(),
		codec.Parser(),
		webservice.HeadersDecorator(),
		webservice.BasicAuthDecorator(),
	)
	wsOpts := []webservice.Option{
		webservice.WithDecrypter(decrypter),
		webservice.WithMetrics(m),
		webservice.WithDefaultPolicy(cfg.TISS.DefaultTimeout, cfg.TISS.DefaultAttempts, cfg.TISS.DefaultBackoff),
	}
	if cfg.TISS.SandboxOperators {
		wsOpts = append(wsOpts, webservice.WithSandbox())
	}
	gateway := webservice.NewClient(operatorRepo, soap, log, wsOpts...)

	// Notificaciones: almacén acotado para la API y RabbitMQ si está configurado.
	recent := notification.NewBoundedStore(cfg.Notifications.StoreSize)
	sinks := []notification.Sink{recent}
	if cfg.RabbitMQ.URL != "" {
		publisher, conn, err := notification.DialAMQP(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a RabbitMQ")
		}
		defer conn.Close()
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}
	notifier := notification.NewFanout(log, m, sinks...)

	var attachments claims.AttachmentStore = storage.NewMemoryStore()
	if cfg.MinIO.Endpoint != "" {
		mc, err := storage.NewMinIOClient(cfg.MinIO)
		if err != nil {
			log.Fatal().Err(err).Msg("cliente MinIO")
		}
		attachments = storage.NewMinIOStore(mc, cfg.MinIO.Bucket)
	} else {
		log.Warn().Msg("MINIO_ENDPOINT vacío: anexos de recursos en memoria")
	}

	deps := claims.Deps{
		Tx:          txRunner,
		Repos:       repos,
		Operators:   operatorRepo,
		Sequences:   sequenceRepo,
		Gateway:     gateway,
		Codec:       codec,
		Locker:      locker,
		Notifier:    notifier,
		Attachments: attachments,
		Metrics:     m,
		Log:         log,
		Config: claims.Config{
			GuidePrefix:     cfg.TISS.GuidePrefix,
			DeadlineWarning: cfg.TISS.DeadlineWarning,
		},
	}
	detector := claims.NewGlosaDetector(codec, nil, m, log).WithAppealWindow(cfg.TISS.AppealWindowDays)
	guideUC := claims.NewGuideUseCase(deps)
	batchUC := claims.NewBatchUseCase(deps, detector)
	glosaUC := claims.NewGlosaUseCase(deps)
	recursoUC := claims.NewRecursoUseCase(deps)
	engine := analytics.NewEngine(analyticsRepo, log,
		analytics.WithNotifier(notifier),
		analytics.WithDefaultMultiple(cfg.TISS.AlertMultiple),
	)

	monitor := claims.NewDeadlineMonitor(deps)
	go monitor.Loop(ctx, deadlineScanEvery, nil)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 60, // Submit incluye los reintentos contra la operadora
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		GuideUC:       guideUC,
		BatchUC:       batchUC,
		GlosaUC:       glosaUC,
		RecursoUC:     recursoUC,
		Analytics:     engine,
		Notifications: recent,
		Gatherer:      reg,
		JWTSecret:     cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
