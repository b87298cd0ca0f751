package main

import (
	"log"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"crmgate/internal/config"
	"crmgate/internal/db"
	"crmgate/internal/http/handlers"
	appmw "crmgate/internal/http/middleware"
	"crmgate/internal/ingest"
	"crmgate/internal/mail"
	"crmgate/internal/storage"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	db.StartRetentionWorker(sqlDB, cfg.LogRetentionDays)
	db.StartAggregationWorker(sqlDB)

	if err := db.EnsureBootstrapAdmin(sqlDB, cfg); err != nil {
		log.Fatalf("failed to ensure bootstrap admin: %v", err)
	}

	var uploader ingest.Uploader = storage.Disabled{}
	if cfg.StorageEndpoint != "" {
		client, err := storage.NewClient(cfg)
		if err != nil {
			log.Fatalf("failed to connect storage: %v", err)
		}
		uploader = client
	} else {
		log.Printf("warning: no storage endpoint configured, file attachments will be rejected")
	}

	var mailer mail.Mailer
	if sender, err := mail.NewSenderFromEnv(); err != nil {
		log.Fatalf("failed to configure mail: %v", err)
	} else if sender != nil {
		mailer = sender
	} else {
		log.Printf("warning: no mail provider configured, invites will not send email")
	}

	handlers.InitPrometheusMetrics()

	r := router.New()

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})

	r.OPTIONS("/ingest", handlers.CORSPreflight)
	r.POST("/ingest", appmw.ResolveChannel(sqlDB)(handlers.IngestHandler(sqlDB, uploader)))

	gateway := appmw.APIKeyGateway(sqlDB, cfg)

	r.OPTIONS("/v1/activities", handlers.CORSPreflight)
	r.POST("/v1/activities", gateway(handlers.CreateActivity(sqlDB, uploader)))

	r.OPTIONS("/v1/tasks", handlers.CORSPreflight)
	r.GET("/v1/tasks", gateway(handlers.ListTasks(sqlDB)))
	r.POST("/v1/tasks", gateway(handlers.CreateTask(sqlDB)))
	r.OPTIONS("/v1/tasks/{id}", handlers.CORSPreflight)
	r.GET("/v1/tasks/{id}", gateway(handlers.GetTask(sqlDB)))
	r.PATCH("/v1/tasks/{id}", gateway(handlers.UpdateTask(sqlDB)))
	r.DELETE("/v1/tasks/{id}", gateway(handlers.DeleteTask(sqlDB)))

	session := appmw.SessionAuth(sqlDB, cfg)

	r.OPTIONS("/users", handlers.CORSPreflight)
	r.POST("/users", session(handlers.InviteUser(sqlDB, mailer)))
	r.PATCH("/users", session(handlers.PatchUser(sqlDB)))
	r.PUT("/users", session(handlers.ResendInvite(sqlDB)))
	r.GET("/users", handlers.MethodNotAllowed)
	r.DELETE("/users", handlers.MethodNotAllowed)

	r.GET("/metrics", handlers.PrometheusMetrics())

	log.Printf("crmgate listening on %s", cfg.ListenAddr)
	if err := fasthttp.ListenAndServe(cfg.ListenAddr, r.Handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
