package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"tendertrack/db"
	"tendertrack/db/migrations"
	"tendertrack/internal/engine"
	"tendertrack/internal/handlers"
	"tendertrack/internal/mercapi"
	"tendertrack/internal/push"
	"tendertrack/models"
)

// defaultSuppliers is the compiled-in approved supplier list, overridable
// with APPROVED_SUPPLIERS ("taxid:name,taxid:name").
var defaultSuppliers = []models.Supplier{
	{Code: "96529310-8", Name: "Proveedor Insumos Medicos"},
	{Code: "76124890-1", Name: "Distribuidora Santiago"},
	{Code: "77458200-5", Name: "Comercial del Sur"},
}

func approvedSuppliers() []models.Supplier {
	raw := os.Getenv("APPROVED_SUPPLIERS")
	if raw == "" {
		return defaultSuppliers
	}
	var suppliers []models.Supplier
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		if parts[0] == "" {
			continue
		}
		s := models.Supplier{Code: parts[0]}
		if len(parts) == 2 {
			s.Name = parts[1]
		}
		suppliers = append(suppliers, s)
	}
	if len(suppliers) == 0 {
		return defaultSuppliers
	}
	return suppliers
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("no .env file loaded: %v", err)
	}

	connString := os.Getenv("POSTGRES_CONN")
	if connString == "" {
		log.Fatal("POSTGRES_CONN env variable is not set")
	}
	ticket := os.Getenv("MERCAPI_TICKET")
	if ticket == "" {
		log.Fatal("MERCAPI_TICKET env variable is not set")
	}
	baseURL := os.Getenv("MERCAPI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.mercadopublico.cl/servicios/v1/publico"
	}

	dbConn, err := db.Connect(context.Background(), connString)
	if err != nil {
		log.Fatalf("Cannot connect to DB: %v", err)
	}
	defer dbConn.Close()

	migrations.Run()

	store := db.NewStorage(dbConn)
	client := mercapi.NewClient(mercapi.Config{BaseURL: baseURL, Ticket: ticket})
	pusher := push.NewService(store, push.Config{GatewayURL: os.Getenv("PUSH_GATEWAY_URL")})
	eng := engine.New(store, client, pusher, engine.Config{Suppliers: approvedSuppliers()})
	h := handlers.NewHandler(store, eng, client)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)
		// tenders
		r.Post("/tenders/new", h.RegisterTenderHandler)
		r.Get("/tenders/my", h.GetUserTendersHandler)
		r.Delete("/tenders/{tenderCode}", h.DeleteTenderHandler)
		r.Get("/tenders/{tenderCode}/balance", h.GetTenderBalanceHandler)
		r.Get("/tenders/{tenderCode}/orders", h.GetTenderOrdersHandler)
		r.Post("/tenders/{tenderCode}/detect", h.DetectOrdersHandler)
		// orders
		r.Get("/orders/{orderCode}/items", h.GetOrderItemsHandler)
		r.Post("/scan", h.ScanHandler)
		// notifications
		r.Get("/notifications", h.GetNotificationsHandler)
		r.Put("/notifications/{notificationId}/read", h.MarkNotificationReadHandler)
		// push tokens
		r.Post("/push/register", h.RegisterPushTokenHandler)
		r.Delete("/push/unregister", h.UnregisterPushTokenHandler)
	})

	schedule := os.Getenv("SCAN_CRON")
	if schedule == "" {
		schedule = "0 3 * * *"
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		// A full scan can run for many minutes across all supplier/date
		// pairs; the context bounds it.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
		defer cancel()

		orders, err := eng.ScanDailyNewOrders(ctx)
		if err != nil {
			log.Printf("daily scan failed: %v", err)
			return
		}
		log.Printf("daily scan finished, %d new order(s)", len(orders))
	}); err != nil {
		log.Fatalf("Cannot schedule daily scan: %v", err)
	}
	c.Start()
	defer c.Stop()

	serverAddr := os.Getenv("SERVER_ADDRESS")
	if serverAddr == "" {
		serverAddr = "0.0.0.0:8080"
	}

	log.Printf("Starting server on %s", serverAddr)
	log.Fatal(http.ListenAndServe(serverAddr, r))
}
