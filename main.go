package main

import (
	"encoding/json"
	"log"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/jcandido/hidrogest/backend/config"
	"github.com/jcandido/hidrogest/backend/database"
	"github.com/jcandido/hidrogest/backend/handlers"
	"github.com/jcandido/hidrogest/backend/middleware"
	"github.com/jcandido/hidrogest/backend/services"
)

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("PANIC RECOVERED: %v", err)
				log.Printf("Stack trace: %s", debug.Stack())

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "Internal server error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s - completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func main() {
	log.Println("Starting Hidrogest Billing System...")
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.Load()

	db, err := database.InitDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	billingService := services.NewBillingService(db)
	reportService := services.NewReportService(db)
	periodScheduler := services.NewPeriodScheduler(db, billingService)

	go periodScheduler.Start()
	defer periodScheduler.Stop()

	authHandler := handlers.NewAuthHandler(db, cfg.JWTSecret)
	associateHandler := handlers.NewAssociateHandler(db, billingService)
	hydrometerHandler := handlers.NewHydrometerHandler(db)
	periodHandler := handlers.NewPeriodHandler(db, billingService)
	readingHandler := handlers.NewReadingHandler(db, billingService)
	invoiceHandler := handlers.NewInvoiceHandler(db, billingService)
	reportHandler := handlers.NewReportHandler(reportService)
	settingsHandler := handlers.NewSettingsHandler(db)
	dashboardHandler := handlers.NewDashboardHandler(db)

	r := mux.NewRouter()

	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.HandleFunc("/api/auth/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/api/health", healthCheck).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	api.HandleFunc("/auth/change-password", authHandler.ChangePassword).Methods("POST")

	api.HandleFunc("/associates", associateHandler.List).Methods("GET")
	api.HandleFunc("/associates", associateHandler.Create).Methods("POST")
	api.HandleFunc("/associates/{id}", associateHandler.Get).Methods("GET")
	api.HandleFunc("/associates/{id}", associateHandler.Update).Methods("PUT")
	api.HandleFunc("/associates/{id}", associateHandler.Delete).Methods("DELETE")
	api.HandleFunc("/associates/{id}/readings", associateHandler.History).Methods("GET")

	api.HandleFunc("/hydrometers", hydrometerHandler.List).Methods("GET")
	api.HandleFunc("/hydrometers", hydrometerHandler.Create).Methods("POST")
	api.HandleFunc("/hydrometers/{id}", hydrometerHandler.Get).Methods("GET")
	api.HandleFunc("/hydrometers/{id}", hydrometerHandler.Update).Methods("PUT")
	api.HandleFunc("/hydrometers/{id}", hydrometerHandler.Delete).Methods("DELETE")

	api.HandleFunc("/periods", periodHandler.List).Methods("GET")
	api.HandleFunc("/periods", periodHandler.Create).Methods("POST")
	api.HandleFunc("/periods/preview", periodHandler.Preview).Methods("GET")
	api.HandleFunc("/periods/{id}", periodHandler.Delete).Methods("DELETE")

	api.HandleFunc("/readings", readingHandler.Save).Methods("POST")
	api.HandleFunc("/readings/bulk-reset", readingHandler.BulkReset).Methods("POST")
	api.HandleFunc("/readings/reset-logs", readingHandler.ResetLogs).Methods("GET")
	api.HandleFunc("/general-readings", readingHandler.ListGeneral).Methods("GET")

	api.HandleFunc("/invoices", invoiceHandler.List).Methods("GET")
	api.HandleFunc("/invoices/{id}", invoiceHandler.Get).Methods("GET")
	api.HandleFunc("/invoices/{id}/pay", invoiceHandler.Pay).Methods("POST")

	api.HandleFunc("/reports/loss", reportHandler.Loss).Methods("GET")

	api.HandleFunc("/settings/tariffs", settingsHandler.ListTariffs).Methods("GET")
	api.HandleFunc("/settings/tariffs", settingsHandler.UpdateTariff).Methods("PUT")
	api.HandleFunc("/settings/regions", settingsHandler.GetRegions).Methods("GET")
	api.HandleFunc("/settings/regions", settingsHandler.UpdateRegions).Methods("PUT")

	api.HandleFunc("/dashboard/stats", dashboardHandler.GetStats).Methods("GET")
	api.HandleFunc("/dashboard/consumption", dashboardHandler.GetConsumption).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:4173", "*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	handler := c.Handler(r)

	server := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  180 * time.Second,
	}

	log.Printf("Server starting on %s", cfg.ServerAddress)
	log.Println("Default credentials: admin / admin123")
	log.Println("IMPORTANT: Change default password after first login!")

	if err := server.ListenAndServe(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}
