package main

import (
	"database/sql"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"diagnosis-engine/internal/diagnosis"
	"diagnosis-engine/internal/oracle"
	"diagnosis-engine/internal/patient"
	"diagnosis-engine/internal/pharmacy"
	"diagnosis-engine/internal/platform/auth"
	"diagnosis-engine/internal/questionbank"
	"diagnosis-engine/internal/report"
	"diagnosis-engine/internal/visit"
)

func main() {
	_ = godotenv.Load()

	initLogger(os.Getenv("ENV"))

	// 1. Infrastructure
	dbConnStr := os.Getenv("DATABASE_URL")

	var db *sql.DB
	if dbConnStr != "" {
		var err error
		for i := 0; i < 10; i++ {
			db, err = sql.Open("postgres", dbConnStr)
			if err == nil {
				err = db.Ping()
			}
			if err == nil {
				break
			}
			log.Info().Int("attempt", i+1).Msg("waiting for database")
			time.Sleep(2 * time.Second)
		}
		if err != nil {
			log.Fatal().Err(err).Msg("could not connect to database")
		}
		log.Info().Msg("connected to database")

		m, err := migrate.New("file://migrations", dbConnStr)
		if err != nil {
			log.Fatal().Err(err).Msg("migration init failed")
		}
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatal().Err(err).Msg("migration up failed")
		}
		log.Info().Msg("migrations applied")
	} else {
		log.Warn().Msg("DATABASE_URL is not set; running with in-memory stores (state is lost on restart)")
	}

	// 2. Stores
	var (
		visits        visit.Repository
		patients      patient.Reader
		prescriptions pharmacy.PrescriptionRepository
	)
	if db != nil {
		visits = visit.NewRepository(db)
		patients = patient.NewRepository(db)
		prescriptions = pharmacy.NewPrescriptionRepository(db)
	} else {
		visits = visit.NewMemoryRepository()
		patients = patient.NewMemoryStore()
		prescriptions = pharmacy.NewMemoryPrescriptionRepository()
	}

	// 3. Clients
	deepSeekKey := os.Getenv("DEEPSEEK_API_KEY")
	if deepSeekKey == "" {
		log.Warn().Msg("DEEPSEEK_API_KEY is not set; oracle calls will fail and degrade to uniform priors")
	}
	var oracleOpts []oracle.DeepSeekOption
	if base := os.Getenv("DEEPSEEK_BASE_URL"); base != "" {
		oracleOpts = append(oracleOpts, oracle.WithBaseURL(base))
	}
	probOracle := oracle.NewDeepSeekClient(deepSeekKey, oracleOpts...)

	rxBase := os.Getenv("RXNORM_BASE_URL")
	if rxBase == "" {
		rxBase = "https://rxnav.nlm.nih.gov/REST"
	}
	rxClient := pharmacy.NewRxNormClient(rxBase)

	// 4. Services
	bank := questionbank.Default()
	catalog := pharmacy.NewCatalog(pharmacy.DefaultProtocols())
	gate := pharmacy.NewGate(catalog, rxClient, rxClient)

	oracleTimeout := 30 * time.Second
	if raw := os.Getenv("ORACLE_TIMEOUT_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			oracleTimeout = time.Duration(secs) * time.Second
		}
	}

	svc := diagnosis.NewService(visits, bank, catalog, probOracle, patients, gate, prescriptions, oracleTimeout)
	handler := diagnosis.NewHandler(svc, report.NewService())

	// 5. Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	// CORS for the portal front ends
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-API-Key, Authorization")
			if r.Method == "OPTIONS" {
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAPIKey(os.Getenv("API_KEY")))
		diagnosis.RegisterRoutes(r, handler)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Info().Str("port", port).Msg("server starting")
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func initLogger(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", "diagnosis-engine").Logger()
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
