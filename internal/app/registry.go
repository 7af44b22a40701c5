package app

import (
	"database/sql"
	"os"
	"strings"
	"time"

	"go-leave/internal/balance"
	"go-leave/internal/bootstrap"
	"go-leave/internal/calendar"
	"go-leave/internal/directory"
	"go-leave/internal/messaging/kafka"
	"go-leave/internal/policy"
	"go-leave/internal/propagation"
	"go-leave/internal/request"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func registerModules(
	router *gin.Engine,
	db *sql.DB,
	gormDB *gorm.DB,
	rdb *redis.Client,
) error {
	// --- Repositories ---
	policyRepo := policy.NewRepository(gormDB)
	balanceRepo := balance.NewRepository(gormDB)
	requestRepo := request.NewRepository(gormDB)
	outboxRepo := kafka.NewOutboxRepository(db)
	employees := directory.NewEmployeeDirectory(gormDB)

	// --- Shared collaborators ---
	auditLogger := bootstrap.NewStdoutAuditLogger()
	cal := calendar.NewWeekdayCalendar(holidaysFromEnv()...)

	// --- Services ---
	termsProvider := policy.NewTermsProvider(policyRepo)
	balanceService := balance.NewService(db, balanceRepo, termsProvider, outboxRepo, rdb, auditLogger)
	propagator := propagation.New(balanceRepo, balanceService, employees)
	policyService := policy.NewService(db, policyRepo, outboxRepo, propagator)
	requestService := request.NewService(db, requestRepo, balanceRepo, balanceService, employees, cal, outboxRepo, rdb)

	// --- Handlers ---
	policyHandler := policy.NewHandler(policyService)
	balanceHandler := balance.NewHandler(balanceService)
	requestHandler := request.NewHandler(requestService)

	// --- Routes Registration ---
	api := router.Group("/api/v1")
	{
		policy.RegisterRoutes(api, policyHandler)
		balance.RegisterRoutes(api, balanceHandler)
		request.RegisterRoutes(api, requestHandler, rdb)
	}

	return nil
}

// holidaysFromEnv parses COMPANY_HOLIDAYS, a comma separated list of
// YYYY-MM-DD dates. Malformed entries are skipped.
func holidaysFromEnv() []time.Time {
	raw := os.Getenv("COMPANY_HOLIDAYS")
	if raw == "" {
		return nil
	}

	var holidays []time.Time
	for _, part := range strings.Split(raw, ",") {
		d, err := time.Parse("2006-01-02", strings.TrimSpace(part))
		if err != nil {
			continue
		}
		holidays = append(holidays, d)
	}
	return holidays
}
