package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/viper"

	"github.com/SOLdier200/xessex-sub002/internal/config"
	"github.com/SOLdier200/xessex-sub002/internal/database"
	"github.com/SOLdier200/xessex-sub002/internal/middleware"
	"github.com/SOLdier200/xessex-sub002/internal/rewards"
	"github.com/SOLdier200/xessex-sub002/internal/services"
	"github.com/SOLdier200/xessex-sub002/internal/solana"
)

// unavailableBalances stands in when no RPC endpoint is configured, so
// the accrual cron fails loudly instead of crediting nobody silently.
type unavailableBalances struct{}

func (unavailableBalances) GetBalances(context.Context, []string) (map[string]int64, error) {
	return nil, services.ErrDataUnavailable
}

func main() {
	config.Load()

	db := database.InitDatabase()
	defer database.CloseDB()

	redisClient := database.InitRedis()
	defer database.CloseRedis()

	engineCfg := config.Engine()
	clock := clockwork.NewRealClock()

	var balances solana.BalanceSource = unavailableBalances{}
	if engineCfg.RPCEndpoint != "" && engineCfg.TokenMint != "" {
		source, err := solana.NewTokenBalanceSource(engineCfg.RPCEndpoint, engineCfg.TokenMint)
		if err != nil {
			log.Fatalf("Failed to initialize balance source: %v", err)
		}
		balances = source
	} else {
		log.Println("[SERVER] SOLANA_RPC_URL / SOLANA_TOKEN_MINT not set, accrual disabled")
	}

	ledgerService := services.NewLedgerService(db)
	notifyService := services.NewNotifyService(db)
	voteService := services.NewVoteService(db, redisClient, ledgerService, notifyService, clock, engineCfg)
	accrualService := services.NewAccrualService(db, ledgerService, balances, clock, rewards.DefaultTierTable())
	raffleService := services.NewRaffleService(db, redisClient, ledgerService, notifyService, clock, engineCfg)
	distributorService := services.NewDistributorService(db, clock, engineCfg)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "x-cron-secret"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		services.SendJSONResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.CronAuth)
			r.Post("/cron/accrual", accrualService.HandleRun)
			r.Post("/cron/raffle", raffleService.HandleRunWeekly)
			r.Post("/cron/distribute", distributorService.HandleDistribute)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware)
			r.Post("/comments/{commentID}/vote", voteService.HandleCastVote)
			r.Get("/comments/{commentID}/vote", voteService.HandleVoteStatus)
			r.Post("/raffles/buy", raffleService.HandleBuy)
			r.Post("/raffles/claim", raffleService.HandleClaim)
			r.Get("/raffles/status", raffleService.HandleStatus)
			r.Get("/rewards/week", distributorService.HandleWeekRewards)
			r.Get("/credits/history", ledgerService.HandleHistory)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware)
			r.Use(middleware.RequireModerator)
			r.Post("/mod/comments/{commentID}/vote", voteService.HandleModVote)
		})
	})

	viper.SetDefault("server.port", "8080")
	port := viper.GetString("server.port")

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("[SERVER] listening on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[SERVER] shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("[SERVER] stopped")
}
