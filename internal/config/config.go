package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// EngineConfig carries the tunable parameters for the rewards engine.
// Everything has a default so the server boots with an empty environment,
// but production deployments override via .env or real env vars.
type EngineConfig struct {
	// Vote settings
	FlipWindow      time.Duration
	MemberLikeDelta int64
	ModLikeDelta    int64
	DislikeDelta    int64

	// Weekly distribution settings
	AllTimeBps      int64
	VoterBps        int64
	MinWeeklyScore  int64
	MinAllTimeScore int64
	MinVotesCast    int64
	MinMvmPoints    int64

	// Raffle settings
	TicketPriceMicro int64
	MatchCapMicro    int64 // 0 means uncapped
	ClaimWindow      time.Duration

	// Solana settings
	RPCEndpoint string
	TokenMint   string
}

// Load reads configuration from .env and the environment, with an
// explicit BindEnv per key so plain env vars work without a config file.
func Load() {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	if err := viper.ReadInConfig(); err != nil {
		log.Printf("[CONFIG] no .env file found, using environment variables")
	}
	viper.AutomaticEnv()

	bindings := map[string]string{
		"database.host":     "DB_HOST",
		"database.port":     "DB_PORT",
		"database.user":     "DB_USER",
		"database.password": "DB_PASSWORD",
		"database.name":     "DB_NAME",
		"database.ssl_mode": "DB_SSL_MODE",
		"redis.addr":        "REDIS_ADDR",
		"redis.password":    "REDIS_PASSWORD",
		"server.port":       "SERVER_PORT",
		"jwt.secret_key":    "JWT_SECRET_KEY",
		"cron.secret":       "CRON_SECRET",
		"solana.rpc_url":    "SOLANA_RPC_URL",
		"solana.token_mint": "SOLANA_TOKEN_MINT",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			log.Printf("[CONFIG] failed to bind %s: %v", env, err)
		}
	}
}

// Engine returns the engine parameters with defaults applied.
func Engine() *EngineConfig {
	viper.SetDefault("engine.flip_window", time.Minute)
	viper.SetDefault("engine.member_like_delta", 5)
	viper.SetDefault("engine.mod_like_delta", 15)
	viper.SetDefault("engine.dislike_delta", -1)
	viper.SetDefault("engine.alltime_bps", 1500)
	viper.SetDefault("engine.voter_bps", 1000)
	viper.SetDefault("engine.min_weekly_score", 1)
	viper.SetDefault("engine.min_alltime_score", 1)
	viper.SetDefault("engine.min_votes_cast", 1)
	viper.SetDefault("engine.min_mvm_points", 1)
	viper.SetDefault("engine.ticket_price_micro", 1000)
	viper.SetDefault("engine.match_cap_micro", 0)
	viper.SetDefault("engine.claim_window", 7*24*time.Hour)

	return &EngineConfig{
		FlipWindow:       viper.GetDuration("engine.flip_window"),
		MemberLikeDelta:  viper.GetInt64("engine.member_like_delta"),
		ModLikeDelta:     viper.GetInt64("engine.mod_like_delta"),
		DislikeDelta:     viper.GetInt64("engine.dislike_delta"),
		AllTimeBps:       viper.GetInt64("engine.alltime_bps"),
		VoterBps:         viper.GetInt64("engine.voter_bps"),
		MinWeeklyScore:   viper.GetInt64("engine.min_weekly_score"),
		MinAllTimeScore:  viper.GetInt64("engine.min_alltime_score"),
		MinVotesCast:     viper.GetInt64("engine.min_votes_cast"),
		MinMvmPoints:     viper.GetInt64("engine.min_mvm_points"),
		TicketPriceMicro: viper.GetInt64("engine.ticket_price_micro"),
		MatchCapMicro:    viper.GetInt64("engine.match_cap_micro"),
		ClaimWindow:      viper.GetDuration("engine.claim_window"),
		RPCEndpoint:      viper.GetString("solana.rpc_url"),
		TokenMint:        viper.GetString("solana.token_mint"),
	}
}
