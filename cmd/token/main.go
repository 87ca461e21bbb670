// Command token issues a bearer token for local testing against the auction server.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"live-auction/internal/auth"
	"live-auction/internal/config"
	"live-auction/utils"

	"github.com/joho/godotenv"
)

func main() {
	var (
		userID = flag.String("user", "", "user id to embed in the token")
		ttl    = flag.Duration("ttl", 0, "token lifetime (defaults to auth.token_ttl)")
	)
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: token -user <id> [-ttl 1h]")
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		utils.Fatal("failed to load configuration", map[string]any{"error": err.Error()})
	}

	lifetime := cfg.Auth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	token, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, lifetime).Issue(*userID, time.Now())
	if err != nil {
		utils.Fatal("failed to issue token", map[string]any{"error": err.Error()})
	}
	fmt.Println(token)
}
