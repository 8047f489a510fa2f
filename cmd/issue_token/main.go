package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"mexcGuardBot/config"
	"mexcGuardBot/internal/adapters/httpapi"
)

var (
	subject = flag.String("sub", "operator", "token subject")
	userID  = flag.Int64("user", 0, "restrict the token to one user ID (0 = all users)")
	ttl     = flag.Duration("ttl", 30*24*time.Hour, "token lifetime (0 = no expiry)")
)

// issue_token prints a Bearer token for the HTTP API signed with HTTP_AUTH_SECRET.
func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	if cfg.HTTPAuthSecret == "" {
		log.Fatal("HTTP_AUTH_SECRET is not set")
	}

	token, err := httpapi.IssueToken(cfg.HTTPAuthSecret, *subject, *userID, *ttl)
	if err != nil {
		log.Fatalf("Error signing token: %v", err)
	}
	fmt.Println(token)
}
