// Package main mints signed staff tokens for the pharmledger API.
//
//	token -user u-42 -name "Dana" -roles pharmacist,manager
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"pharmledger/internal/config"
	"pharmledger/internal/domain/auth"
)

func main() {
	var (
		userID   string
		username string
		roles    string
		ttl      time.Duration
	)
	flag.StringVar(&userID, "user", "", "staff user id recorded on movements (required)")
	flag.StringVar(&username, "name", "", "display name")
	flag.StringVar(&roles, "roles", "pharmacist", "comma-separated roles: pharmacist, manager, admin")
	flag.DurationVar(&ttl, "ttl", 0, "token lifetime (default: jwt.ttl from config)")
	flag.Parse()

	if userID == "" {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	jwtConfig := auth.DefaultJWTConfig(cfg.JWT.Secret)
	jwtConfig.Issuer = cfg.JWT.Issuer
	jwtConfig.AccessTokenTTL = cfg.JWT.TTL
	if ttl > 0 {
		jwtConfig.AccessTokenTTL = ttl
	}

	token, expiresAt, err := auth.NewJWTService(jwtConfig).GenerateAccessToken(userID, username, splitRoles(roles))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.UTC().Format(time.RFC3339))
	fmt.Println(token)
}

func splitRoles(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
