// Command issue-token prints a bearer token for the API, signed with the configured secret.
package main

import (
	"flag"
	"fmt"
	"os"

	"subject-choices/internal/auth"
	"subject-choices/internal/config"
	"subject-choices/internal/logger"
)

func main() {
	subject := flag.String("sub", "", "actor id to put in the token subject")
	name := flag.String("name", "", "display name")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format, "issue-token")
	log := logger.Get()

	if *subject == "" {
		log.Fatal().Msg("-sub is required")
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize token signing")
	}

	token, err := tokens.Sign(*subject, *name)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}

	fmt.Fprintln(os.Stdout, token)
}
