// Command devtoken mints access tokens for local testing of the gRPC and display APIs.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/dtroode/rollcall-server/internal/config"
	"github.com/dtroode/rollcall-server/internal/token"
)

func main() {
	caller := flag.String("caller", "", "caller id (participant or lecturer); random when empty")
	flag.Parse()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	callerID := uuid.New()
	if *caller != "" {
		if callerID, err = uuid.Parse(*caller); err != nil {
			log.Fatalf("invalid caller id: %v", err)
		}
	}

	tok, err := token.NewJWT(cfg.JWT.Secret, cfg.JWT.TTL).GenerateAccessToken(callerID)
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}
	fmt.Printf("caller: %s\ntoken:  %s\n", callerID, tok)
}
