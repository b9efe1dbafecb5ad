package main

import (
	"context"
	"log"

	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/handlers"

	"github.com/aws/aws-lambda-go/lambda"
)

func main() {
	ctx := context.Background()

	cfg := config.Load()
	if err := cfg.Validate("ADMIN_JWT_SECRET", "ADMIN_USERS_TABLE", "STORES_TABLE", "TOKEN_ENC_KEY_B64"); err != nil {
		log.Fatalf("admin: config: %v", err)
	}

	ddb, err := db.NewDynamoClient(ctx)
	if err != nil {
		log.Fatalf("admin: dynamo client: %v", err)
	}

	api := handlers.NewAdminPortalAPI(cfg, ddb)
	lambda.Start(api.Handle)
}
