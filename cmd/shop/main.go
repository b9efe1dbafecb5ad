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
	if err := cfg.Validate("TOKEN_ENC_KEY_B64", "STORES_TABLE"); err != nil {
		log.Fatalf("shop: config: %v", err)
	}

	ddb, err := db.NewDynamoClient(ctx)
	if err != nil {
		log.Fatalf("shop: dynamo client: %v", err)
	}

	api := handlers.NewShopAPI(cfg, ddb)
	lambda.Start(api.Handle)
}
