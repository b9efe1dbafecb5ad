package main

import (
	"context"
	"log"

	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/handlers"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

func main() {
	ctx := context.Background()

	cfg := config.Load()
	if err := cfg.Validate("SHOPIFY_API_KEY", "SHOPIFY_API_SECRET", "SHOPIFY_SCOPES",
		"SHOPIFY_REDIRECT_BASE", "FRONTEND_BASE_URL", "TOKEN_ENC_KEY_B64",
		"STORES_TABLE", "OAUTH_STATE_TABLE"); err != nil {
		log.Fatalf("shopify: config: %v", err)
	}

	ddb, err := db.NewDynamoClient(ctx)
	if err != nil {
		log.Fatalf("shopify: dynamo client: %v", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("shopify: aws config: %v", err)
	}
	snsClient := sns.NewFromConfig(awsCfg)

	api := handlers.NewOAuthAPI(cfg, ddb, snsClient)
	lambda.Start(api.Handle)
}
