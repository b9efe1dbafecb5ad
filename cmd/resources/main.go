package main

import (
	"context"
	"log"

	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/handlers"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

func main() {
	ctx := context.Background()

	cfg := config.Load()
	if err := cfg.Validate("TOKEN_ENC_KEY_B64", "STORES_TABLE", "COMMENTS_TABLE", "BEDROCK_MODEL_ID"); err != nil {
		log.Fatalf("resources: config: %v", err)
	}

	ddb, err := db.NewDynamoClient(ctx)
	if err != nil {
		log.Fatalf("resources: dynamo client: %v", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("resources: aws config: %v", err)
	}
	bedrock := bedrockruntime.NewFromConfig(awsCfg)

	api := handlers.NewResourcesAPI(cfg, ddb, bedrock)
	lambda.Start(api.Handle)
}
