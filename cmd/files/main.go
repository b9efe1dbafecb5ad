package main

import (
	"context"
	"log"

	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/handlers"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func main() {
	ctx := context.Background()

	cfg := config.Load()
	if err := cfg.Validate("TOKEN_ENC_KEY_B64", "STORES_TABLE", "IMAGES_TABLE"); err != nil {
		log.Fatalf("files: config: %v", err)
	}

	ddb, err := db.NewDynamoClient(ctx)
	if err != nil {
		log.Fatalf("files: dynamo client: %v", err)
	}

	var s3c *s3.Client
	if cfg.ArchiveBucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Fatalf("files: aws config: %v", err)
		}
		s3c = s3.NewFromConfig(awsCfg)
	}

	api := handlers.NewFilesAPI(cfg, ddb, s3c)
	lambda.Start(api.Handle)
}
