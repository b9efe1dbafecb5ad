package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"backend/internal/alerts"
	"backend/internal/config"
	"backend/internal/db"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// EBEvent is the EventBridge envelope Shopify delivers webhook
// payloads in; headers arrive under detail.metadata.
type EBEvent struct {
	DetailType string         `json:"detail-type"`
	Source     string         `json:"source"`
	Time       string         `json:"time"`
	Detail     map[string]any `json:"detail"`
}

type worker struct {
	cfg *config.Config
	ddb *dynamodb.Client
	sns *sns.Client
}

func (w *worker) handler(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	failures := make([]events.SQSBatchItemFailure, 0)

	for _, rec := range sqsEvent.Records {
		if err := w.processOne(ctx, rec.Body); err != nil {
			fmt.Printf("uninstall-worker: msgId=%s failed: %v\n", rec.MessageId, err)
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}

	return events.SQSEventResponse{BatchItemFailures: failures}, nil
}

func (w *worker) processOne(ctx context.Context, body string) error {
	var e EBEvent
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		return fmt.Errorf("unmarshal eb event: %w", err)
	}

	meta := asMap(pickAny(e.Detail, "metadata"))
	topic := pickString(meta, "X-Shopify-Topic")
	shopDomain := pickString(meta, "X-Shopify-Shop-Domain")

	if topic != "app/uninstalled" || shopDomain == "" {
		// Not ours; treat as success (should not happen due to filter)
		return nil
	}

	store, err := db.GetStore(ctx, w.ddb, w.cfg.StoresTable, shopDomain)
	if err != nil {
		return fmt.Errorf("load store %s: %w", shopDomain, err)
	}
	if store == nil {
		// Never installed (or already purged); nothing to do.
		return nil
	}

	nowISO := time.Now().UTC().Format(time.RFC3339)
	if err := db.MarkUninstalled(ctx, w.ddb, w.cfg.StoresTable, shopDomain, nowISO); err != nil {
		return fmt.Errorf("mark uninstalled %s: %w", shopDomain, err)
	}

	if store.AlertsTopicArn != "" {
		msg := fmt.Sprintf("Shop %s uninstalled the app at %s.", shopDomain, nowISO)
		if err := alerts.Notify(ctx, w.sns, store.AlertsTopicArn, "App uninstalled", msg); err != nil {
			fmt.Printf("uninstall-worker: alert for %s failed: %v\n", shopDomain, err)
		}
	}

	return nil
}

func pickString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func pickAny(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func main() {
	ctx := context.Background()

	cfg := config.Load()
	if err := cfg.Validate("STORES_TABLE"); err != nil {
		log.Fatalf("uninstall-worker: config: %v", err)
	}

	ddb, err := db.NewDynamoClient(ctx)
	if err != nil {
		log.Fatalf("uninstall-worker: dynamo client: %v", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("uninstall-worker: aws config: %v", err)
	}

	w := &worker{cfg: cfg, ddb: ddb, sns: sns.NewFromConfig(awsCfg)}
	lambda.Start(w.handler)
}
