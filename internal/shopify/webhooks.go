package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type webhookCreateReq struct {
	Webhook struct {
		Address string `json:"address"`
		Topic   string `json:"topic"`
		Format  string `json:"format"`
	} `json:"webhook"`
}

// CreateEventBridgeWebhook registers a webhook whose address is the
// EventBridge partner event source ARN. Shopify then delivers the topic to
// the partner event bus.
func CreateEventBridgeWebhook(ctx context.Context, shopDomain, apiVersion, accessToken, topic, eventSourceArn string) error {
	url := fmt.Sprintf("https://%s/admin/api/%s/webhooks.json", shopDomain, apiVersion)

	var payload webhookCreateReq
	payload.Webhook.Address = eventSourceArn
	payload.Webhook.Topic = topic
	payload.Webhook.Format = "json"

	b, _ := json.Marshal(payload)

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", accessToken)

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("create webhook %s failed: http %d: %s", topic, res.StatusCode, string(raw))
	}
	return nil
}

// SubscribeLifecycleTopics subscribes a freshly installed shop to the
// lifecycle topics the backend consumes. Per-topic failures are collected,
// not fatal; the install itself already succeeded.
func SubscribeLifecycleTopics(ctx context.Context, shopDomain, apiVersion, accessToken, eventSourceArn string) (created []string, failed []map[string]string) {
	if eventSourceArn == "" {
		return nil, nil
	}

	topics := []string{
		"app/uninstalled",
	}

	for _, t := range topics {
		if err := CreateEventBridgeWebhook(ctx, shopDomain, apiVersion, accessToken, t, eventSourceArn); err != nil {
			failed = append(failed, map[string]string{"topic": t, "error": err.Error()})
			continue
		}
		created = append(created, t)
	}
	return created, failed
}
