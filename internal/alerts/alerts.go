package alerts

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"backend/internal/db"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

func shortHash(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}

// EnsureShopAlerts makes sure a per-shop SNS topic exists with the shop
// owner's email subscribed (the owner confirms once), and stores the topic
// ARN on the store record. Returns the topic ARN.
func EnsureShopAlerts(ctx context.Context, ddb *dynamodb.Client, snsClient *sns.Client, storesTable, stage, shopDomain, email string) (string, error) {
	shopDomain = strings.TrimSpace(shopDomain)
	email = strings.TrimSpace(email)
	if shopDomain == "" || email == "" {
		return "", nil
	}

	store, err := db.GetStore(ctx, ddb, storesTable, shopDomain)
	if err == nil && store != nil && store.AlertsTopicArn != "" {
		return store.AlertsTopicArn, nil
	}

	// SNS topic names must stay simple; hash the domain.
	topicName := fmt.Sprintf("tapita-shop-alerts-%s-%s", stage, shortHash(shopDomain))

	ct, err := snsClient.CreateTopic(ctx, &sns.CreateTopicInput{
		Name: aws.String(topicName),
	})
	if err != nil {
		return "", fmt.Errorf("create alerts topic: %w", err)
	}
	topicArn := aws.ToString(ct.TopicArn)

	_, err = snsClient.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn: aws.String(topicArn),
		Protocol: aws.String("email"),
		Endpoint: aws.String(email),
	})
	if err != nil {
		return "", fmt.Errorf("subscribe %s: %w", email, err)
	}

	_, err = ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(storesTable),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: db.StorePK(shopDomain)},
			"SK": &types.AttributeValueMemberS{Value: "META"},
		},
		UpdateExpression: aws.String("SET AlertsTopicArn = :a"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":a": &types.AttributeValueMemberS{Value: topicArn},
		},
	})
	if err != nil {
		return "", fmt.Errorf("store alerts topic arn: %w", err)
	}

	return topicArn, nil
}

// Notify publishes one message to a shop's alert topic. Callers treat
// failures as non-fatal.
func Notify(ctx context.Context, snsClient *sns.Client, topicArn, subject, message string) error {
	if strings.TrimSpace(topicArn) == "" {
		return nil
	}
	_, err := snsClient.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	return err
}
