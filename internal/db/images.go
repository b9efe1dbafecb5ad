package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ImageItem records one optimize or upload run.
// PK = SHOP#<domain>, SK = IMAGE#<createdAt rfc3339nano>#<media id suffix>.
// Items are written once and never mutated; every run appends a new row
// (no dedup across runs on the same source image).
type ImageItem struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`

	Shop       string `dynamodbav:"Shop"`
	SourceType string `dynamodbav:"SourceType"` // optimized | upload

	// Present only for SourceType=optimized
	OriginalMediaID string `dynamodbav:"OriginalMediaId,omitempty"`
	OriginalURL     string `dynamodbav:"OriginalUrl,omitempty"`

	MediaID  string `dynamodbav:"MediaId"`
	URL      string `dynamodbav:"Url,omitempty"` // may be empty when CDN indexing never resolved
	Width    int    `dynamodbav:"Width"`
	Height   int    `dynamodbav:"Height"`
	Size     int    `dynamodbav:"Size"`
	Filename string `dynamodbav:"Filename"`

	CreatedAt string `dynamodbav:"CreatedAt"`
}

// PutImage writes the record, deriving keys from shop, timestamp and the
// media id suffix so concurrent runs never collide.
func PutImage(ctx context.Context, ddb *dynamodb.Client, table string, item ImageItem) error {
	if item.CreatedAt == "" {
		item.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	suffix := item.MediaID
	if i := strings.LastIndex(suffix, "/"); i >= 0 {
		suffix = suffix[i+1:]
	}
	item.PK = StorePK(item.Shop)
	item.SK = fmt.Sprintf("IMAGE#%s#%s", time.Now().UTC().Format(time.RFC3339Nano), suffix)

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal image item: %w", err)
	}
	_, err = ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put image item: %w", err)
	}
	return nil
}

// ListImagesForShop returns the shop's recorded runs, newest last.
func ListImagesForShop(ctx context.Context, ddb *dynamodb.Client, table, shopDomain string, limit int32) ([]ImageItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	out, err := ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(table),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :pref)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: StorePK(shopDomain)},
			":pref": &types.AttributeValueMemberS{Value: "IMAGE#"},
		},
		Limit: aws.Int32(limit),
	})
	if err != nil {
		return nil, err
	}
	items := make([]ImageItem, 0, len(out.Items))
	for _, raw := range out.Items {
		var item ImageItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}
