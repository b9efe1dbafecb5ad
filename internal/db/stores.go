package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// StoreItem is the per-shop install record.
// PK = SHOP#<myshopify_domain>, SK = META.
// GSI1 (GSI1PK = SHOPID#<numeric id>) serves lookups by the numeric shop id
// the admin UI works with.
type StoreItem struct {
	PK     string `dynamodbav:"PK"`
	SK     string `dynamodbav:"SK"`
	GSI1PK string `dynamodbav:"GSI1PK"`
	GSI1SK string `dynamodbav:"GSI1SK"`

	ShopID          int64  `dynamodbav:"ShopID"`
	Shop            string `dynamodbav:"Shop"`
	Name            string `dynamodbav:"Name"`
	Email           string `dynamodbav:"Email"`
	Domain          string `dynamodbav:"Domain"`
	MyshopifyDomain string `dynamodbav:"MyshopifyDomain"`
	PlanDisplayName string `dynamodbav:"PlanDisplayName"`
	Country         string `dynamodbav:"Country"`
	Currency        string `dynamodbav:"Currency"`
	IanaTimezone    string `dynamodbav:"IanaTimezone"`
	Address1        string `dynamodbav:"Address1"`
	Address2        string `dynamodbav:"Address2,omitempty"`
	Phone           string `dynamodbav:"Phone,omitempty"`
	Scope           string `dynamodbav:"Scope"`
	ShopCreatedAt   string `dynamodbav:"ShopCreatedAt"`

	// Offline token, AES-GCM sealed. Never stored in the clear.
	AccessTokenEnc string `dynamodbav:"AccessTokenEnc"`

	Status         string `dynamodbav:"Status"` // installed | uninstalled
	InstalledAt    string `dynamodbav:"InstalledAt"`
	UninstalledAt  string `dynamodbav:"UninstalledAt,omitempty"`
	AlertsTopicArn string `dynamodbav:"AlertsTopicArn,omitempty"`
}

func StorePK(shopDomain string) string {
	return fmt.Sprintf("SHOP#%s", shopDomain)
}

func storeGSI1PK(shopID int64) string {
	return fmt.Sprintf("SHOPID#%d", shopID)
}

// UpsertStore writes the full store record. Install and shop-sync both go
// through here; last write wins on purpose (the shop info is a mirror).
func UpsertStore(ctx context.Context, ddb *dynamodb.Client, table string, item StoreItem) error {
	item.PK = StorePK(item.MyshopifyDomain)
	item.SK = "META"
	item.GSI1PK = storeGSI1PK(item.ShopID)
	item.GSI1SK = "META"

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal store item: %w", err)
	}
	_, err = ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put store item: %w", err)
	}
	return nil
}

func GetStore(ctx context.Context, ddb *dynamodb.Client, table, shopDomain string) (*StoreItem, error) {
	out, err := ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: StorePK(shopDomain)},
			"SK": &types.AttributeValueMemberS{Value: "META"},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	var item StoreItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal store item: %w", err)
	}
	return &item, nil
}

// GetStoreByShopID queries GSI1 for the numeric shop id.
func GetStoreByShopID(ctx context.Context, ddb *dynamodb.Client, table string, shopID int64) (*StoreItem, error) {
	out, err := ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(table),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: storeGSI1PK(shopID)},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var item StoreItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &item); err != nil {
		return nil, fmt.Errorf("unmarshal store item: %w", err)
	}
	return &item, nil
}

// ListStores scans the stores table. The install base is small (one row per
// merchant), so a scan is fine here.
func ListStores(ctx context.Context, ddb *dynamodb.Client, table string) ([]StoreItem, error) {
	out, err := ddb.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(table),
		FilterExpression: aws.String("SK = :meta"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":meta": &types.AttributeValueMemberS{Value: "META"},
		},
	})
	if err != nil {
		return nil, err
	}
	items := make([]StoreItem, 0, len(out.Items))
	for _, raw := range out.Items {
		var item StoreItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// MarkUninstalled flags the store record after an app/uninstalled webhook.
// The record is kept (re-installs reuse it); only the token is dropped.
func MarkUninstalled(ctx context.Context, ddb *dynamodb.Client, table, shopDomain, atISO string) error {
	if strings.TrimSpace(shopDomain) == "" {
		return fmt.Errorf("missing shop domain")
	}
	_, err := ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: StorePK(shopDomain)},
			"SK": &types.AttributeValueMemberS{Value: "META"},
		},
		UpdateExpression: aws.String("SET #st = :u, UninstalledAt = :a REMOVE AccessTokenEnc"),
		ExpressionAttributeNames: map[string]string{
			"#st": "Status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: "uninstalled"},
			":a": &types.AttributeValueMemberS{Value: atISO},
		},
	})
	return err
}
