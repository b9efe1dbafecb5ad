package db

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// AdminUserItem is an operator account for the standalone admin UI
// (separate from merchant Shopify sessions).
type AdminUserItem struct {
	PK string `dynamodbav:"PK"` // ADMINUSER#<username>

	Username     string `dynamodbav:"Username"`
	PasswordHash string `dynamodbav:"PasswordHash"` // bcrypt
	Role         string `dynamodbav:"Role"`
	CreatedAt    string `dynamodbav:"CreatedAt"`
}

func GetAdminUser(ctx context.Context, ddb *dynamodb.Client, table, username string) (*AdminUserItem, error) {
	out, err := ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("ADMINUSER#%s", username)},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	var item AdminUserItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal admin user: %w", err)
	}
	return &item, nil
}
