package db

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// CommentItem is a merchant note attached to a product.
// PK = PRODUCT#<numeric id>, SK = COMMENT#<createdAt rfc3339nano>.
type CommentItem struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`

	ProductGID string `dynamodbav:"ProductGid"`
	ProductID  string `dynamodbav:"ProductId"`
	Shop       string `dynamodbav:"Shop"`
	Comment    string `dynamodbav:"Comment"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
}

func PutComment(ctx context.Context, ddb *dynamodb.Client, table string, item CommentItem) error {
	now := time.Now().UTC()
	if item.CreatedAt == "" {
		item.CreatedAt = now.Format(time.RFC3339)
	}
	item.PK = fmt.Sprintf("PRODUCT#%s", item.ProductID)
	item.SK = fmt.Sprintf("COMMENT#%s", now.Format(time.RFC3339Nano))

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal comment item: %w", err)
	}
	_, err = ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put comment item: %w", err)
	}
	return nil
}
