package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// counterItem is the DynamoDB shape of a daily counter.
type counterItem struct {
	PK    string `dynamodbav:"PK"`
	SK    string `dynamodbav:"SK"`
	Count int    `dynamodbav:"MessageCount"`
	TTL   int64  `dynamodbav:"TTL,omitempty"`
}

// DynamoStore keeps daily counters in a DynamoDB table with PK/SK keys.
// UpdateItem's ADD action is atomic per item.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

// NewDynamoStore creates a counter store on the given table.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, now: time.Now}
}

func dynamoKey(key, day string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "COUNTER#" + key},
		"SK": &types.AttributeValueMemberS{Value: day},
	}
}

func (s *DynamoStore) Count(ctx context.Context, key, day string) (int, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            dynamoKey(key, day),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("getting counter from DynamoDB: %w", err)
	}
	if len(out.Item) == 0 {
		return 0, nil
	}
	var item counterItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return 0, fmt.Errorf("unmarshaling counter: %w", err)
	}
	return item.Count, nil
}

func (s *DynamoStore) Increment(ctx context.Context, key, day string) (int, error) {
	expires := s.now().Add(dailyTTL + 24*time.Hour).Unix()
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              dynamoKey(key, day),
		UpdateExpression: aws.String("ADD MessageCount :one SET #ttl = if_not_exists(#ttl, :ttl)"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "TTL",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(expires, 10)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("incrementing counter in DynamoDB: %w", err)
	}
	var item counterItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return 0, fmt.Errorf("unmarshaling counter: %w", err)
	}
	return item.Count, nil
}
