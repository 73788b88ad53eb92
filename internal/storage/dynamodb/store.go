// Package dynamodb provides a DynamoDB-backed bookmark.Store.
//
// The table uses userId as partition key and bookmarkId as sort key, so a
// listing is a single-partition Query rather than a Scan.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/JakeFAU/bookmarks/internal/bookmark"
)

const (
	// PartitionKey is the DynamoDB partition key attribute name.
	PartitionKey = "userId"
	// SortKey is the DynamoDB sort key attribute name.
	SortKey = "bookmarkId"

	statusAttr = "status"
)

// API is the subset of the DynamoDB client used by Store.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Config selects the table and, optionally, a non-AWS endpoint such as
// DynamoDB Local.
type Config struct {
	Table    string
	Region   string
	Endpoint string
}

// Store implements bookmark.Store on a single DynamoDB table.
type Store struct {
	client API
	table  string
}

// item is the stored shape of a bookmark.
type item struct {
	UserID      string `dynamodbav:"userId"`
	BookmarkID  string `dynamodbav:"bookmarkId"`
	URL         string `dynamodbav:"url"`
	Title       string `dynamodbav:"title"`
	Status      string `dynamodbav:"status"`
	Image       string `dynamodbav:"image"`
	Description string `dynamodbav:"description"`
	CreatedAt   string `dynamodbav:"createdAt"`
	Timestamp   int64  `dynamodbav:"timestamp"`
	SnapshotURI string `dynamodbav:"snapshotUri,omitempty"`
}

// NewFromConfig loads the default AWS configuration and builds a Store.
func NewFromConfig(ctx context.Context, cfg Config) (*Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return New(client, cfg.Table)
}

// New wraps an existing DynamoDB client.
func New(client API, table string) (*Store, error) {
	if client == nil {
		return nil, errors.New("dynamodb client is required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("table name is required")
	}
	return &Store{client: client, table: table}, nil
}

// Ping describes the table for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}); err != nil {
		return fmt.Errorf("describe table %s: %w", s.table, err)
	}
	return nil
}

// Put writes the full bookmark item, replacing any existing one.
func (s *Store) Put(ctx context.Context, b bookmark.Bookmark) error {
	av, err := attributevalue.MarshalMap(toItem(b))
	if err != nil {
		return fmt.Errorf("marshal bookmark: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get reads a single bookmark with a consistent read.
func (s *Store) Get(ctx context.Context, key bookmark.Key) (bookmark.Bookmark, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            keyAttributes(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return bookmark.Bookmark{}, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return bookmark.Bookmark{}, bookmark.ErrNotFound
	}
	return fromAttributes(out.Item)
}

// List queries every bookmark in the owner's partition, following pagination.
func (s *Store) List(ctx context.Context, ownerID string) ([]bookmark.Bookmark, error) {
	keyCond := expression.Key(PartitionKey).Equal(expression.Value(ownerID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("build key condition: %w", err)
	}

	out := make([]bookmark.Bookmark, 0)
	var startKey map[string]dynamodbtypes.AttributeValue
	for {
		page, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.table),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query bookmarks: %w", err)
		}
		for _, raw := range page.Items {
			b, err := fromAttributes(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		startKey = page.LastEvaluatedKey
	}
}

// UpdateStatus sets the status attribute only when the item exists. A failed
// existence condition maps to bookmark.ErrNotFound.
func (s *Store) UpdateStatus(ctx context.Context, key bookmark.Key, status bookmark.Status) error {
	update := expression.Set(expression.Name(statusAttr), expression.Value(string(status)))
	cond := expression.AttributeExists(expression.Name(SortKey))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("build update expression: %w", err)
	}
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       keyAttributes(key),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *dynamodbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return bookmark.ErrNotFound
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// Delete removes the item. Deleting a missing key succeeds.
func (s *Store) Delete(ctx context.Context, key bookmark.Key) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       keyAttributes(key),
	})
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

func keyAttributes(key bookmark.Key) map[string]dynamodbtypes.AttributeValue {
	return map[string]dynamodbtypes.AttributeValue{
		PartitionKey: &dynamodbtypes.AttributeValueMemberS{Value: key.OwnerID},
		SortKey:      &dynamodbtypes.AttributeValueMemberS{Value: key.BookmarkID},
	}
}

func toItem(b bookmark.Bookmark) item {
	return item{
		UserID:      b.OwnerID,
		BookmarkID:  b.BookmarkID,
		URL:         b.URL,
		Title:       b.Title,
		Status:      string(b.Status),
		Image:       b.Image,
		Description: b.Description,
		CreatedAt:   b.CreatedAt.UTC().Format(time.RFC3339Nano),
		Timestamp:   b.Timestamp,
		SnapshotURI: b.SnapshotURI,
	}
}

func fromAttributes(av map[string]dynamodbtypes.AttributeValue) (bookmark.Bookmark, error) {
	var it item
	if err := attributevalue.UnmarshalMap(av, &it); err != nil {
		return bookmark.Bookmark{}, fmt.Errorf("unmarshal bookmark: %w", err)
	}
	b := bookmark.Bookmark{
		OwnerID:     it.UserID,
		BookmarkID:  it.BookmarkID,
		URL:         it.URL,
		Title:       it.Title,
		Status:      bookmark.Status(it.Status),
		Image:       it.Image,
		Description: it.Description,
		Timestamp:   it.Timestamp,
		SnapshotURI: it.SnapshotURI,
	}
	if it.CreatedAt != "" {
		createdAt, err := time.Parse(time.RFC3339Nano, it.CreatedAt)
		if err != nil {
			return bookmark.Bookmark{}, fmt.Errorf("parse createdAt %q: %w", it.CreatedAt, err)
		}
		b.CreatedAt = createdAt.UTC()
	} else if it.Timestamp > 0 {
		b.CreatedAt = time.Unix(it.Timestamp, 0).UTC()
	}
	return b, nil
}
