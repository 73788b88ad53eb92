package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bookmarks/internal/bookmark"
)

// mockAPI is a mock implementation of API for testing.
type mockAPI struct {
	putItemFunc       func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	getItemFunc       func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	queryFunc         func(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	updateItemFunc    func(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	deleteItemFunc    func(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	describeTableFunc func(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

func (m *mockAPI) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.putItemFunc != nil {
		return m.putItemFunc(ctx, params, optFns...)
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockAPI) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getItemFunc != nil {
		return m.getItemFunc(ctx, params, optFns...)
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockAPI) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, params, optFns...)
	}
	return &dynamodb.QueryOutput{}, nil
}

func (m *mockAPI) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if m.updateItemFunc != nil {
		return m.updateItemFunc(ctx, params, optFns...)
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockAPI) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if m.deleteItemFunc != nil {
		return m.deleteItemFunc(ctx, params, optFns...)
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockAPI) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if m.describeTableFunc != nil {
		return m.describeTableFunc(ctx, params, optFns...)
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func newTestStore(t *testing.T, mock *mockAPI) *Store {
	t.Helper()
	store, err := New(mock, "bookmarks-table")
	require.NoError(t, err)
	return store
}

func sample() bookmark.Bookmark {
	created := time.Unix(1700000000, 0).UTC()
	return bookmark.Bookmark{
		OwnerID:     "guest",
		BookmarkID:  "b-1",
		URL:         "https://example.com",
		Title:       "Example",
		Status:      bookmark.StatusUnread,
		Image:       "https://example.com/i.png",
		Description: "desc",
		CreatedAt:   created,
		Timestamp:   created.Unix(),
	}
}

func marshalItem(t *testing.T, b bookmark.Bookmark) map[string]dynamodbtypes.AttributeValue {
	t.Helper()
	av, err := attributevalue.MarshalMap(toItem(b))
	require.NoError(t, err)
	return av
}

func stringAttr(t *testing.T, av map[string]dynamodbtypes.AttributeValue, name string) string {
	t.Helper()
	s, ok := av[name].(*dynamodbtypes.AttributeValueMemberS)
	require.True(t, ok, "attribute %s is not a string", name)
	return s.Value
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "table")
	require.Error(t, err)

	_, err = New(&mockAPI{}, " ")
	require.Error(t, err)
}

func TestPut_WritesItem(t *testing.T) {
	t.Parallel()

	var captured *dynamodb.PutItemInput
	store := newTestStore(t, &mockAPI{
		putItemFunc: func(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			captured = params
			return &dynamodb.PutItemOutput{}, nil
		},
	})

	require.NoError(t, store.Put(context.Background(), sample()))
	require.NotNil(t, captured)
	assert.Equal(t, "bookmarks-table", aws.ToString(captured.TableName))
	assert.Equal(t, "guest", stringAttr(t, captured.Item, "userId"))
	assert.Equal(t, "b-1", stringAttr(t, captured.Item, "bookmarkId"))
	assert.Equal(t, "unread", stringAttr(t, captured.Item, "status"))
	assert.Equal(t, "2023-11-14T22:13:20Z", stringAttr(t, captured.Item, "createdAt"))
	assert.NotContains(t, captured.Item, "snapshotUri")
}

func TestPut_Error(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &mockAPI{
		putItemFunc: func(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			return nil, errors.New("throttled")
		},
	})
	require.ErrorContains(t, store.Put(context.Background(), sample()), "put item")
}

func TestGet(t *testing.T) {
	t.Parallel()

	b := sample()
	store := newTestStore(t, &mockAPI{
		getItemFunc: func(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			if stringAttr(t, params.Key, "bookmarkId") != "b-1" {
				return &dynamodb.GetItemOutput{}, nil
			}
			assert.True(t, aws.ToBool(params.ConsistentRead))
			return &dynamodb.GetItemOutput{Item: marshalItem(t, b)}, nil
		},
	})

	got, err := store.Get(context.Background(), b.Key())
	require.NoError(t, err)
	require.Equal(t, b, got)

	_, err = store.Get(context.Background(), bookmark.Key{OwnerID: "guest", BookmarkID: "missing"})
	require.ErrorIs(t, err, bookmark.ErrNotFound)
}

func TestList_FollowsPagination(t *testing.T) {
	t.Parallel()

	first := sample()
	second := sample()
	second.BookmarkID = "b-2"
	second.SnapshotURI = "gs://snaps/guest/b-2.html"

	calls := 0
	store := newTestStore(t, &mockAPI{
		queryFunc: func(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			calls++
			require.NotNil(t, params.KeyConditionExpression)
			switch calls {
			case 1:
				require.Nil(t, params.ExclusiveStartKey)
				return &dynamodb.QueryOutput{
					Items:            []map[string]dynamodbtypes.AttributeValue{marshalItem(t, first)},
					LastEvaluatedKey: keyAttributes(first.Key()),
				}, nil
			default:
				require.Equal(t, "b-1", stringAttr(t, params.ExclusiveStartKey, "bookmarkId"))
				return &dynamodb.QueryOutput{
					Items: []map[string]dynamodbtypes.AttributeValue{marshalItem(t, second)},
				}, nil
			}
		},
	})

	got, err := store.List(context.Background(), "guest")
	require.NoError(t, err)
	require.Equal(t, []bookmark.Bookmark{first, second}, got)
	require.Equal(t, 2, calls)
}

func TestList_EmptyIsNotNil(t *testing.T) {
	t.Parallel()

	got, err := newTestStore(t, &mockAPI{}).List(context.Background(), "guest")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestUpdateStatus(t *testing.T) {
	t.Parallel()

	var captured *dynamodb.UpdateItemInput
	store := newTestStore(t, &mockAPI{
		updateItemFunc: func(_ context.Context, params *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			captured = params
			return &dynamodb.UpdateItemOutput{}, nil
		},
	})

	require.NoError(t, store.UpdateStatus(context.Background(), sample().Key(), bookmark.StatusLearning))
	require.NotNil(t, captured.ConditionExpression)
	require.Contains(t, aws.ToString(captured.ConditionExpression), "attribute_exists")
	require.Contains(t, aws.ToString(captured.UpdateExpression), "SET")

	var values []string
	for _, v := range captured.ExpressionAttributeValues {
		if s, ok := v.(*dynamodbtypes.AttributeValueMemberS); ok {
			values = append(values, s.Value)
		}
	}
	require.Contains(t, values, "learning")
}

func TestUpdateStatus_MissingItem(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &mockAPI{
		updateItemFunc: func(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			return nil, &dynamodbtypes.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		},
	})

	err := store.UpdateStatus(context.Background(), sample().Key(), bookmark.StatusDone)
	require.ErrorIs(t, err, bookmark.ErrNotFound)
}

func TestUpdateStatus_OtherError(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &mockAPI{
		updateItemFunc: func(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
			return nil, errors.New("throttled")
		},
	})

	err := store.UpdateStatus(context.Background(), sample().Key(), bookmark.StatusDone)
	require.Error(t, err)
	require.NotErrorIs(t, err, bookmark.ErrNotFound)
}

func TestDelete(t *testing.T) {
	t.Parallel()

	var captured *dynamodb.DeleteItemInput
	store := newTestStore(t, &mockAPI{
		deleteItemFunc: func(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
			captured = params
			return &dynamodb.DeleteItemOutput{}, nil
		},
	})

	require.NoError(t, store.Delete(context.Background(), sample().Key()))
	assert.Equal(t, "guest", stringAttr(t, captured.Key, "userId"))
	assert.Equal(t, "b-1", stringAttr(t, captured.Key, "bookmarkId"))
}

func TestPing(t *testing.T) {
	t.Parallel()

	require.NoError(t, newTestStore(t, &mockAPI{}).Ping(context.Background()))

	store := newTestStore(t, &mockAPI{
		describeTableFunc: func(context.Context, *dynamodb.DescribeTableInput, ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
			return nil, &dynamodbtypes.ResourceNotFoundException{Message: aws.String("no table")}
		},
	})
	require.Error(t, store.Ping(context.Background()))
}

func TestFromAttributes_LegacyItemWithoutCreatedAt(t *testing.T) {
	t.Parallel()

	av := map[string]dynamodbtypes.AttributeValue{
		"userId":     &dynamodbtypes.AttributeValueMemberS{Value: "guest"},
		"bookmarkId": &dynamodbtypes.AttributeValueMemberS{Value: "old"},
		"url":        &dynamodbtypes.AttributeValueMemberS{Value: "https://example.com"},
		"status":     &dynamodbtypes.AttributeValueMemberS{Value: "done"},
		"timestamp":  &dynamodbtypes.AttributeValueMemberN{Value: "1700000000"},
	}
	b, err := fromAttributes(av)
	require.NoError(t, err)
	require.Equal(t, bookmark.StatusDone, b.Status)
	require.Equal(t, time.Unix(1700000000, 0).UTC(), b.CreatedAt)
}
