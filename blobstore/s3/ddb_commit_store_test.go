package s3

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dualmat/blobstore"
)

// mockDDBClient is an in-memory DynamoDB table keyed by base_uri and version.
type mockDDBClient struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{items: make(map[string]map[string]types.AttributeValue)}
}

func attrS(item map[string]types.AttributeValue, name string) string {
	return item[name].(*types.AttributeValueMemberS).Value
}

func attrN(item map[string]types.AttributeValue, name string) uint64 {
	v, _ := strconv.ParseUint(item[name].(*types.AttributeValueMemberN).Value, 10, 64)
	return v
}

func (m *mockDDBClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("%s:%d", attrS(params.Item, "base_uri"), attrN(params.Item, "version"))
	if aws.ToString(params.ConditionExpression) == "attribute_not_exists(version)" {
		if _, exists := m.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}
	m.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uri := params.ExpressionAttributeValues[":uri"].(*types.AttributeValueMemberS).Value

	var items []map[string]types.AttributeValue
	for _, item := range m.items {
		if attrS(item, "base_uri") == uri {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a, b map[string]types.AttributeValue) int {
		av, bv := attrN(a, "version"), attrN(b, "version")
		switch {
		case av > bv:
			return -1
		case av < bv:
			return 1
		}
		return 0
	})

	if params.Limit != nil && int(*params.Limit) < len(items) {
		items = items[:*params.Limit]
	}
	return &dynamodb.QueryOutput{Items: items}, nil
}

func newTestDDBCommitStore(ddb DDBClient, baseURI string) (*DDBCommitStore, *MockS3Client) {
	client := new(MockS3Client)
	return NewDDBCommitStore(newTestStore(client), ddb, "dualmat-commits", baseURI), client
}

func readCurrent(t *testing.T, store blobstore.BlobStore, name string) string {
	t.Helper()
	data, err := blobstore.ReadAll(context.Background(), store, name)
	require.NoError(t, err)
	return string(data)
}

func TestDDBCommitStore_FirstCommit(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestDDBCommitStore(newMockDDBClient(), "s3://test-bucket/test")

	require.NoError(t, store.Put(ctx, "graph/CURRENT", []byte("graph/manifest-1.json")))
	assert.Equal(t, "graph/manifest-1.json", readCurrent(t, store, "graph/CURRENT"))

	version, err := store.Version(ctx, "graph/CURRENT")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
}

func TestDDBCommitStore_MultipleCommits(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestDDBCommitStore(newMockDDBClient(), "s3://test-bucket/test")

	for i := 1; i <= 12; i++ {
		require.NoError(t, store.Put(ctx, "CURRENT", []byte(fmt.Sprintf("manifest-%d.json", i))))
	}

	assert.Equal(t, "manifest-12.json", readCurrent(t, store, "CURRENT"))

	version, err := store.Version(ctx, "CURRENT")
	require.NoError(t, err)
	assert.Equal(t, uint64(12), version)
}

func TestDDBCommitStore_ConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestDDBCommitStore(newMockDDBClient(), "s3://test-bucket/test")

	require.NoError(t, store.Put(ctx, "CURRENT", []byte("manifest-1.json")))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := range 5 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			err := store.Put(ctx, "CURRENT", []byte(fmt.Sprintf("manifest-%d.json", id+2)))
			if err != nil && !errors.Is(err, ErrConcurrentModification) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Positive(t, successes)
	version, err := store.Version(ctx, "CURRENT")
	require.NoError(t, err)
	assert.Equal(t, uint64(1+successes), version)
}

func TestDDBCommitStore_NotFoundBeforeCommit(t *testing.T) {
	store, _ := newTestDDBCommitStore(newMockDDBClient(), "s3://test-bucket/test")

	_, err := store.Open(context.Background(), "graph/CURRENT")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestDDBCommitStore_IsolatedNamespaces(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()

	storeA, _ := newTestDDBCommitStore(ddb, "s3://bucket-a/path")
	storeB, _ := newTestDDBCommitStore(ddb, "s3://bucket-b/path")

	require.NoError(t, storeA.Put(ctx, "CURRENT", []byte("a")))
	require.NoError(t, storeB.Put(ctx, "CURRENT", []byte("b")))
	require.NoError(t, storeA.Put(ctx, "other/CURRENT", []byte("a-other")))

	assert.Equal(t, "a", readCurrent(t, storeA, "CURRENT"))
	assert.Equal(t, "b", readCurrent(t, storeB, "CURRENT"))
	assert.Equal(t, "a-other", readCurrent(t, storeA, "other/CURRENT"))
}

func TestDDBCommitStore_PassesThroughToS3(t *testing.T) {
	ctx := context.Background()
	store, client := newTestDDBCommitStore(newMockDDBClient(), "s3://test-bucket/test")

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Key) == "test/graph/entries"
	})).Return(&s3.PutObjectOutput{}, nil)
	client.On("DeleteObject", mock.Anything, mock.Anything).Return(&s3.DeleteObjectOutput{}, nil)

	require.NoError(t, store.Put(ctx, "graph/entries", []byte("data")))
	require.NoError(t, store.Delete(ctx, "graph/entries"))
	require.NoError(t, store.Delete(ctx, "graph/CURRENT"))

	_, err := store.Create(ctx, "graph/CURRENT")
	require.Error(t, err)

	client.AssertNumberOfCalls(t, "DeleteObject", 1)
	client.AssertExpectations(t)
}

type failingDDB struct{ mockDDBClient }

func (f *failingDDB) Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return nil, errors.New("throttled")
}

func TestDDBCommitStore_QueryError(t *testing.T) {
	store, _ := newTestDDBCommitStore(&failingDDB{}, "s3://test-bucket/test")

	err := store.Put(context.Background(), "CURRENT", []byte("m"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
