package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pretenderdb/application/services"
	"pretenderdb/domain/attr"
	"pretenderdb/infrastructure/persistence/postgres"
	"pretenderdb/pkg/clock"
)

// newIntegrationEngine connects to the database named by
// PRETENDERDB_TEST_DATABASE_URL, skipping the suite when unset.
func newIntegrationEngine(t *testing.T) (*services.Engine, *clock.Manual) {
	t.Helper()
	url := os.Getenv("PRETENDERDB_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PRETENDERDB_TEST_DATABASE_URL not set; skipping postgres integration tests")
	}

	logger := zap.NewNop()
	db, err := postgres.Connect(context.Background(), url, logger)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	clk := clock.NewManual(time.Now())
	engine := services.NewEngine(
		postgres.NewCatalog(db, logger),
		postgres.NewItemStore(db, logger),
		postgres.NewStreamStore(db, logger),
		clk,
		logger,
		services.Options{},
	)
	return engine, clk
}

// createTable provisions a uniquely-named test table and schedules its
// removal.
func createTable(t *testing.T, e *services.Engine, stream bool) string {
	t.Helper()
	name := "it_" + uuid.NewString()[:8]
	input := &services.CreateTableInput{
		TableName: name,
		AttributeDefinitions: []services.AttributeDefinition{
			{AttributeName: "id", AttributeType: "S"},
			{AttributeName: "status", AttributeType: "S"},
		},
		KeySchema: []services.KeySchemaElement{{AttributeName: "id", KeyType: "HASH"}},
		GlobalSecondaryIndexes: []services.GlobalSecondaryIndexSpec{{
			IndexName:  "StatusIdx",
			KeySchema:  []services.KeySchemaElement{{AttributeName: "status", KeyType: "HASH"}},
			Projection: services.ProjectionSpec{ProjectionType: "ALL"},
		}},
	}
	if stream {
		input.StreamSpecification = &services.StreamSpecification{
			StreamEnabled:  true,
			StreamViewType: "NEW_AND_OLD_IMAGES",
		}
	}
	_, err := e.CreateTable(context.Background(), input)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = e.DeleteTable(context.Background(), &services.DeleteTableInput{TableName: name})
	})
	return name
}

func TestPutQueryUpdateThroughGSI(t *testing.T) {
	e, _ := newIntegrationEngine(t)
	table := createTable(t, e, false)
	ctx := context.Background()

	_, err := e.PutItem(ctx, &services.PutItemInput{
		TableName: table,
		Item: attr.Item{
			"id":     attr.String("a"),
			"status": attr.String("pending"),
			"v":      attr.Number("1"),
		},
	})
	require.NoError(t, err)

	query := func(status string) *services.QueryOutput {
		out, err := e.Query(ctx, &services.QueryInput{
			TableName:                table,
			IndexName:                "StatusIdx",
			KeyConditionExpression:   "#s = :s",
			ExpressionAttributeNames: map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]attr.Value{
				":s": attr.String(status),
			},
		})
		require.NoError(t, err)
		return out
	}
	require.Len(t, query("pending").Items, 1)

	_, err = e.UpdateItem(ctx, &services.UpdateItemInput{
		TableName:                table,
		Key:                      attr.Item{"id": attr.String("a")},
		UpdateExpression:         "SET #s = :v",
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]attr.Value{
			":v": attr.String("active"),
		},
	})
	require.NoError(t, err)

	assert.Len(t, query("pending").Items, 0)
	active := query("active")
	require.Len(t, active.Items, 1)
	assert.True(t, active.Items[0]["v"].Equal(attr.Number("1")))
}

func TestTransactionAtomicityOnPostgres(t *testing.T) {
	e, _ := newIntegrationEngine(t)
	table := createTable(t, e, false)
	ctx := context.Background()

	_, err := e.PutItem(ctx, &services.PutItemInput{
		TableName: table,
		Item: attr.Item{
			"id":      attr.String("r"),
			"status":  attr.String("s"),
			"version": attr.Number("1"),
			"payload": attr.String("orig"),
		},
	})
	require.NoError(t, err)

	_, err = e.TransactWriteItems(ctx, &services.TransactWriteItemsInput{
		TransactItems: []services.TransactWriteItem{
			{Put: &services.TransactPut{
				TableName: table,
				Item:      attr.Item{"id": attr.String("n"), "status": attr.String("s")},
			}},
			{Update: &services.TransactUpdate{
				TableName:           table,
				Key:                 attr.Item{"id": attr.String("r")},
				UpdateExpression:    "SET payload = :p",
				ConditionExpression: "version = :expected",
				ExpressionAttributeValues: map[string]attr.Value{
					":p":        attr.String("changed"),
					":expected": attr.Number("2"),
				},
			}},
		},
	})
	require.Error(t, err)

	got, err := e.GetItem(ctx, &services.GetItemInput{TableName: table, Key: attr.Item{"id": attr.String("n")}})
	require.NoError(t, err)
	assert.Nil(t, got.Item)

	got, err = e.GetItem(ctx, &services.GetItemInput{TableName: table, Key: attr.Item{"id": attr.String("r")}})
	require.NoError(t, err)
	assert.True(t, got.Item["payload"].Equal(attr.String("orig")))
}

func TestSegmentedScanCoversEveryItemOnce(t *testing.T) {
	e, _ := newIntegrationEngine(t)
	table := createTable(t, e, false)
	ctx := context.Background()

	const total = 20
	for i := 0; i < total; i++ {
		_, err := e.PutItem(ctx, &services.PutItemInput{
			TableName: table,
			Item: attr.Item{
				"id":     attr.String(fmt.Sprintf("item-%02d", i)),
				"status": attr.String("s"),
			},
		})
		require.NoError(t, err)
	}

	seen := map[string]int{}
	segments := 3
	for segment := 0; segment < segments; segment++ {
		var startKey attr.Item
		for {
			out, err := e.Scan(ctx, &services.ScanInput{
				TableName:         table,
				Limit:             4,
				Segment:           &segment,
				TotalSegments:     &segments,
				ExclusiveStartKey: startKey,
			})
			require.NoError(t, err)
			for _, item := range out.Items {
				id, _ := item["id"].StringValue()
				seen[id]++
			}
			if out.LastEvaluatedKey == nil {
				break
			}
			startKey = out.LastEvaluatedKey
		}
	}

	assert.Len(t, seen, total)
	for id, count := range seen {
		assert.Equal(t, 1, count, "item %s returned more than once", id)
	}
}

func TestStreamCaptureOrderOnPostgres(t *testing.T) {
	e, _ := newIntegrationEngine(t)
	table := createTable(t, e, true)
	ctx := context.Background()

	_, err := e.PutItem(ctx, &services.PutItemInput{
		TableName: table,
		Item:      attr.Item{"id": attr.String("s"), "status": attr.String("p"), "v": attr.Number("1")},
	})
	require.NoError(t, err)
	_, err = e.UpdateItem(ctx, &services.UpdateItemInput{
		TableName:                 table,
		Key:                       attr.Item{"id": attr.String("s")},
		UpdateExpression:          "SET v = :two",
		ExpressionAttributeValues: map[string]attr.Value{":two": attr.Number("2")},
	})
	require.NoError(t, err)

	list, err := e.ListStreams(ctx, &services.ListStreamsInput{TableName: table})
	require.NoError(t, err)
	require.Len(t, list.Streams, 1)

	iter, err := e.GetShardIterator(ctx, &services.GetShardIteratorInput{
		StreamArn:         list.Streams[0].StreamArn,
		ShardId:           "shardId-00000000000000000000-0000000000000000",
		ShardIteratorType: "TRIM_HORIZON",
	})
	require.NoError(t, err)

	out, err := e.GetRecords(ctx, &services.GetRecordsInput{ShardIterator: iter.ShardIterator})
	require.NoError(t, err)
	require.Len(t, out.Records, 2)
	assert.Equal(t, "INSERT", out.Records[0].EventName)
	assert.Equal(t, "MODIFY", out.Records[1].EventName)
	assert.Nil(t, out.Records[0].Dynamodb.OldImage)
	assert.True(t, out.Records[1].Dynamodb.OldImage["v"].Equal(attr.Number("1")))

	// Polling past the end yields an empty batch and a live iterator.
	out, err = e.GetRecords(ctx, &services.GetRecordsInput{ShardIterator: out.NextShardIterator})
	require.NoError(t, err)
	assert.Empty(t, out.Records)
	assert.NotEmpty(t, out.NextShardIterator)
}

func TestTTLSweepOnPostgres(t *testing.T) {
	e, clk := newIntegrationEngine(t)
	table := createTable(t, e, true)
	ctx := context.Background()

	_, err := e.UpdateTimeToLive(ctx, &services.UpdateTimeToLiveInput{
		TableName: table,
		TimeToLiveSpecification: services.TimeToLiveSpecification{
			Enabled:       true,
			AttributeName: "expires",
		},
	})
	require.NoError(t, err)

	_, err = e.PutItem(ctx, &services.PutItemInput{
		TableName: table,
		Item: attr.Item{
			"id":      attr.String("t"),
			"status":  attr.String("s"),
			"expires": attr.Number(fmt.Sprintf("%d", clk.Now().Unix()-100)),
		},
	})
	require.NoError(t, err)

	require.NoError(t, e.SweepExpired(ctx))

	got, err := e.GetItem(ctx, &services.GetItemInput{TableName: table, Key: attr.Item{"id": attr.String("t")}})
	require.NoError(t, err)
	assert.Nil(t, got.Item)
}
