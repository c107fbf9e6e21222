package awscompat

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pretenderdb/domain/attr"
	"pretenderdb/domain/schema"
	"pretenderdb/domain/streams"
)

func TestFromSDKItemViaAttributevalue(t *testing.T) {
	type order struct {
		ID     string            `dynamodbav:"id"`
		Amount int               `dynamodbav:"amount"`
		Tags   []string          `dynamodbav:"tags,stringset"`
		Meta   map[string]string `dynamodbav:"meta"`
		Open   bool              `dynamodbav:"open"`
	}
	marshalled, err := attributevalue.MarshalMap(order{
		ID:     "o-1",
		Amount: 250,
		Tags:   []string{"a", "b"},
		Meta:   map[string]string{"k": "v"},
		Open:   true,
	})
	require.NoError(t, err)

	item, err := FromSDKItem(marshalled)
	require.NoError(t, err)

	assert.True(t, item["id"].Equal(attr.String("o-1")))
	assert.True(t, item["amount"].Equal(attr.Number("250")))
	assert.True(t, item["tags"].Equal(attr.StringSet("a", "b")))
	assert.True(t, item["open"].Equal(attr.Bool(true)))
	meta, ok := item["meta"].MapEntries()
	require.True(t, ok)
	assert.True(t, meta["k"].Equal(attr.String("v")))
}

func TestRoundTrip(t *testing.T) {
	item := attr.Item{
		"s":    attr.String("x"),
		"n":    attr.Number("1.50"),
		"b":    attr.Binary([]byte{1, 2}),
		"bool": attr.Bool(false),
		"null": attr.Null(),
		"ss":   attr.StringSet("a"),
		"ns":   attr.NumberSet("1", "2"),
		"bs":   attr.BinarySet([]byte{9}),
		"l":    attr.List(attr.Number("7"), attr.String("y")),
		"m":    attr.Map(map[string]attr.Value{"inner": attr.Bool(true)}),
	}
	sdk, err := ToSDKItem(item)
	require.NoError(t, err)

	back, err := FromSDKItem(sdk)
	require.NoError(t, err)
	assert.True(t, item.Equal(back))
}

func TestFromSDKRejectsBadNumbers(t *testing.T) {
	_, err := FromSDK(&dynamodbtypes.AttributeValueMemberN{Value: "not-a-number"})
	assert.Error(t, err)

	_, err = FromSDK(&dynamodbtypes.AttributeValueMemberNS{Value: []string{"1", "x"}})
	assert.Error(t, err)
}

func TestToStreamsRecord(t *testing.T) {
	def := schema.TableDefinition{
		Name: "t",
		Keys: schema.KeySchema{HashKey: "id"},
		AttributeTypes: map[string]attr.Type{"id": attr.TypeString},
		Stream: schema.StreamSpec{Enabled: true, ViewType: schema.StreamViewNewAndOldImages},
	}
	rec := streams.Record{
		StreamID:       "sid",
		SequenceNumber: 42,
		EventName:      streams.EventModify,
		Keys:           attr.Item{"id": attr.String("a")},
		OldImage:       attr.Item{"id": attr.String("a"), "v": attr.Number("1")},
		NewImage:       attr.Item{"id": attr.String("a"), "v": attr.Number("2")},
		CreatedAt:      time.Unix(1700000000, 0).UTC(),
		UserIdentity:   &streams.UserIdentity{Type: "Service", PrincipalID: "dynamodb.amazonaws.com"},
	}

	out, err := ToStreamsRecord(def, rec)
	require.NoError(t, err)

	assert.Equal(t, streamtypes.OperationTypeModify, out.EventName)
	require.NotNil(t, out.Dynamodb)
	assert.Equal(t, "42", *out.Dynamodb.SequenceNumber)
	assert.Equal(t, streamtypes.StreamViewTypeNewAndOldImages, out.Dynamodb.StreamViewType)

	v, ok := out.Dynamodb.NewImage["v"].(*streamtypes.AttributeValueMemberN)
	require.True(t, ok)
	assert.Equal(t, "2", v.Value)

	require.NotNil(t, out.UserIdentity)
	assert.Equal(t, "dynamodb.amazonaws.com", *out.UserIdentity.PrincipalId)
}
