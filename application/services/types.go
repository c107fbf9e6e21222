// Package services implements the operation surface of the engine: table
// lifecycle, item reads and writes, Query/Scan, batches, transactions,
// TTL expiry and the stream consumer protocol. Inputs and outputs carry
// the DynamoDB JSON protocol shapes.
package services

import (
	"pretenderdb/domain/attr"
)

// KeySchemaElement is one entry of a wire key schema.
type KeySchemaElement struct {
	AttributeName string `json:"AttributeName" validate:"required"`
	KeyType       string `json:"KeyType" validate:"required,oneof=HASH RANGE"`
}

// AttributeDefinition declares a key attribute's scalar type.
type AttributeDefinition struct {
	AttributeName string `json:"AttributeName" validate:"required"`
	AttributeType string `json:"AttributeType" validate:"required,oneof=S N B"`
}

// ProjectionSpec is a GSI's wire projection clause.
type ProjectionSpec struct {
	ProjectionType   string   `json:"ProjectionType" validate:"required,oneof=ALL KEYS_ONLY INCLUDE"`
	NonKeyAttributes []string `json:"NonKeyAttributes,omitempty"`
}

// GlobalSecondaryIndexSpec is a GSI's wire definition.
type GlobalSecondaryIndexSpec struct {
	IndexName  string             `json:"IndexName" validate:"required"`
	KeySchema  []KeySchemaElement `json:"KeySchema" validate:"required,min=1,max=2,dive"`
	Projection ProjectionSpec     `json:"Projection" validate:"required"`
}

// StreamSpecification enables change capture on a table.
type StreamSpecification struct {
	StreamEnabled  bool   `json:"StreamEnabled"`
	StreamViewType string `json:"StreamViewType,omitempty" validate:"omitempty,oneof=KEYS_ONLY NEW_IMAGE OLD_IMAGE NEW_AND_OLD_IMAGES"`
}

// CreateTableInput creates a table.
type CreateTableInput struct {
	TableName              string                     `json:"TableName" validate:"required"`
	AttributeDefinitions   []AttributeDefinition      `json:"AttributeDefinitions" validate:"required,min=1,dive"`
	KeySchema              []KeySchemaElement         `json:"KeySchema" validate:"required,min=1,max=2,dive"`
	GlobalSecondaryIndexes []GlobalSecondaryIndexSpec `json:"GlobalSecondaryIndexes,omitempty" validate:"omitempty,dive"`
	StreamSpecification    *StreamSpecification       `json:"StreamSpecification,omitempty"`
}

// TableDescription describes a table on the wire.
type TableDescription struct {
	TableName              string                     `json:"TableName"`
	TableStatus            string                     `json:"TableStatus"`
	AttributeDefinitions   []AttributeDefinition      `json:"AttributeDefinitions"`
	KeySchema              []KeySchemaElement         `json:"KeySchema"`
	GlobalSecondaryIndexes []GlobalSecondaryIndexSpec `json:"GlobalSecondaryIndexes,omitempty"`
	StreamSpecification    *StreamSpecification       `json:"StreamSpecification,omitempty"`
	LatestStreamArn        string                     `json:"LatestStreamArn,omitempty"`
	CreationDateTime       float64                    `json:"CreationDateTime"`
}

// CreateTableOutput echoes the created table.
type CreateTableOutput struct {
	TableDescription TableDescription `json:"TableDescription"`
}

// DescribeTableInput names a table.
type DescribeTableInput struct {
	TableName string `json:"TableName" validate:"required"`
}

// DescribeTableOutput carries the description.
type DescribeTableOutput struct {
	Table TableDescription `json:"Table"`
}

// DeleteTableInput names a table.
type DeleteTableInput struct {
	TableName string `json:"TableName" validate:"required"`
}

// DeleteTableOutput echoes the removed table.
type DeleteTableOutput struct {
	TableDescription TableDescription `json:"TableDescription"`
}

// ListTablesInput pages through table names.
type ListTablesInput struct {
	ExclusiveStartTableName string `json:"ExclusiveStartTableName,omitempty"`
	Limit                   int    `json:"Limit,omitempty" validate:"omitempty,min=1,max=100"`
}

// ListTablesOutput is one page of table names.
type ListTablesOutput struct {
	TableNames             []string `json:"TableNames"`
	LastEvaluatedTableName string   `json:"LastEvaluatedTableName,omitempty"`
}

// UpdateTableInput adjusts stream settings.
type UpdateTableInput struct {
	TableName           string               `json:"TableName" validate:"required"`
	StreamSpecification *StreamSpecification `json:"StreamSpecification" validate:"required"`
}

// UpdateTableOutput echoes the updated table.
type UpdateTableOutput struct {
	TableDescription TableDescription `json:"TableDescription"`
}

// TimeToLiveSpecification is the wire TTL clause.
type TimeToLiveSpecification struct {
	Enabled       bool   `json:"Enabled"`
	AttributeName string `json:"AttributeName" validate:"required"`
}

// UpdateTimeToLiveInput toggles TTL on a table.
type UpdateTimeToLiveInput struct {
	TableName               string                  `json:"TableName" validate:"required"`
	TimeToLiveSpecification TimeToLiveSpecification `json:"TimeToLiveSpecification" validate:"required"`
}

// UpdateTimeToLiveOutput echoes the specification.
type UpdateTimeToLiveOutput struct {
	TimeToLiveSpecification TimeToLiveSpecification `json:"TimeToLiveSpecification"`
}

// DescribeTimeToLiveInput names a table.
type DescribeTimeToLiveInput struct {
	TableName string `json:"TableName" validate:"required"`
}

// TimeToLiveDescription reports TTL status.
type TimeToLiveDescription struct {
	TimeToLiveStatus string `json:"TimeToLiveStatus"`
	AttributeName    string `json:"AttributeName,omitempty"`
}

// DescribeTimeToLiveOutput carries the description.
type DescribeTimeToLiveOutput struct {
	TimeToLiveDescription TimeToLiveDescription `json:"TimeToLiveDescription"`
}

// PutItemInput writes a full item.
type PutItemInput struct {
	TableName                 string                `json:"TableName" validate:"required"`
	Item                      attr.Item             `json:"Item" validate:"required"`
	ConditionExpression       string                `json:"ConditionExpression,omitempty"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]attr.Value `json:"ExpressionAttributeValues,omitempty"`
	ReturnValues              string                `json:"ReturnValues,omitempty" validate:"omitempty,oneof=NONE ALL_OLD ALL_NEW UPDATED_OLD UPDATED_NEW"`
}

// PutItemOutput optionally carries the requested image.
type PutItemOutput struct {
	Attributes attr.Item `json:"Attributes,omitempty"`
}

// GetItemInput reads one item by key.
type GetItemInput struct {
	TableName                string            `json:"TableName" validate:"required"`
	Key                      attr.Item         `json:"Key" validate:"required"`
	ProjectionExpression     string            `json:"ProjectionExpression,omitempty"`
	ExpressionAttributeNames map[string]string `json:"ExpressionAttributeNames,omitempty"`
	ConsistentRead           bool              `json:"ConsistentRead,omitempty"`
}

// GetItemOutput carries the item; absent items produce no Item member.
type GetItemOutput struct {
	Item attr.Item `json:"Item,omitempty"`
}

// UpdateItemInput mutates an item through an update expression.
type UpdateItemInput struct {
	TableName                 string                `json:"TableName" validate:"required"`
	Key                       attr.Item             `json:"Key" validate:"required"`
	UpdateExpression          string                `json:"UpdateExpression" validate:"required"`
	ConditionExpression       string                `json:"ConditionExpression,omitempty"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]attr.Value `json:"ExpressionAttributeValues,omitempty"`
	ReturnValues              string                `json:"ReturnValues,omitempty" validate:"omitempty,oneof=NONE ALL_OLD ALL_NEW UPDATED_OLD UPDATED_NEW"`
}

// UpdateItemOutput optionally carries the requested image.
type UpdateItemOutput struct {
	Attributes attr.Item `json:"Attributes,omitempty"`
}

// DeleteItemInput removes one item by key.
type DeleteItemInput struct {
	TableName                 string                `json:"TableName" validate:"required"`
	Key                       attr.Item             `json:"Key" validate:"required"`
	ConditionExpression       string                `json:"ConditionExpression,omitempty"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]attr.Value `json:"ExpressionAttributeValues,omitempty"`
	ReturnValues              string                `json:"ReturnValues,omitempty" validate:"omitempty,oneof=NONE ALL_OLD ALL_NEW UPDATED_OLD UPDATED_NEW"`
}

// DeleteItemOutput optionally carries the old image.
type DeleteItemOutput struct {
	Attributes attr.Item `json:"Attributes,omitempty"`
}

// QueryInput reads a key-pinned, range-ordered page.
type QueryInput struct {
	TableName                 string                `json:"TableName" validate:"required"`
	IndexName                 string                `json:"IndexName,omitempty"`
	KeyConditionExpression    string                `json:"KeyConditionExpression" validate:"required"`
	FilterExpression          string                `json:"FilterExpression,omitempty"`
	ProjectionExpression      string                `json:"ProjectionExpression,omitempty"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]attr.Value `json:"ExpressionAttributeValues,omitempty"`
	ScanIndexForward          *bool                 `json:"ScanIndexForward,omitempty"`
	Limit                     int                   `json:"Limit,omitempty" validate:"omitempty,min=1"`
	ExclusiveStartKey         attr.Item             `json:"ExclusiveStartKey,omitempty"`
	ConsistentRead            bool                  `json:"ConsistentRead,omitempty"`
}

// QueryOutput is one page of query results.
type QueryOutput struct {
	Items            []attr.Item `json:"Items"`
	Count            int         `json:"Count"`
	ScannedCount     int         `json:"ScannedCount"`
	LastEvaluatedKey attr.Item   `json:"LastEvaluatedKey,omitempty"`
}

// ScanInput reads a full-table or full-index page.
type ScanInput struct {
	TableName                 string                `json:"TableName" validate:"required"`
	IndexName                 string                `json:"IndexName,omitempty"`
	FilterExpression          string                `json:"FilterExpression,omitempty"`
	ProjectionExpression      string                `json:"ProjectionExpression,omitempty"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]attr.Value `json:"ExpressionAttributeValues,omitempty"`
	Limit                     int                   `json:"Limit,omitempty" validate:"omitempty,min=1"`
	ExclusiveStartKey         attr.Item             `json:"ExclusiveStartKey,omitempty"`
	Segment                   *int                  `json:"Segment,omitempty"`
	TotalSegments             *int                  `json:"TotalSegments,omitempty" validate:"omitempty,min=1,max=1000000"`
}

// ScanOutput is one page of scan results.
type ScanOutput struct {
	Items            []attr.Item `json:"Items"`
	Count            int         `json:"Count"`
	ScannedCount     int         `json:"ScannedCount"`
	LastEvaluatedKey attr.Item   `json:"LastEvaluatedKey,omitempty"`
}

// KeysAndAttributes is one table's read set in BatchGetItem.
type KeysAndAttributes struct {
	Keys                     []attr.Item       `json:"Keys" validate:"required,min=1"`
	ProjectionExpression     string            `json:"ProjectionExpression,omitempty"`
	ExpressionAttributeNames map[string]string `json:"ExpressionAttributeNames,omitempty"`
	ConsistentRead           bool              `json:"ConsistentRead,omitempty"`
}

// BatchGetItemInput fans reads across tables.
type BatchGetItemInput struct {
	RequestItems map[string]KeysAndAttributes `json:"RequestItems" validate:"required,min=1"`
}

// BatchGetItemOutput partitions results and unprocessed keys per table.
type BatchGetItemOutput struct {
	Responses       map[string][]attr.Item       `json:"Responses"`
	UnprocessedKeys map[string]KeysAndAttributes `json:"UnprocessedKeys,omitempty"`
}

// PutRequest is a batch-write put.
type PutRequest struct {
	Item attr.Item `json:"Item" validate:"required"`
}

// DeleteRequest is a batch-write delete.
type DeleteRequest struct {
	Key attr.Item `json:"Key" validate:"required"`
}

// WriteRequest is one batch-write entry; exactly one member is set.
type WriteRequest struct {
	PutRequest    *PutRequest    `json:"PutRequest,omitempty"`
	DeleteRequest *DeleteRequest `json:"DeleteRequest,omitempty"`
}

// BatchWriteItemInput fans writes across tables.
type BatchWriteItemInput struct {
	RequestItems map[string][]WriteRequest `json:"RequestItems" validate:"required,min=1"`
}

// BatchWriteItemOutput returns writes the caller should retry.
type BatchWriteItemOutput struct {
	UnprocessedItems map[string][]WriteRequest `json:"UnprocessedItems,omitempty"`
}

// TransactPut is a transactional put entry.
type TransactPut struct {
	TableName                 string                `json:"TableName" validate:"required"`
	Item                      attr.Item             `json:"Item" validate:"required"`
	ConditionExpression       string                `json:"ConditionExpression,omitempty"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]attr.Value `json:"ExpressionAttributeValues,omitempty"`
}

// TransactUpdate is a transactional update entry.
type TransactUpdate struct {
	TableName                 string                `json:"TableName" validate:"required"`
	Key                       attr.Item             `json:"Key" validate:"required"`
	UpdateExpression          string                `json:"UpdateExpression" validate:"required"`
	ConditionExpression       string                `json:"ConditionExpression,omitempty"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]attr.Value `json:"ExpressionAttributeValues,omitempty"`
}

// TransactDelete is a transactional delete entry.
type TransactDelete struct {
	TableName                 string                `json:"TableName" validate:"required"`
	Key                       attr.Item             `json:"Key" validate:"required"`
	ConditionExpression       string                `json:"ConditionExpression,omitempty"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]attr.Value `json:"ExpressionAttributeValues,omitempty"`
}

// TransactConditionCheck asserts a predicate without writing.
type TransactConditionCheck struct {
	TableName                 string                `json:"TableName" validate:"required"`
	Key                       attr.Item             `json:"Key" validate:"required"`
	ConditionExpression       string                `json:"ConditionExpression" validate:"required"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]attr.Value `json:"ExpressionAttributeValues,omitempty"`
}

// TransactWriteItem is one transaction entry; exactly one member is set.
type TransactWriteItem struct {
	Put            *TransactPut            `json:"Put,omitempty"`
	Update         *TransactUpdate         `json:"Update,omitempty"`
	Delete         *TransactDelete         `json:"Delete,omitempty"`
	ConditionCheck *TransactConditionCheck `json:"ConditionCheck,omitempty"`
}

// TransactWriteItemsInput runs up to 100 entries atomically.
type TransactWriteItemsInput struct {
	TransactItems      []TransactWriteItem `json:"TransactItems" validate:"required,min=1,max=100"`
	ClientRequestToken string              `json:"ClientRequestToken,omitempty"`
}

// TransactWriteItemsOutput is empty on success.
type TransactWriteItemsOutput struct{}

// TransactGet is one transactional read entry.
type TransactGet struct {
	TableName                string            `json:"TableName" validate:"required"`
	Key                      attr.Item         `json:"Key" validate:"required"`
	ProjectionExpression     string            `json:"ProjectionExpression,omitempty"`
	ExpressionAttributeNames map[string]string `json:"ExpressionAttributeNames,omitempty"`
}

// TransactGetItem wraps a Get entry.
type TransactGetItem struct {
	Get *TransactGet `json:"Get" validate:"required"`
}

// TransactGetItemsInput snapshots up to 100 reads.
type TransactGetItemsInput struct {
	TransactItems []TransactGetItem `json:"TransactItems" validate:"required,min=1,max=100"`
}

// ItemResponse is one transactional read result.
type ItemResponse struct {
	Item attr.Item `json:"Item,omitempty"`
}

// TransactGetItemsOutput lists results in input order.
type TransactGetItemsOutput struct {
	Responses []ItemResponse `json:"Responses"`
}

// ListStreamsInput optionally restricts to one table.
type ListStreamsInput struct {
	TableName string `json:"TableName,omitempty"`
}

// StreamSummary identifies one stream.
type StreamSummary struct {
	StreamArn   string `json:"StreamArn"`
	TableName   string `json:"TableName"`
	StreamLabel string `json:"StreamLabel"`
}

// ListStreamsOutput lists stream identifiers.
type ListStreamsOutput struct {
	Streams []StreamSummary `json:"Streams"`
}

// DescribeStreamInput names a stream by ARN.
type DescribeStreamInput struct {
	StreamArn string `json:"StreamArn" validate:"required"`
}

// SequenceNumberRange bounds a shard's live records.
type SequenceNumberRange struct {
	StartingSequenceNumber string `json:"StartingSequenceNumber,omitempty"`
	EndingSequenceNumber   string `json:"EndingSequenceNumber,omitempty"`
}

// Shard describes the stream's single logical shard.
type Shard struct {
	ShardId             string              `json:"ShardId"`
	SequenceNumberRange SequenceNumberRange `json:"SequenceNumberRange"`
}

// StreamDescription is the DescribeStream payload.
type StreamDescription struct {
	StreamArn      string  `json:"StreamArn"`
	StreamLabel    string  `json:"StreamLabel"`
	StreamStatus   string  `json:"StreamStatus"`
	StreamViewType string  `json:"StreamViewType"`
	TableName      string  `json:"TableName"`
	Shards         []Shard `json:"Shards"`
}

// DescribeStreamOutput wraps the description.
type DescribeStreamOutput struct {
	StreamDescription StreamDescription `json:"StreamDescription"`
}

// GetShardIteratorInput requests a read position.
type GetShardIteratorInput struct {
	StreamArn         string `json:"StreamArn" validate:"required"`
	ShardId           string `json:"ShardId" validate:"required"`
	ShardIteratorType string `json:"ShardIteratorType" validate:"required,oneof=TRIM_HORIZON LATEST AT_SEQUENCE_NUMBER AFTER_SEQUENCE_NUMBER"`
	SequenceNumber    string `json:"SequenceNumber,omitempty"`
}

// GetShardIteratorOutput carries the opaque iterator.
type GetShardIteratorOutput struct {
	ShardIterator string `json:"ShardIterator"`
}

// GetRecordsInput polls a shard iterator.
type GetRecordsInput struct {
	ShardIterator string `json:"ShardIterator" validate:"required"`
	Limit         int    `json:"Limit,omitempty" validate:"omitempty,min=1,max=1000"`
}

// StreamRecordData is the "dynamodb" member of a wire stream record.
type StreamRecordData struct {
	Keys                        attr.Item `json:"Keys"`
	NewImage                    attr.Item `json:"NewImage,omitempty"`
	OldImage                    attr.Item `json:"OldImage,omitempty"`
	SequenceNumber              string    `json:"SequenceNumber"`
	StreamViewType              string    `json:"StreamViewType"`
	ApproximateCreationDateTime float64   `json:"ApproximateCreationDateTime"`
}

// UserIdentity marks service-originated records on the wire.
type UserIdentity struct {
	Type        string `json:"Type"`
	PrincipalId string `json:"PrincipalId"`
}

// StreamRecord is one wire stream record.
type StreamRecord struct {
	EventID      string           `json:"eventID"`
	EventName    string           `json:"eventName"`
	EventVersion string           `json:"eventVersion"`
	EventSource  string           `json:"eventSource"`
	AwsRegion    string           `json:"awsRegion"`
	Dynamodb     StreamRecordData `json:"dynamodb"`
	UserIdentity *UserIdentity    `json:"userIdentity,omitempty"`
}

// GetRecordsOutput is one batch of records plus the next iterator.
type GetRecordsOutput struct {
	Records           []StreamRecord `json:"Records"`
	NextShardIterator string         `json:"NextShardIterator,omitempty"`
}
