// Package ports declares the persistence interfaces the application
// services depend on. The postgres package provides the implementations;
// services never see SQL.
package ports

import (
	"context"
	"time"

	"pretenderdb/domain/attr"
	"pretenderdb/domain/expr"
	"pretenderdb/domain/schema"
	"pretenderdb/domain/streams"
)

// Catalog persists table metadata.
type Catalog interface {
	// CreateTable inserts the definition, failing if the name is taken.
	CreateTable(ctx context.Context, def schema.TableDefinition) error
	// GetTable returns the definition or a ResourceNotFound error.
	GetTable(ctx context.Context, name string) (schema.TableDefinition, error)
	// ListTables returns up to limit table names after startAfter, in
	// lexicographic order.
	ListTables(ctx context.Context, startAfter string, limit int) ([]string, error)
	// UpdateTable replaces the stored definition.
	UpdateTable(ctx context.Context, def schema.TableDefinition) error
	// DeleteTable removes the definition and cascades to item rows, GSI
	// projection rows and stream records.
	DeleteTable(ctx context.Context, def schema.TableDefinition) error
}

// Tx is the per-transaction mutation surface. Every method runs inside
// the SQL transaction owned by WithinTx, so item writes, GSI maintenance
// and stream capture commit or roll back together.
type Tx interface {
	// GetItemForUpdate reads an item by primary key under a row lock.
	// Returns nil when absent.
	GetItemForUpdate(ctx context.Context, def schema.TableDefinition, key attr.Item) (attr.Item, error)
	// GetItem reads an item by primary key without locking, seeing the
	// transaction's snapshot.
	GetItem(ctx context.Context, def schema.TableDefinition, key attr.Item) (attr.Item, error)
	// PutItem upserts the item row and reconciles every GSI projection.
	PutItem(ctx context.Context, def schema.TableDefinition, item attr.Item) error
	// DeleteItem removes the item row and its GSI projections.
	DeleteItem(ctx context.Context, def schema.TableDefinition, key attr.Item) error
	// AppendStreamRecord captures a mutation record, assigning the next
	// sequence number of the stream.
	AppendStreamRecord(ctx context.Context, rec streams.Record) (int64, error)
}

// QueryRequest drives one page read of Query or Scan.
type QueryRequest struct {
	Table schema.TableDefinition
	// Index selects a GSI read; nil reads the primary table.
	Index *schema.GlobalSecondaryIndex
	// KeyCondition is set for Query, nil for Scan.
	KeyCondition *expr.KeyCondition
	// Forward orders by ascending range key; ignored by Scan.
	Forward bool
	// Limit caps the candidates examined; 0 means unlimited.
	Limit int
	// StartKey resumes after this primary (and index) key.
	StartKey attr.Item
	// Segment/TotalSegments partition a Scan.
	Segment       *int
	TotalSegments *int
}

// QueryPage is one page of raw candidate items, before filter and
// projection expressions run.
type QueryPage struct {
	Items []attr.Item
	// LastItem is the final candidate when the read stopped at the
	// limit; nil when the page exhausted the candidates.
	LastItem attr.Item
	// ScannedCount counts candidates examined for this page.
	ScannedCount int
}

// ItemStore is the read/write surface over item rows.
type ItemStore interface {
	// WithinTx runs fn inside one SQL transaction, retrying transient
	// serialization failures with backoff. fn may run more than once.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	// GetItem reads an item by primary key without locking. Returns nil
	// when absent.
	GetItem(ctx context.Context, def schema.TableDefinition, key attr.Item) (attr.Item, error)
	// QueryPage reads one page of candidates.
	QueryPage(ctx context.Context, req QueryRequest) (QueryPage, error)
	// ExpiredKeys returns primary keys of items whose ttlAttribute is an
	// N value numerically at or below nowEpoch.
	ExpiredKeys(ctx context.Context, def schema.TableDefinition, ttlAttribute string, nowEpoch int64, limit int) ([]attr.Item, error)
}

// StreamStore is the consumer-side surface over captured records.
type StreamStore interface {
	// SequenceBounds returns the lowest and highest live sequence
	// numbers of a stream; ok is false when the stream has no records.
	SequenceBounds(ctx context.Context, streamID string) (low, high int64, ok bool, err error)
	// FetchRecords returns up to limit records with sequence numbers at
	// or above from, in sequence order.
	FetchRecords(ctx context.Context, streamID string, from int64, limit int) ([]streams.Record, error)
	// PruneExpired deletes records created before cutoff, returning the
	// number removed.
	PruneExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
