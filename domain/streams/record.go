// Package streams models change-stream records and iterator positions.
package streams

import (
	"time"

	"pretenderdb/domain/attr"
	"pretenderdb/domain/schema"
)

// EventName classifies a mutation captured by a stream.
type EventName string

const (
	EventInsert EventName = "INSERT"
	EventModify EventName = "MODIFY"
	EventRemove EventName = "REMOVE"
)

// UserIdentity marks records produced by the service itself rather than a
// caller; TTL expiry deletes carry one.
type UserIdentity struct {
	Type        string `json:"Type"`
	PrincipalID string `json:"PrincipalId"`
}

// Record is one captured mutation. SequenceNumber is assigned by the
// store at append time and is strictly increasing within a stream.
type Record struct {
	StreamID       string
	SequenceNumber int64
	EventName      EventName
	Keys           attr.Item
	OldImage       attr.Item
	NewImage       attr.Item
	CreatedAt      time.Time
	UserIdentity   *UserIdentity
}

// NewRecord builds a capture record, gating images by the stream's view
// type. Keys are always carried.
func NewRecord(view schema.StreamViewType, event EventName, keys, oldImage, newImage attr.Item, identity *UserIdentity) Record {
	rec := Record{
		EventName:    event,
		Keys:         keys.Clone(),
		UserIdentity: identity,
	}
	if view.IncludesOldImage() && oldImage != nil {
		rec.OldImage = oldImage.Clone()
	}
	if view.IncludesNewImage() && newImage != nil {
		rec.NewImage = newImage.Clone()
	}
	return rec
}

// IteratorType selects where a shard iterator starts reading.
type IteratorType string

const (
	IteratorTrimHorizon    IteratorType = "TRIM_HORIZON"
	IteratorLatest         IteratorType = "LATEST"
	IteratorAtSequence     IteratorType = "AT_SEQUENCE_NUMBER"
	IteratorAfterSequence  IteratorType = "AFTER_SEQUENCE_NUMBER"
)

// Valid reports whether t is a recognized iterator type.
func (t IteratorType) Valid() bool {
	switch t {
	case IteratorTrimHorizon, IteratorLatest, IteratorAtSequence, IteratorAfterSequence:
		return true
	}
	return false
}

// ShardID is the single logical shard every stream exposes.
const ShardID = "shardId-00000000000000000000-0000000000000000"
