package postgres

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"pretenderdb/domain/attr"
	apperrors "pretenderdb/pkg/errors"
	"pretenderdb/domain/streams"
)

// StreamStore implements ports.StreamStore over stream_records.
type StreamStore struct {
	db     *DB
	logger *zap.Logger
}

// NewStreamStore creates the stream store.
func NewStreamStore(db *DB, logger *zap.Logger) *StreamStore {
	return &StreamStore{db: db, logger: logger}
}

// SequenceBounds returns the live sequence range of a stream.
func (s *StreamStore) SequenceBounds(ctx context.Context, streamID string) (int64, int64, bool, error) {
	var low, high *int64
	err := s.db.pool.QueryRow(ctx,
		`SELECT min(sequence_no), max(sequence_no) FROM stream_records WHERE stream_id = $1`,
		streamID).Scan(&low, &high)
	if err != nil {
		return 0, 0, false, apperrors.NewInternal(err)
	}
	if low == nil || high == nil {
		return 0, 0, false, nil
	}
	return *low, *high, true, nil
}

// FetchRecords returns up to limit records at or above from, in
// sequence order.
func (s *StreamStore) FetchRecords(ctx context.Context, streamID string, from int64, limit int) ([]streams.Record, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT sequence_no, event_name, keys_json, old_image_json, new_image_json, user_identity_json, created_at
		 FROM stream_records
		 WHERE stream_id = $1 AND sequence_no >= $2
		 ORDER BY sequence_no
		 LIMIT $3`,
		streamID, from, limit)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer rows.Close()

	var records []streams.Record
	for rows.Next() {
		var (
			rec          streams.Record
			eventName    string
			keysJSON     []byte
			oldJSON      []byte
			newJSON      []byte
			identityJSON []byte
			createdAt    time.Time
		)
		if err := rows.Scan(&rec.SequenceNumber, &eventName, &keysJSON, &oldJSON, &newJSON, &identityJSON, &createdAt); err != nil {
			return nil, apperrors.NewInternal(err)
		}
		rec.StreamID = streamID
		rec.EventName = streams.EventName(eventName)
		rec.CreatedAt = createdAt
		if rec.Keys, err = attr.UnmarshalItem(keysJSON); err != nil {
			return nil, apperrors.NewInternal(err)
		}
		if oldJSON != nil {
			if rec.OldImage, err = attr.UnmarshalItem(oldJSON); err != nil {
				return nil, apperrors.NewInternal(err)
			}
		}
		if newJSON != nil {
			if rec.NewImage, err = attr.UnmarshalItem(newJSON); err != nil {
				return nil, apperrors.NewInternal(err)
			}
		}
		if identityJSON != nil {
			var identity streams.UserIdentity
			if err := json.Unmarshal(identityJSON, &identity); err != nil {
				return nil, apperrors.NewInternal(err)
			}
			rec.UserIdentity = &identity
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return records, nil
}

// PruneExpired removes records past retention.
func (s *StreamStore) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.pool.Exec(ctx,
		`DELETE FROM stream_records WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, apperrors.NewInternal(err)
	}
	if tag.RowsAffected() > 0 {
		s.logger.Debug("pruned stream records",
			zap.Int64("removed", tag.RowsAffected()),
			zap.Time("cutoff", cutoff))
	}
	return tag.RowsAffected(), nil
}
