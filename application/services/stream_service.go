package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "pretenderdb/pkg/errors"
	"pretenderdb/domain/schema"
	"pretenderdb/domain/streams"
)

const defaultGetRecordsLimit = 1000

// ListStreams returns the stream identifiers of every stream-enabled
// table, or of one table when named.
func (e *Engine) ListStreams(ctx context.Context, input *ListStreamsInput) (*ListStreamsOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}
	out := &ListStreamsOutput{Streams: []StreamSummary{}}
	appendStream := func(def schema.TableDefinition) {
		if !def.Stream.Enabled {
			return
		}
		out.Streams = append(out.Streams, StreamSummary{
			StreamArn:   streamArn(def.Name, def.Stream.Label),
			TableName:   def.Name,
			StreamLabel: def.Stream.Label,
		})
	}

	if input.TableName != "" {
		def, err := e.table(ctx, input.TableName)
		if err != nil {
			return nil, translate(ctx, err)
		}
		appendStream(def)
		return out, nil
	}

	startAfter := ""
	for {
		names, err := e.catalog.ListTables(ctx, startAfter, 100)
		if err != nil {
			return nil, translate(ctx, err)
		}
		for _, name := range names {
			def, err := e.table(ctx, name)
			if err != nil {
				return nil, translate(ctx, err)
			}
			appendStream(def)
		}
		if len(names) < 100 {
			return out, nil
		}
		startAfter = names[len(names)-1]
	}
}

// DescribeStream reports the stream's single shard and its live
// sequence-number range.
func (e *Engine) DescribeStream(ctx context.Context, input *DescribeStreamInput) (*DescribeStreamOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}
	def, err := e.tableForStreamArn(ctx, input.StreamArn)
	if err != nil {
		return nil, translate(ctx, err)
	}

	// The shard stays open for the table's lifetime, so only the
	// starting bound is reported.
	shard := Shard{ShardId: streams.ShardID}
	low, _, ok, err := e.streams.SequenceBounds(ctx, def.Stream.StreamID)
	if err != nil {
		return nil, translate(ctx, err)
	}
	if ok {
		shard.SequenceNumberRange = SequenceNumberRange{
			StartingSequenceNumber: strconv.FormatInt(low, 10),
		}
	}

	status := "ENABLED"
	if !def.Stream.Enabled {
		status = "DISABLED"
	}
	return &DescribeStreamOutput{StreamDescription: StreamDescription{
		StreamArn:      input.StreamArn,
		StreamLabel:    def.Stream.Label,
		StreamStatus:   status,
		StreamViewType: string(def.Stream.ViewType),
		TableName:      def.Name,
		Shards:         []Shard{shard},
	}}, nil
}

// GetShardIterator issues a signed iterator encoding the stream and the
// next sequence number to read.
func (e *Engine) GetShardIterator(ctx context.Context, input *GetShardIteratorInput) (*GetShardIteratorOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}
	def, err := e.tableForStreamArn(ctx, input.StreamArn)
	if err != nil {
		return nil, translate(ctx, err)
	}
	if input.ShardId != streams.ShardID {
		return nil, apperrors.NewResourceNotFound("shard " + input.ShardId)
	}

	iterType := streams.IteratorType(input.ShardIteratorType)
	var from int64
	switch iterType {
	case streams.IteratorTrimHorizon:
		low, _, ok, err := e.streams.SequenceBounds(ctx, def.Stream.StreamID)
		if err != nil {
			return nil, translate(ctx, err)
		}
		if ok {
			from = low
		}
	case streams.IteratorLatest:
		_, high, ok, err := e.streams.SequenceBounds(ctx, def.Stream.StreamID)
		if err != nil {
			return nil, translate(ctx, err)
		}
		if ok {
			from = high + 1
		}
	case streams.IteratorAtSequence, streams.IteratorAfterSequence:
		if input.SequenceNumber == "" {
			return nil, apperrors.NewValidation("SequenceNumber is required for iterator type %s", iterType)
		}
		seq, err := strconv.ParseInt(input.SequenceNumber, 10, 64)
		if err != nil {
			return nil, apperrors.NewValidation("invalid SequenceNumber %q", input.SequenceNumber)
		}
		from = seq
		if iterType == streams.IteratorAfterSequence {
			from = seq + 1
		}
	default:
		return nil, apperrors.NewValidation("unknown shard iterator type %q", input.ShardIteratorType)
	}

	iterator, err := e.signIterator(def.Stream.StreamID, input.StreamArn, from)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return &GetShardIteratorOutput{ShardIterator: iterator}, nil
}

// GetRecords reads up to Limit records at or after the iterator's
// position. Positions trimmed by retention serve from the earliest
// surviving record; an exhausted iterator returns an empty batch with a
// still-valid next iterator for polling.
func (e *Engine) GetRecords(ctx context.Context, input *GetRecordsInput) (*GetRecordsOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}
	streamID, arn, from, err := e.parseIterator(input.ShardIterator)
	if err != nil {
		return nil, err
	}
	def, err := e.tableForStreamArn(ctx, arn)
	if err != nil {
		return nil, translate(ctx, err)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultGetRecordsLimit
	}
	records, err := e.streams.FetchRecords(ctx, streamID, from, limit)
	if err != nil {
		return nil, translate(ctx, err)
	}

	out := &GetRecordsOutput{Records: make([]StreamRecord, 0, len(records))}
	next := from
	for _, rec := range records {
		out.Records = append(out.Records, wireRecord(def, rec))
		next = rec.SequenceNumber + 1
	}
	iterator, err := e.signIterator(streamID, arn, next)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	out.NextShardIterator = iterator
	return out, nil
}

// runStreamPruner enforces retention in the background.
func (e *Engine) runStreamPruner(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.opts.StreamPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := e.clock.Now().Add(-e.opts.StreamRetention)
			if _, err := e.streams.PruneExpired(ctx, cutoff); err != nil && ctx.Err() == nil {
				e.logger.Warn("stream retention pruning failed", zap.Error(err))
			}
		}
	}
}

// tableForStreamArn resolves the table owning a stream ARN, verifying
// the label still matches the live stream.
func (e *Engine) tableForStreamArn(ctx context.Context, arn string) (schema.TableDefinition, error) {
	tableName, label, err := parseStreamArn(arn)
	if err != nil {
		return schema.TableDefinition{}, err
	}
	def, err := e.table(ctx, tableName)
	if err != nil {
		return schema.TableDefinition{}, err
	}
	if def.Stream.StreamID == "" || def.Stream.Label != label {
		return schema.TableDefinition{}, apperrors.NewResourceNotFound(arn)
	}
	return def, nil
}

func parseStreamArn(arn string) (tableName, label string, err error) {
	// arn:aws:dynamodb:<region>:<account>:table/<name>/stream/<label>
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) != 6 || parts[0] != "arn" || parts[2] != "dynamodb" {
		return "", "", apperrors.NewValidation("invalid stream arn %q", arn)
	}
	resource := strings.Split(parts[5], "/")
	if len(resource) != 4 || resource[0] != "table" || resource[2] != "stream" {
		return "", "", apperrors.NewValidation("invalid stream arn %q", arn)
	}
	return resource[1], resource[3], nil
}

// signIterator encodes (stream, position) as a signed token so clients
// cannot forge or tamper with positions.
func (e *Engine) signIterator(streamID, arn string, from int64) (string, error) {
	claims := jwt.MapClaims{
		"sid": streamID,
		"arn": arn,
		"seq": strconv.FormatInt(from, 10),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.signingKey)
}

func (e *Engine) parseIterator(iterator string) (streamID, arn string, from int64, err error) {
	token, err := jwt.Parse(iterator, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return e.signingKey, nil
	})
	if err != nil || !token.Valid {
		return "", "", 0, apperrors.NewExpiredIterator("the shard iterator is no longer valid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", 0, apperrors.NewExpiredIterator("the shard iterator is no longer valid")
	}
	sid, _ := claims["sid"].(string)
	arnClaim, _ := claims["arn"].(string)
	seqClaim, _ := claims["seq"].(string)
	seq, parseErr := strconv.ParseInt(seqClaim, 10, 64)
	if sid == "" || arnClaim == "" || parseErr != nil {
		return "", "", 0, apperrors.NewExpiredIterator("the shard iterator is no longer valid")
	}
	return sid, arnClaim, seq, nil
}

// wireRecord renders a stored record in the wire shape.
func wireRecord(def schema.TableDefinition, rec streams.Record) StreamRecord {
	wire := StreamRecord{
		EventID:      uuid.NewString(),
		EventName:    string(rec.EventName),
		EventVersion: "1.1",
		EventSource:  "aws:dynamodb",
		AwsRegion:    "local",
		Dynamodb: StreamRecordData{
			Keys:                        rec.Keys,
			NewImage:                    rec.NewImage,
			OldImage:                    rec.OldImage,
			SequenceNumber:              strconv.FormatInt(rec.SequenceNumber, 10),
			StreamViewType:              string(def.Stream.ViewType),
			ApproximateCreationDateTime: float64(rec.CreatedAt.UnixMilli()) / 1000,
		},
	}
	if rec.UserIdentity != nil {
		wire.UserIdentity = &UserIdentity{
			Type:        rec.UserIdentity.Type,
			PrincipalId: rec.UserIdentity.PrincipalID,
		}
	}
	return wire
}
