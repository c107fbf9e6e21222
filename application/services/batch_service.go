package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pretenderdb/application/ports"
	"pretenderdb/domain/attr"
	"pretenderdb/domain/expr"
	apperrors "pretenderdb/pkg/errors"
	"pretenderdb/domain/schema"
	"pretenderdb/domain/streams"
)

const (
	maxBatchGetKeys    = 100
	maxBatchWriteItems = 25
	// maxItemBytes guards oversized payloads; larger writes come back as
	// unprocessed for the caller to handle.
	maxItemBytes = 400 * 1024
)

// BatchGetItem fans reads across tables. Sub-requests succeed or fail
// independently; failed keys return in UnprocessedKeys for retry.
func (e *Engine) BatchGetItem(ctx context.Context, input *BatchGetItemInput) (*BatchGetItemOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}
	total := 0
	for _, req := range input.RequestItems {
		total += len(req.Keys)
	}
	if total > maxBatchGetKeys {
		return nil, apperrors.NewValidation("too many items requested for the BatchGetItem call: %d", total)
	}

	out := &BatchGetItemOutput{Responses: map[string][]attr.Item{}}
	for tableName, req := range input.RequestItems {
		def, err := e.table(ctx, tableName)
		if err != nil {
			return nil, translate(ctx, err)
		}
		env := expr.NewEnv(req.ExpressionAttributeNames, nil)
		var projection *expr.Projection
		if req.ProjectionExpression != "" {
			if projection, err = expr.ParseProjection(req.ProjectionExpression, env); err != nil {
				return nil, apperrors.NewValidation("%s", err)
			}
		}
		if err := env.CheckFullyUsed(); err != nil {
			return nil, apperrors.NewValidation("%s", err)
		}

		out.Responses[tableName] = []attr.Item{}
		for _, key := range req.Keys {
			if err := def.ValidateKey(key); err != nil {
				return nil, apperrors.NewValidation("%s", err)
			}
			item, err := e.items.GetItem(ctx, def, key)
			if err != nil {
				e.logger.Warn("batch get sub-request failed",
					zap.String("table", tableName), zap.Error(err))
				addUnprocessedKey(out, tableName, req, key)
				continue
			}
			if item == nil {
				continue
			}
			if payload, err := attr.MarshalItem(item); err != nil || len(payload) > maxItemBytes {
				addUnprocessedKey(out, tableName, req, key)
				continue
			}
			if projection != nil {
				item = projection.Apply(item)
			}
			out.Responses[tableName] = append(out.Responses[tableName], item)
		}
	}
	return out, nil
}

func addUnprocessedKey(out *BatchGetItemOutput, tableName string, req KeysAndAttributes, key attr.Item) {
	if out.UnprocessedKeys == nil {
		out.UnprocessedKeys = map[string]KeysAndAttributes{}
	}
	entry := out.UnprocessedKeys[tableName]
	entry.ProjectionExpression = req.ProjectionExpression
	entry.ExpressionAttributeNames = req.ExpressionAttributeNames
	entry.ConsistentRead = req.ConsistentRead
	entry.Keys = append(entry.Keys, key)
	out.UnprocessedKeys[tableName] = entry
}

// BatchWriteItem fans unconditional puts and deletes across tables.
// Writes that fail operationally or exceed the size guard come back as
// unprocessed; duplicate keys within one call are rejected.
func (e *Engine) BatchWriteItem(ctx context.Context, input *BatchWriteItemInput) (*BatchWriteItemOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}
	total := 0
	for _, writes := range input.RequestItems {
		total += len(writes)
	}
	if total == 0 {
		return nil, apperrors.NewValidation("BatchWriteItem requires at least one write request")
	}
	if total > maxBatchWriteItems {
		return nil, apperrors.NewValidation("too many items requested for the BatchWriteItem call: %d", total)
	}

	out := &BatchWriteItemOutput{}
	for tableName, writes := range input.RequestItems {
		def, err := e.table(ctx, tableName)
		if err != nil {
			return nil, translate(ctx, err)
		}
		if err := rejectDuplicateWrites(def, writes); err != nil {
			return nil, err
		}
		for _, write := range writes {
			if err := e.applyBatchWrite(ctx, def, write); err != nil {
				if apperrors.IsCode(err, apperrors.CodeValidation) {
					return nil, err
				}
				e.logger.Warn("batch write sub-request failed",
					zap.String("table", tableName), zap.Error(err))
				if out.UnprocessedItems == nil {
					out.UnprocessedItems = map[string][]WriteRequest{}
				}
				out.UnprocessedItems[tableName] = append(out.UnprocessedItems[tableName], write)
			}
		}
	}
	return out, nil
}

func (e *Engine) applyBatchWrite(ctx context.Context, def schema.TableDefinition, write WriteRequest) error {
	switch {
	case write.PutRequest != nil:
		item := write.PutRequest.Item
		key, err := def.ExtractKey(item)
		if err != nil {
			return apperrors.NewValidation("%s", err)
		}
		if payload, err := attr.MarshalItem(item); err != nil {
			return apperrors.NewValidation("%s", err)
		} else if len(payload) > maxItemBytes {
			return apperrors.NewInternal(fmt.Errorf("item exceeds the size guard"))
		}
		return e.putOne(ctx, def, key, item)
	case write.DeleteRequest != nil:
		if err := def.ValidateKey(write.DeleteRequest.Key); err != nil {
			return apperrors.NewValidation("%s", err)
		}
		_, err := e.deleteOne(ctx, def, write.DeleteRequest.Key, nil, nil)
		return err
	default:
		return apperrors.NewValidation("write request must carry exactly one of PutRequest or DeleteRequest")
	}
}

// putOne is the unconditional put pipeline shared with batch writes.
func (e *Engine) putOne(ctx context.Context, def schema.TableDefinition, key, item attr.Item) error {
	return e.items.WithinTx(ctx, func(tx ports.Tx) error {
		pre, err := tx.GetItemForUpdate(ctx, def, key)
		if err != nil {
			return err
		}
		if err := tx.PutItem(ctx, def, item); err != nil {
			return err
		}
		event := streams.EventInsert
		if pre != nil {
			event = streams.EventModify
		}
		return e.captureStream(ctx, tx, def, event, key, pre, item, nil)
	})
}

// rejectDuplicateWrites refuses two writes addressing the same key in one
// call, matching the service's duplicate-key rule.
func rejectDuplicateWrites(def schema.TableDefinition, writes []WriteRequest) error {
	seen := map[string]struct{}{}
	for _, write := range writes {
		var key attr.Item
		var err error
		switch {
		case write.PutRequest != nil:
			key, err = def.ExtractKey(write.PutRequest.Item)
		case write.DeleteRequest != nil:
			err = def.ValidateKey(write.DeleteRequest.Key)
			key = write.DeleteRequest.Key
		default:
			return apperrors.NewValidation("write request must carry exactly one of PutRequest or DeleteRequest")
		}
		if err != nil {
			return apperrors.NewValidation("%s", err)
		}
		fp, err := keyFingerprint(def, key)
		if err != nil {
			return err
		}
		if _, dup := seen[fp]; dup {
			return apperrors.NewValidation("provided list of item keys contains duplicates")
		}
		seen[fp] = struct{}{}
	}
	return nil
}

// keyFingerprint renders a primary key as a deterministic string, used
// for duplicate detection and transaction lock ordering.
func keyFingerprint(def schema.TableDefinition, key attr.Item) (string, error) {
	hb, err := attr.KeyBytes(key[def.Keys.HashKey])
	if err != nil {
		return "", apperrors.NewValidation("%s", err)
	}
	fp := string(hb)
	if def.Keys.HasRange() {
		rb, err := attr.KeyBytes(key[def.Keys.RangeKey])
		if err != nil {
			return "", apperrors.NewValidation("%s", err)
		}
		fp += "\x00" + string(rb)
	}
	return fp, nil
}
