package services

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"pretenderdb/application/ports"
	"pretenderdb/domain/attr"
	"pretenderdb/domain/expr"
	apperrors "pretenderdb/pkg/errors"
	"pretenderdb/domain/schema"
	"pretenderdb/domain/streams"
)

// writeEntryKind discriminates the compiled transaction entries.
type writeEntryKind int

const (
	entryPut writeEntryKind = iota
	entryUpdate
	entryDelete
	entryConditionCheck
)

// writeEntry is one compiled TransactWriteItems entry.
type writeEntry struct {
	kind      writeEntryKind
	def       schema.TableDefinition
	key       attr.Item
	item      attr.Item // put only
	update    *expr.UpdateExpression
	condition expr.Condition
	// lockKey orders row locking deterministically across transactions.
	lockKey string
	pre     attr.Item
}

// TransactWriteItems applies up to 100 writes atomically: all target
// rows are locked in deterministic order, every condition is evaluated,
// and either all mutations commit or the response carries per-entry
// cancellation reasons.
func (e *Engine) TransactWriteItems(ctx context.Context, input *TransactWriteItemsInput) (*TransactWriteItemsOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}
	entries, err := e.compileWriteEntries(ctx, input.TransactItems)
	if err != nil {
		return nil, translate(ctx, err)
	}

	// Lock in (table, key-bytes) order to avoid deadlocks between
	// concurrent transactions touching the same rows.
	lockOrder := make([]*writeEntry, len(entries))
	for i := range entries {
		lockOrder[i] = &entries[i]
	}
	sort.Slice(lockOrder, func(i, j int) bool {
		if lockOrder[i].def.Name != lockOrder[j].def.Name {
			return lockOrder[i].def.Name < lockOrder[j].def.Name
		}
		return lockOrder[i].lockKey < lockOrder[j].lockKey
	})

	err = e.items.WithinTx(ctx, func(tx ports.Tx) error {
		for _, entry := range lockOrder {
			pre, err := tx.GetItemForUpdate(ctx, entry.def, entry.key)
			if err != nil {
				return err
			}
			entry.pre = pre
		}

		reasons := make([]apperrors.CancellationReason, len(entries))
		canceled := false
		for i := range entries {
			reasons[i] = apperrors.CancellationReason{Code: apperrors.ReasonNone}
			if entries[i].condition == nil {
				continue
			}
			if err := evalCondition(entries[i].condition, entries[i].pre); err != nil {
				canceled = true
				switch {
				case apperrors.IsCode(err, apperrors.CodeConditionalCheckFailed):
					reasons[i] = apperrors.CancellationReason{
						Code:    "ConditionalCheckFailed",
						Message: "The conditional request failed",
					}
				default:
					reasons[i] = apperrors.CancellationReason{
						Code:    "ValidationError",
						Message: err.Error(),
					}
				}
			}
		}
		if canceled {
			return apperrors.NewTransactionCanceled(reasons)
		}

		for i := range entries {
			if err := e.applyWriteEntry(ctx, tx, &entries[i], reasons, i); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, translate(ctx, err)
	}
	e.logger.Debug("transaction committed", zap.Int("entries", len(entries)))
	return &TransactWriteItemsOutput{}, nil
}

// applyWriteEntry performs one entry's mutation and stream capture. An
// update expression that fails to apply cancels the transaction with a
// ValidationError reason at its index.
func (e *Engine) applyWriteEntry(ctx context.Context, tx ports.Tx, entry *writeEntry, reasons []apperrors.CancellationReason, index int) error {
	switch entry.kind {
	case entryConditionCheck:
		return nil
	case entryPut:
		if err := tx.PutItem(ctx, entry.def, entry.item); err != nil {
			return err
		}
		event := streams.EventInsert
		if entry.pre != nil {
			event = streams.EventModify
		}
		return e.captureStream(ctx, tx, entry.def, event, entry.key, entry.pre, entry.item, nil)
	case entryUpdate:
		base := entry.pre
		if base == nil {
			base = entry.key.Clone()
		}
		post, err := entry.update.Apply(base)
		if err != nil {
			reasons[index] = apperrors.CancellationReason{Code: "ValidationError", Message: err.Error()}
			return apperrors.NewTransactionCanceled(reasons)
		}
		if err := tx.PutItem(ctx, entry.def, post); err != nil {
			return err
		}
		event := streams.EventInsert
		if entry.pre != nil {
			event = streams.EventModify
		}
		return e.captureStream(ctx, tx, entry.def, event, entry.key, entry.pre, post, nil)
	case entryDelete:
		if entry.pre == nil {
			return nil
		}
		if err := tx.DeleteItem(ctx, entry.def, entry.key); err != nil {
			return err
		}
		return e.captureStream(ctx, tx, entry.def, streams.EventRemove, entry.key, entry.pre, nil, nil)
	}
	return nil
}

// compileWriteEntries validates shapes, parses expressions and rejects
// duplicate keys across the whole transaction.
func (e *Engine) compileWriteEntries(ctx context.Context, items []TransactWriteItem) ([]writeEntry, error) {
	entries := make([]writeEntry, 0, len(items))
	seen := map[string]struct{}{}

	for i, item := range items {
		set := 0
		if item.Put != nil {
			set++
		}
		if item.Update != nil {
			set++
		}
		if item.Delete != nil {
			set++
		}
		if item.ConditionCheck != nil {
			set++
		}
		if set != 1 {
			return nil, apperrors.NewValidation("transact item %d must carry exactly one of Put, Update, Delete or ConditionCheck", i)
		}

		var entry writeEntry
		var err error
		switch {
		case item.Put != nil:
			p := item.Put
			entry.kind = entryPut
			if entry.def, err = e.table(ctx, p.TableName); err != nil {
				return nil, err
			}
			if entry.key, err = entry.def.ExtractKey(p.Item); err != nil {
				return nil, apperrors.NewValidation("%s", err)
			}
			entry.item = p.Item
			if entry.condition, err = parseEntryCondition(p.ConditionExpression, p.ExpressionAttributeNames, p.ExpressionAttributeValues, false); err != nil {
				return nil, err
			}
		case item.Update != nil:
			u := item.Update
			entry.kind = entryUpdate
			if entry.def, err = e.table(ctx, u.TableName); err != nil {
				return nil, err
			}
			if err = entry.def.ValidateKey(u.Key); err != nil {
				return nil, apperrors.NewValidation("%s", err)
			}
			entry.key = u.Key
			env := expr.NewEnv(u.ExpressionAttributeNames, u.ExpressionAttributeValues)
			if entry.update, err = expr.ParseUpdate(u.UpdateExpression, env); err != nil {
				return nil, apperrors.NewValidation("%s", err)
			}
			if u.ConditionExpression != "" {
				if entry.condition, err = expr.ParseCondition(u.ConditionExpression, env); err != nil {
					return nil, apperrors.NewValidation("%s", err)
				}
			}
			if err = env.CheckFullyUsed(); err != nil {
				return nil, apperrors.NewValidation("%s", err)
			}
			if err = rejectKeyMutation(entry.def, entry.update); err != nil {
				return nil, err
			}
		case item.Delete != nil:
			d := item.Delete
			entry.kind = entryDelete
			if entry.def, err = e.table(ctx, d.TableName); err != nil {
				return nil, err
			}
			if err = entry.def.ValidateKey(d.Key); err != nil {
				return nil, apperrors.NewValidation("%s", err)
			}
			entry.key = d.Key
			if entry.condition, err = parseEntryCondition(d.ConditionExpression, d.ExpressionAttributeNames, d.ExpressionAttributeValues, false); err != nil {
				return nil, err
			}
		case item.ConditionCheck != nil:
			c := item.ConditionCheck
			entry.kind = entryConditionCheck
			if entry.def, err = e.table(ctx, c.TableName); err != nil {
				return nil, err
			}
			if err = entry.def.ValidateKey(c.Key); err != nil {
				return nil, apperrors.NewValidation("%s", err)
			}
			entry.key = c.Key
			if entry.condition, err = parseEntryCondition(c.ConditionExpression, c.ExpressionAttributeNames, c.ExpressionAttributeValues, true); err != nil {
				return nil, err
			}
		}

		fp, err := keyFingerprint(entry.def, entry.key)
		if err != nil {
			return nil, err
		}
		scoped := entry.def.Name + "\x00" + fp
		if _, dup := seen[scoped]; dup {
			return nil, apperrors.NewValidation("transaction request cannot include multiple operations on one item")
		}
		seen[scoped] = struct{}{}
		entry.lockKey = fp
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseEntryCondition(text string, names map[string]string, values map[string]attr.Value, required bool) (expr.Condition, error) {
	if text == "" {
		if required {
			return nil, apperrors.NewValidation("ConditionCheck requires a ConditionExpression")
		}
		if len(names) > 0 || len(values) > 0 {
			return nil, apperrors.NewValidation("expression attribute names or values provided without an expression")
		}
		return nil, nil
	}
	env := expr.NewEnv(names, values)
	condition, err := expr.ParseCondition(text, env)
	if err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}
	if err := env.CheckFullyUsed(); err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}
	return condition, nil
}

// TransactGetItems snapshots up to 100 reads under one transaction,
// returning results in input order.
func (e *Engine) TransactGetItems(ctx context.Context, input *TransactGetItemsInput) (*TransactGetItemsOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}

	type getEntry struct {
		def        schema.TableDefinition
		key        attr.Item
		projection *expr.Projection
	}
	entries := make([]getEntry, 0, len(input.TransactItems))
	for _, item := range input.TransactItems {
		g := item.Get
		def, err := e.table(ctx, g.TableName)
		if err != nil {
			return nil, translate(ctx, err)
		}
		if err := def.ValidateKey(g.Key); err != nil {
			return nil, apperrors.NewValidation("%s", err)
		}
		env := expr.NewEnv(g.ExpressionAttributeNames, nil)
		var projection *expr.Projection
		if g.ProjectionExpression != "" {
			if projection, err = expr.ParseProjection(g.ProjectionExpression, env); err != nil {
				return nil, apperrors.NewValidation("%s", err)
			}
		}
		if err := env.CheckFullyUsed(); err != nil {
			return nil, apperrors.NewValidation("%s", err)
		}
		entries = append(entries, getEntry{def: def, key: g.Key, projection: projection})
	}

	out := &TransactGetItemsOutput{Responses: make([]ItemResponse, len(entries))}
	err := e.items.WithinTx(ctx, func(tx ports.Tx) error {
		for i, entry := range entries {
			item, err := tx.GetItem(ctx, entry.def, entry.key)
			if err != nil {
				return err
			}
			if item != nil && entry.projection != nil {
				item = entry.projection.Apply(item)
			}
			out.Responses[i] = ItemResponse{Item: item}
		}
		return nil
	})
	if err != nil {
		return nil, translate(ctx, err)
	}
	return out, nil
}
