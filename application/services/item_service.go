package services

import (
	"context"

	"go.uber.org/zap"

	"pretenderdb/application/ports"
	"pretenderdb/domain/attr"
	"pretenderdb/domain/expr"
	apperrors "pretenderdb/pkg/errors"
	"pretenderdb/domain/schema"
	"pretenderdb/domain/streams"
)

// PutItem stores a full replacement of the item, honoring an optional
// condition against the pre-image and capturing a stream record.
func (e *Engine) PutItem(ctx context.Context, input *PutItemInput) (*PutItemOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}
	def, err := e.table(ctx, input.TableName)
	if err != nil {
		return nil, translate(ctx, err)
	}
	key, err := def.ExtractKey(input.Item)
	if err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}

	env := expr.NewEnv(input.ExpressionAttributeNames, input.ExpressionAttributeValues)
	var condition expr.Condition
	if input.ConditionExpression != "" {
		if condition, err = expr.ParseCondition(input.ConditionExpression, env); err != nil {
			return nil, apperrors.NewValidation("%s", err)
		}
	}
	if err := env.CheckFullyUsed(); err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}

	var pre attr.Item
	err = e.items.WithinTx(ctx, func(tx ports.Tx) error {
		if pre, err = tx.GetItemForUpdate(ctx, def, key); err != nil {
			return err
		}
		if condition != nil {
			if err := evalCondition(condition, pre); err != nil {
				return err
			}
		}
		if err := tx.PutItem(ctx, def, input.Item); err != nil {
			return err
		}
		event := streams.EventInsert
		if pre != nil {
			event = streams.EventModify
		}
		return e.captureStream(ctx, tx, def, event, key, pre, input.Item, nil)
	})
	if err != nil {
		return nil, translate(ctx, err)
	}

	attrs, err := applyReturnValues(input.ReturnValues, pre, input.Item, nil)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("item put", zap.String("table", def.Name))
	return &PutItemOutput{Attributes: attrs}, nil
}

// GetItem reads one item by primary key; a missing item is an empty
// result, not an error.
func (e *Engine) GetItem(ctx context.Context, input *GetItemInput) (*GetItemOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}
	def, err := e.table(ctx, input.TableName)
	if err != nil {
		return nil, translate(ctx, err)
	}
	if err := def.ValidateKey(input.Key); err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}
	env := expr.NewEnv(input.ExpressionAttributeNames, nil)
	var projection *expr.Projection
	if input.ProjectionExpression != "" {
		if projection, err = expr.ParseProjection(input.ProjectionExpression, env); err != nil {
			return nil, apperrors.NewValidation("%s", err)
		}
	}
	if err := env.CheckFullyUsed(); err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}

	item, err := e.items.GetItem(ctx, def, input.Key)
	if err != nil {
		return nil, translate(ctx, err)
	}
	if item != nil && projection != nil {
		item = projection.Apply(item)
	}
	return &GetItemOutput{Item: item}, nil
}

// UpdateItem applies an update expression to the pre-image, creating the
// item when absent (upsert semantics).
func (e *Engine) UpdateItem(ctx context.Context, input *UpdateItemInput) (*UpdateItemOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}
	def, err := e.table(ctx, input.TableName)
	if err != nil {
		return nil, translate(ctx, err)
	}
	if err := def.ValidateKey(input.Key); err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}

	env := expr.NewEnv(input.ExpressionAttributeNames, input.ExpressionAttributeValues)
	update, err := expr.ParseUpdate(input.UpdateExpression, env)
	if err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}
	var condition expr.Condition
	if input.ConditionExpression != "" {
		if condition, err = expr.ParseCondition(input.ConditionExpression, env); err != nil {
			return nil, apperrors.NewValidation("%s", err)
		}
	}
	if err := env.CheckFullyUsed(); err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}
	if err := rejectKeyMutation(def, update); err != nil {
		return nil, err
	}

	var pre, post attr.Item
	err = e.items.WithinTx(ctx, func(tx ports.Tx) error {
		if pre, err = tx.GetItemForUpdate(ctx, def, input.Key); err != nil {
			return err
		}
		if condition != nil {
			if err := evalCondition(condition, pre); err != nil {
				return err
			}
		}
		base := pre
		if base == nil {
			// Upsert: the expression runs against an item holding only
			// the key attributes.
			base = input.Key.Clone()
		}
		if post, err = update.Apply(base); err != nil {
			return apperrors.NewValidation("%s", err)
		}
		if err := tx.PutItem(ctx, def, post); err != nil {
			return err
		}
		event := streams.EventInsert
		if pre != nil {
			event = streams.EventModify
		}
		return e.captureStream(ctx, tx, def, event, input.Key, pre, post, nil)
	})
	if err != nil {
		return nil, translate(ctx, err)
	}

	attrs, err := applyReturnValues(input.ReturnValues, pre, post, update.TouchedRoots())
	if err != nil {
		return nil, err
	}
	e.logger.Debug("item updated", zap.String("table", def.Name))
	return &UpdateItemOutput{Attributes: attrs}, nil
}

// DeleteItem removes one item; deleting a missing item succeeds silently
// unless a condition demands otherwise.
func (e *Engine) DeleteItem(ctx context.Context, input *DeleteItemInput) (*DeleteItemOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}
	def, err := e.table(ctx, input.TableName)
	if err != nil {
		return nil, translate(ctx, err)
	}
	if err := def.ValidateKey(input.Key); err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}

	env := expr.NewEnv(input.ExpressionAttributeNames, input.ExpressionAttributeValues)
	var condition expr.Condition
	if input.ConditionExpression != "" {
		if condition, err = expr.ParseCondition(input.ConditionExpression, env); err != nil {
			return nil, apperrors.NewValidation("%s", err)
		}
	}
	if err := env.CheckFullyUsed(); err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}

	pre, err := e.deleteOne(ctx, def, input.Key, condition, nil)
	if err != nil {
		return nil, translate(ctx, err)
	}
	attrs, err := applyReturnValues(input.ReturnValues, pre, nil, nil)
	if err != nil {
		return nil, err
	}
	return &DeleteItemOutput{Attributes: attrs}, nil
}

// deleteOne is the shared delete pipeline, also used by the TTL sweeper
// with its service identity marker.
func (e *Engine) deleteOne(ctx context.Context, def schema.TableDefinition, key attr.Item, condition expr.Condition, identity *streams.UserIdentity) (attr.Item, error) {
	var pre attr.Item
	err := e.items.WithinTx(ctx, func(tx ports.Tx) error {
		var err error
		if pre, err = tx.GetItemForUpdate(ctx, def, key); err != nil {
			return err
		}
		if condition != nil {
			if err := evalCondition(condition, pre); err != nil {
				return err
			}
		}
		if pre == nil {
			return nil
		}
		if err := tx.DeleteItem(ctx, def, key); err != nil {
			return err
		}
		return e.captureStream(ctx, tx, def, streams.EventRemove, key, pre, nil, identity)
	})
	return pre, err
}

// evalCondition runs a condition against a possibly-absent pre-image.
func evalCondition(condition expr.Condition, pre attr.Item) error {
	target := pre
	if target == nil {
		target = attr.Item{}
	}
	ok, err := expr.Evaluate(condition, target)
	if err != nil {
		return apperrors.NewValidation("%s", err)
	}
	if !ok {
		return apperrors.NewConditionalCheckFailed()
	}
	return nil
}

// rejectKeyMutation refuses update expressions that write key attributes.
func rejectKeyMutation(def schema.TableDefinition, update *expr.UpdateExpression) error {
	for _, root := range update.TouchedRoots() {
		if root == def.Keys.HashKey || (def.Keys.HasRange() && root == def.Keys.RangeKey) {
			return apperrors.NewValidation(
				"one or more parameter values were invalid: cannot update attribute %s; this attribute is part of the key", root)
		}
	}
	return nil
}
