package services

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"pretenderdb/domain/attr"
	"pretenderdb/domain/expr"
	apperrors "pretenderdb/pkg/errors"
	"pretenderdb/domain/schema"
	"pretenderdb/domain/streams"
)

// runTTLSweeper periodically removes expired items from TTL-enabled
// tables. The sweep is best-effort: while the worker is down, expired
// items stay queryable.
func (e *Engine) runTTLSweeper(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.opts.TTLSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.SweepExpired(ctx); err != nil && ctx.Err() == nil {
				e.logger.Warn("ttl sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepExpired runs one TTL pass over every TTL-enabled table. Exposed
// so embedders and tests can trigger a sweep deterministically.
func (e *Engine) SweepExpired(ctx context.Context) error {
	startAfter := ""
	for {
		names, err := e.catalog.ListTables(ctx, startAfter, 100)
		if err != nil {
			return err
		}
		for _, name := range names {
			def, err := e.table(ctx, name)
			if err != nil {
				return err
			}
			if !def.TTL.Enabled || def.TTL.Attribute == "" {
				continue
			}
			if err := e.sweepTable(ctx, def); err != nil {
				return err
			}
		}
		if len(names) < 100 {
			return nil
		}
		startAfter = names[len(names)-1]
	}
}

// sweepTable deletes one batch of expired items from a table, re-checking
// expiry under the row lock so concurrent writes that refreshed the TTL
// attribute survive.
func (e *Engine) sweepTable(ctx context.Context, def schema.TableDefinition) error {
	nowEpoch := e.clock.Now().Unix()
	keys, err := e.items.ExpiredKeys(ctx, def, def.TTL.Attribute, nowEpoch, e.opts.TTLBatchSize)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	identity := &streams.UserIdentity{
		Type:        e.opts.TTLPrincipalType,
		PrincipalID: e.opts.TTLPrincipalID,
	}
	stillExpired := expiredCondition(def.TTL.Attribute, nowEpoch)

	removed := 0
	for _, key := range keys {
		if _, err := e.deleteOne(ctx, def, key, stillExpired, identity); err != nil {
			if apperrors.IsCode(err, apperrors.CodeConditionalCheckFailed) {
				// The item was refreshed or replaced after selection.
				continue
			}
			return err
		}
		removed++
	}
	e.logger.Info("ttl sweep removed expired items",
		zap.String("table", def.Name),
		zap.Int("removed", removed),
		zap.Int64("epoch", nowEpoch))
	return nil
}

// expiredCondition builds the predicate "attribute_type(ttl, N) AND
// ttl <= now" evaluated under the row lock.
func expiredCondition(ttlAttribute string, nowEpoch int64) expr.Condition {
	path := expr.PathOperand{Path: attr.Path{attr.FieldSegment(ttlAttribute)}}
	return expr.AndCondition{
		Left: expr.FuncCondition{
			Name: "attribute_type",
			Args: []expr.Operand{path, expr.ValueOperand{Value: attr.String("N")}},
		},
		Right: expr.CompareCondition{
			Op:    expr.OpLe,
			Left:  path,
			Right: expr.ValueOperand{Value: attr.Number(strconv.FormatInt(nowEpoch, 10))},
		},
	}
}
