package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"pretenderdb/application/ports"
	"pretenderdb/domain/attr"
	apperrors "pretenderdb/pkg/errors"
	"pretenderdb/domain/schema"
	"pretenderdb/domain/streams"
)

// ItemStore implements ports.ItemStore over the items and
// gsi_projections relations.
type ItemStore struct {
	db     *DB
	logger *zap.Logger
}

// NewItemStore creates the item store.
func NewItemStore(db *DB, logger *zap.Logger) *ItemStore {
	return &ItemStore{db: db, logger: logger}
}

// WithinTx runs fn inside one SQL transaction with transient-failure
// retry. All writes issued through the provided Tx commit atomically.
func (s *ItemStore) WithinTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	return s.db.inTx(ctx, "item tx", func(tx pgx.Tx) error {
		return fn(&storeTx{tx: tx})
	})
}

// GetItem reads an item by primary key without locking.
func (s *ItemStore) GetItem(ctx context.Context, def schema.TableDefinition, key attr.Item) (attr.Item, error) {
	b := &predicateBuilder{}
	b.add("table_name", def.Name)
	if err := primaryKeyPredicate(b, def, key); err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}
	sql := "SELECT payload FROM items WHERE " + strings.Join(b.clauses, " AND ")
	return scanOneItem(s.db.pool.QueryRow(ctx, sql, b.args...))
}

// ExpiredKeys selects primary keys of items whose TTL attribute holds an
// N value numerically at or below nowEpoch. The comparison happens in
// SQL against the JSON payload so a later TTL attribute change needs no
// backfill.
func (s *ItemStore) ExpiredKeys(ctx context.Context, def schema.TableDefinition, ttlAttribute string, nowEpoch int64, limit int) ([]attr.Item, error) {
	sql := `SELECT payload FROM items
		WHERE table_name = $1
		  AND (payload -> $2 ->> 'N') IS NOT NULL
		  AND (payload -> $2 ->> 'N')::numeric <= $3
		LIMIT $4`
	rows, err := s.db.pool.Query(ctx, sql, def.Name, ttlAttribute, nowEpoch, limit)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer rows.Close()

	var keys []attr.Item
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, apperrors.NewInternal(err)
		}
		item, err := attr.UnmarshalItem(payload)
		if err != nil {
			return nil, apperrors.NewInternal(err)
		}
		key, err := def.ExtractKey(item)
		if err != nil {
			return nil, apperrors.NewInternal(err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return keys, nil
}

// storeTx implements ports.Tx on a live pgx transaction.
type storeTx struct {
	tx pgx.Tx
}

// GetItemForUpdate reads an item by primary key under FOR UPDATE, so
// conditional writes serialize per item.
func (t *storeTx) GetItemForUpdate(ctx context.Context, def schema.TableDefinition, key attr.Item) (attr.Item, error) {
	b := &predicateBuilder{}
	b.add("table_name", def.Name)
	if err := primaryKeyPredicate(b, def, key); err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}
	sql := "SELECT payload FROM items WHERE " + strings.Join(b.clauses, " AND ") + " FOR UPDATE"
	return scanOneItem(t.tx.QueryRow(ctx, sql, b.args...))
}

// GetItem reads an item inside the transaction without locking it.
func (t *storeTx) GetItem(ctx context.Context, def schema.TableDefinition, key attr.Item) (attr.Item, error) {
	b := &predicateBuilder{}
	b.add("table_name", def.Name)
	if err := primaryKeyPredicate(b, def, key); err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}
	sql := "SELECT payload FROM items WHERE " + strings.Join(b.clauses, " AND ")
	return scanOneItem(t.tx.QueryRow(ctx, sql, b.args...))
}

// PutItem upserts the item row as a full replacement and reconciles the
// GSI projection rows.
func (t *storeTx) PutItem(ctx context.Context, def schema.TableDefinition, item attr.Item) error {
	payload, err := attr.MarshalItem(item)
	if err != nil {
		return apperrors.NewInternal(err)
	}

	cols := []string{"table_name", "payload"}
	args := []interface{}{def.Name, payload}
	hv, err := keyParam(item[def.Keys.HashKey])
	if err != nil {
		return apperrors.NewValidation("%s", err)
	}
	cols = append(cols, columnFor("hash", def.AttributeTypes[def.Keys.HashKey]))
	args = append(args, hv)
	if def.Keys.HasRange() {
		rv, err := keyParam(item[def.Keys.RangeKey])
		if err != nil {
			return apperrors.NewValidation("%s", err)
		}
		cols = append(cols, columnFor("range", def.AttributeTypes[def.Keys.RangeKey]))
		args = append(args, rv)
	}

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf(`INSERT INTO items (%s) VALUES (%s)
		ON CONFLICT (table_name, hash_s, hash_n, hash_b, range_s, range_n, range_b)
		DO UPDATE SET payload = EXCLUDED.payload`,
		strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := t.tx.Exec(ctx, sql, args...); err != nil {
		return apperrors.NewInternal(err)
	}

	key, err := def.ExtractKey(item)
	if err != nil {
		return apperrors.NewValidation("%s", err)
	}
	for _, gsi := range def.GSIs {
		if err := t.reconcileProjection(ctx, def, gsi, key, item); err != nil {
			return err
		}
	}
	return nil
}

// DeleteItem removes the item row and every projection row for it.
func (t *storeTx) DeleteItem(ctx context.Context, def schema.TableDefinition, key attr.Item) error {
	b := &predicateBuilder{}
	b.add("table_name", def.Name)
	if err := primaryKeyPredicate(b, def, key); err != nil {
		return apperrors.NewValidation("%s", err)
	}
	sql := "DELETE FROM items WHERE " + strings.Join(b.clauses, " AND ")
	if _, err := t.tx.Exec(ctx, sql, b.args...); err != nil {
		return apperrors.NewInternal(err)
	}
	return t.deleteProjections(ctx, def, "", key)
}

// AppendStreamRecord captures one mutation. Appends to the same stream
// serialize on an advisory lock held to commit, so sequence order always
// matches commit order for a stream's readers.
func (t *storeTx) AppendStreamRecord(ctx context.Context, rec streams.Record) (int64, error) {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, rec.StreamID); err != nil {
		return 0, apperrors.NewInternal(err)
	}

	keysJSON, err := attr.MarshalItem(rec.Keys)
	if err != nil {
		return 0, apperrors.NewInternal(err)
	}
	var oldJSON, newJSON, identityJSON []byte
	if rec.OldImage != nil {
		if oldJSON, err = attr.MarshalItem(rec.OldImage); err != nil {
			return 0, apperrors.NewInternal(err)
		}
	}
	if rec.NewImage != nil {
		if newJSON, err = attr.MarshalItem(rec.NewImage); err != nil {
			return 0, apperrors.NewInternal(err)
		}
	}
	if rec.UserIdentity != nil {
		if identityJSON, err = json.Marshal(rec.UserIdentity); err != nil {
			return 0, apperrors.NewInternal(err)
		}
	}

	var seq int64
	err = t.tx.QueryRow(ctx, `INSERT INTO stream_records
			(stream_id, sequence_no, event_name, keys_json, old_image_json, new_image_json, user_identity_json, created_at)
		VALUES ($1, nextval('stream_sequence'), $2, $3, $4, $5, $6, $7)
		RETURNING sequence_no`,
		rec.StreamID, string(rec.EventName), keysJSON, oldJSON, newJSON, identityJSON, rec.CreatedAt).Scan(&seq)
	if err != nil {
		return 0, apperrors.NewInternal(err)
	}
	return seq, nil
}

// reconcileProjection brings one GSI's row for the item in line with the
// new image: drop the old row, insert a fresh one when the item carries
// the index keys.
func (t *storeTx) reconcileProjection(ctx context.Context, def schema.TableDefinition, gsi schema.GlobalSecondaryIndex, baseKey, item attr.Item) error {
	if err := t.deleteProjections(ctx, def, gsi.Name, baseKey); err != nil {
		return err
	}
	if !def.QualifiesForGSI(gsi, item) {
		return nil
	}

	projected := def.ProjectForGSI(gsi, item)
	payload, err := attr.MarshalItem(projected)
	if err != nil {
		return apperrors.NewInternal(err)
	}

	cols := []string{"table_name", "index_name", "payload"}
	args := []interface{}{def.Name, gsi.Name, payload}
	appendKey := func(prefix, attrName string) error {
		p, err := keyParam(item[attrName])
		if err != nil {
			return err
		}
		cols = append(cols, columnFor(prefix, def.AttributeTypes[attrName]))
		args = append(args, p)
		return nil
	}
	if err := appendKey("gsi_hash", gsi.Keys.HashKey); err != nil {
		return apperrors.NewValidation("%s", err)
	}
	if gsi.Keys.HasRange() {
		if err := appendKey("gsi_range", gsi.Keys.RangeKey); err != nil {
			return apperrors.NewValidation("%s", err)
		}
	}
	if err := appendKey("base_hash", def.Keys.HashKey); err != nil {
		return apperrors.NewValidation("%s", err)
	}
	if def.Keys.HasRange() {
		if err := appendKey("base_range", def.Keys.RangeKey); err != nil {
			return apperrors.NewValidation("%s", err)
		}
	}

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf(`INSERT INTO gsi_projections (%s) VALUES (%s)`,
		strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := t.tx.Exec(ctx, sql, args...); err != nil {
		return apperrors.NewInternal(err)
	}
	return nil
}

// deleteProjections removes projection rows for a base key, for one
// index or (indexName == "") all of them.
func (t *storeTx) deleteProjections(ctx context.Context, def schema.TableDefinition, indexName string, baseKey attr.Item) error {
	b := &predicateBuilder{}
	b.add("table_name", def.Name)
	if indexName != "" {
		b.add("index_name", indexName)
	}
	hp, err := keyParam(baseKey[def.Keys.HashKey])
	if err != nil {
		return apperrors.NewValidation("%s", err)
	}
	b.add(columnFor("base_hash", def.AttributeTypes[def.Keys.HashKey]), hp)
	if def.Keys.HasRange() {
		rp, err := keyParam(baseKey[def.Keys.RangeKey])
		if err != nil {
			return apperrors.NewValidation("%s", err)
		}
		b.add(columnFor("base_range", def.AttributeTypes[def.Keys.RangeKey]), rp)
	}
	sql := "DELETE FROM gsi_projections WHERE " + strings.Join(b.clauses, " AND ")
	if _, err := t.tx.Exec(ctx, sql, b.args...); err != nil {
		return apperrors.NewInternal(err)
	}
	return nil
}

// scanOneItem decodes a single payload row; a missing row is a nil item.
func scanOneItem(row pgx.Row) (attr.Item, error) {
	var payload []byte
	err := row.Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	item, err := attr.UnmarshalItem(payload)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return item, nil
}
