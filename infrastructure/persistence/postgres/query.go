package postgres

import (
	"context"
	"fmt"
	"strings"

	"pretenderdb/application/ports"
	"pretenderdb/domain/attr"
	"pretenderdb/domain/expr"
	apperrors "pretenderdb/pkg/errors"
	"pretenderdb/domain/schema"
)

// orderedColumn pairs a typed SQL column with the attribute it stores,
// for ORDER BY and pagination tuple comparisons.
type orderedColumn struct {
	column   string
	attrName string
}

// QueryPage reads one page of candidates for Query or Scan: key-pinned
// or full-relation, primary table or GSI projection, ordered by the
// relevant key columns with tuple-comparison pagination.
func (s *ItemStore) QueryPage(ctx context.Context, req ports.QueryRequest) (ports.QueryPage, error) {
	def := req.Table
	relation := "items"
	if req.Index != nil {
		relation = "gsi_projections"
	}

	b := &predicateBuilder{}
	b.add("table_name", def.Name)
	if req.Index != nil {
		b.add("index_name", req.Index.Name)
	}

	order, err := orderColumns(def, req.Index, req.KeyCondition != nil)
	if err != nil {
		return ports.QueryPage{}, apperrors.NewInternal(err)
	}

	if req.KeyCondition != nil {
		if err := addKeyCondition(b, def, req.Index, req.KeyCondition); err != nil {
			return ports.QueryPage{}, err
		}
	}
	if req.TotalSegments != nil {
		addSegmentPredicate(b, def, req.Index, *req.Segment, *req.TotalSegments)
	}
	if len(req.StartKey) > 0 {
		done, err := addStartKeyPredicate(b, def, order, req.StartKey, req.Forward || req.KeyCondition == nil)
		if err != nil {
			return ports.QueryPage{}, err
		}
		if done {
			return ports.QueryPage{}, nil
		}
	}

	sql := fmt.Sprintf("SELECT payload FROM %s WHERE %s", relation, strings.Join(b.clauses, " AND "))
	if len(order) > 0 {
		dir := ""
		if req.KeyCondition != nil && !req.Forward {
			dir = " DESC"
		}
		cols := make([]string, len(order))
		for i, oc := range order {
			cols[i] = oc.column + dir
		}
		sql += " ORDER BY " + strings.Join(cols, ", ")
	}
	if req.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT $%d", b.next())
		b.args = append(b.args, req.Limit)
	}

	rows, err := s.db.pool.Query(ctx, sql, b.args...)
	if err != nil {
		return ports.QueryPage{}, apperrors.NewInternal(err)
	}
	defer rows.Close()

	page := ports.QueryPage{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return ports.QueryPage{}, apperrors.NewInternal(err)
		}
		item, err := attr.UnmarshalItem(payload)
		if err != nil {
			return ports.QueryPage{}, apperrors.NewInternal(err)
		}
		page.Items = append(page.Items, item)
	}
	if err := rows.Err(); err != nil {
		return ports.QueryPage{}, apperrors.NewInternal(err)
	}
	page.ScannedCount = len(page.Items)
	if req.Limit > 0 && len(page.Items) == req.Limit {
		page.LastItem = page.Items[len(page.Items)-1]
	}
	return page, nil
}

// orderColumns lists the columns a read is ordered and paginated by.
// Query pins the hash, so only range and tiebreak columns participate;
// Scan orders by the full key tuple.
func orderColumns(def schema.TableDefinition, gsi *schema.GlobalSecondaryIndex, keyed bool) ([]orderedColumn, error) {
	var order []orderedColumn
	add := func(prefix, attrName string) {
		order = append(order, orderedColumn{
			column:   columnFor(prefix, def.AttributeTypes[attrName]),
			attrName: attrName,
		})
	}
	if gsi != nil {
		if !keyed {
			add("gsi_hash", gsi.Keys.HashKey)
		}
		if gsi.Keys.HasRange() {
			add("gsi_range", gsi.Keys.RangeKey)
		}
		// Base keys break ties between items sharing an index key.
		add("base_hash", def.Keys.HashKey)
		if def.Keys.HasRange() {
			add("base_range", def.Keys.RangeKey)
		}
		return order, nil
	}
	if !keyed {
		add("hash", def.Keys.HashKey)
	}
	if def.Keys.HasRange() {
		add("range", def.Keys.RangeKey)
	}
	return order, nil
}

// addKeyCondition pins the hash column and translates the optional range
// constraint onto the typed range column.
func addKeyCondition(b *predicateBuilder, def schema.TableDefinition, gsi *schema.GlobalSecondaryIndex, kc *expr.KeyCondition) error {
	hashPrefix, rangePrefix := "hash", "range"
	if gsi != nil {
		hashPrefix, rangePrefix = "gsi_hash", "gsi_range"
	}

	hp, err := keyParam(kc.HashValue)
	if err != nil {
		return apperrors.NewValidation("%s", err)
	}
	b.add(columnFor(hashPrefix, kc.HashValue.Type()), hp)

	if !kc.HasRangeCondition() {
		return nil
	}
	col := columnFor(rangePrefix, kc.RangeValue.Type())
	rp, err := keyParam(kc.RangeValue)
	if err != nil {
		return apperrors.NewValidation("%s", err)
	}
	switch kc.RangeOp {
	case expr.RangeEq, expr.RangeLt, expr.RangeLe, expr.RangeGt, expr.RangeGe:
		b.addRaw(fmt.Sprintf("%s %s $%d", col, kc.RangeOp, b.next()), rp)
	case expr.RangeBetween:
		up, err := keyParam(kc.RangeUpper)
		if err != nil {
			return apperrors.NewValidation("%s", err)
		}
		b.addRaw(fmt.Sprintf("%s BETWEEN $%d AND $%d", col, b.next(), b.next()+1), rp, up)
	case expr.RangeBeginsWith:
		if kc.RangeValue.Type() == attr.TypeBinary {
			b.addRaw(fmt.Sprintf("substring(%s FROM 1 FOR octet_length($%d::bytea)) = $%d", col, b.next(), b.next()), rp)
		} else {
			b.addRaw(fmt.Sprintf("left(%s, char_length($%d::text)) = $%d", col, b.next(), b.next()), rp)
		}
	default:
		return apperrors.NewValidation("unsupported range operator %s", kc.RangeOp)
	}
	return nil
}

// addSegmentPredicate partitions the scanned key space by hashing the
// relation's hash-key column.
func addSegmentPredicate(b *predicateBuilder, def schema.TableDefinition, gsi *schema.GlobalSecondaryIndex, segment, total int) {
	prefix := "hash"
	if gsi != nil {
		prefix = "gsi_hash"
	}
	clause := fmt.Sprintf(
		"mod(abs(hashtext(coalesce(%s_s, %s_n::text, encode(%s_b, 'hex')))), $%d) = $%d",
		prefix, prefix, prefix, b.next(), b.next()+1)
	b.addRaw(clause, total, segment)
}

// addStartKeyPredicate resumes strictly after the previous page's last
// row via a row comparison over the order columns. When there is nothing
// to compare on (hash-only table, key already pinned), the single
// possible row was already returned and the page is empty.
func addStartKeyPredicate(b *predicateBuilder, def schema.TableDefinition, order []orderedColumn, startKey attr.Item, forward bool) (done bool, err error) {
	if len(order) == 0 {
		return true, nil
	}
	cols := make([]string, len(order))
	marks := make([]string, len(order))
	values := make([]interface{}, len(order))
	for i, oc := range order {
		v, ok := startKey[oc.attrName]
		if !ok {
			return false, apperrors.NewValidation("exclusive start key is missing attribute %s", oc.attrName)
		}
		p, err := keyParam(v)
		if err != nil {
			return false, apperrors.NewValidation("%s", err)
		}
		cols[i] = oc.column
		marks[i] = fmt.Sprintf("$%d", b.next()+i)
		values[i] = p
	}
	op := ">"
	if !forward {
		op = "<"
	}
	b.addRaw(fmt.Sprintf("(%s) %s (%s)", strings.Join(cols, ", "), op, strings.Join(marks, ", ")), values...)
	return false, nil
}
