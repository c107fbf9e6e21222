package services_test

import (
	"context"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"pretenderdb/application/ports"
	"pretenderdb/domain/attr"
	apperrors "pretenderdb/pkg/errors"
	"pretenderdb/domain/schema"
	"pretenderdb/domain/streams"
)

// memStore is an in-memory stand-in for the postgres stores, with the
// same visible semantics: snapshot rollback on transaction failure,
// key-ordered reads, stream sequence numbers from one counter.
type memStore struct {
	mu      sync.Mutex
	tables  map[string]schema.TableDefinition
	items   map[string]map[string]attr.Item // table -> fingerprint -> item
	records map[string][]streams.Record
	nextSeq int64
}

func newMemStore() *memStore {
	return &memStore{
		tables:  map[string]schema.TableDefinition{},
		items:   map[string]map[string]attr.Item{},
		records: map[string][]streams.Record{},
		nextSeq: 1,
	}
}

func fingerprint(def schema.TableDefinition, key attr.Item) string {
	hb, _ := attr.KeyBytes(key[def.Keys.HashKey])
	fp := string(hb)
	if def.Keys.HasRange() {
		rb, _ := attr.KeyBytes(key[def.Keys.RangeKey])
		fp += "\x00" + string(rb)
	}
	return fp
}

// Catalog

func (m *memStore) CreateTable(_ context.Context, def schema.TableDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tables[def.Name]; exists {
		return apperrors.NewResourceInUse(def.Name)
	}
	m.tables[def.Name] = def
	m.items[def.Name] = map[string]attr.Item{}
	return nil
}

func (m *memStore) GetTable(_ context.Context, name string) (schema.TableDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	def, ok := m.tables[name]
	if !ok {
		return schema.TableDefinition{}, apperrors.NewResourceNotFound(name)
	}
	return def, nil
}

func (m *memStore) ListTables(_ context.Context, startAfter string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.tables {
		if name > startAfter {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

func (m *memStore) UpdateTable(_ context.Context, def schema.TableDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[def.Name]; !ok {
		return apperrors.NewResourceNotFound(def.Name)
	}
	m.tables[def.Name] = def
	return nil
}

func (m *memStore) DeleteTable(_ context.Context, def schema.TableDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[def.Name]; !ok {
		return apperrors.NewResourceNotFound(def.Name)
	}
	delete(m.tables, def.Name)
	delete(m.items, def.Name)
	if def.Stream.StreamID != "" {
		delete(m.records, def.Stream.StreamID)
	}
	return nil
}

// ItemStore

type memTx struct {
	store *memStore
}

func (m *memStore) WithinTx(ctx context.Context, fn func(tx ports.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshotItems := cloneItems(m.items)
	snapshotRecords := cloneRecords(m.records)
	snapshotSeq := m.nextSeq
	if err := fn(&memTx{store: m}); err != nil {
		m.items = snapshotItems
		m.records = snapshotRecords
		m.nextSeq = snapshotSeq
		return err
	}
	return nil
}

func cloneItems(src map[string]map[string]attr.Item) map[string]map[string]attr.Item {
	out := make(map[string]map[string]attr.Item, len(src))
	for table, rows := range src {
		cp := make(map[string]attr.Item, len(rows))
		for fp, item := range rows {
			cp[fp] = item.Clone()
		}
		out[table] = cp
	}
	return out
}

func cloneRecords(src map[string][]streams.Record) map[string][]streams.Record {
	out := make(map[string][]streams.Record, len(src))
	for id, recs := range src {
		out[id] = append([]streams.Record(nil), recs...)
	}
	return out
}

func (t *memTx) GetItemForUpdate(_ context.Context, def schema.TableDefinition, key attr.Item) (attr.Item, error) {
	item, ok := t.store.items[def.Name][fingerprint(def, key)]
	if !ok {
		return nil, nil
	}
	return item.Clone(), nil
}

func (t *memTx) GetItem(ctx context.Context, def schema.TableDefinition, key attr.Item) (attr.Item, error) {
	return t.GetItemForUpdate(ctx, def, key)
}

func (t *memTx) PutItem(_ context.Context, def schema.TableDefinition, item attr.Item) error {
	t.store.items[def.Name][fingerprint(def, item)] = item.Clone()
	return nil
}

func (t *memTx) DeleteItem(_ context.Context, def schema.TableDefinition, key attr.Item) error {
	delete(t.store.items[def.Name], fingerprint(def, key))
	return nil
}

func (t *memTx) AppendStreamRecord(_ context.Context, rec streams.Record) (int64, error) {
	rec.SequenceNumber = t.store.nextSeq
	t.store.nextSeq++
	t.store.records[rec.StreamID] = append(t.store.records[rec.StreamID], rec)
	return rec.SequenceNumber, nil
}

func (m *memStore) GetItem(_ context.Context, def schema.TableDefinition, key attr.Item) (attr.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[def.Name][fingerprint(def, key)]
	if !ok {
		return nil, nil
	}
	return item.Clone(), nil
}

// QueryPage mirrors the SQL read path: select candidates, order by the
// relevant keys, resume after the start key, cut at the limit.
func (m *memStore) QueryPage(_ context.Context, req ports.QueryRequest) (ports.QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	def := req.Table
	var candidates []attr.Item
	for _, item := range m.items[def.Name] {
		view := item
		if req.Index != nil {
			if !def.QualifiesForGSI(*req.Index, item) {
				continue
			}
			view = def.ProjectForGSI(*req.Index, item)
		}
		if req.KeyCondition != nil && !matchesKeyCondition(req, view) {
			continue
		}
		if req.TotalSegments != nil && segmentOf(def, req.Index, item, *req.TotalSegments) != *req.Segment {
			continue
		}
		candidates = append(candidates, view.Clone())
	}

	orderAttrs := orderAttributes(def, req.Index, req.KeyCondition != nil)
	forward := req.Forward || req.KeyCondition == nil
	sort.SliceStable(candidates, func(i, j int) bool {
		less := compareByAttrs(candidates[i], candidates[j], orderAttrs) < 0
		if !forward {
			return !less
		}
		return less
	})

	if len(req.StartKey) > 0 {
		start := 0
		for i, item := range candidates {
			cmp := compareKeyToItem(req.StartKey, item, orderAttrs)
			if (forward && cmp >= 0) || (!forward && cmp <= 0) {
				start = i + 1
			}
		}
		candidates = candidates[start:]
	}

	page := ports.QueryPage{}
	if req.Limit > 0 && len(candidates) > req.Limit {
		candidates = candidates[:req.Limit]
	}
	page.Items = candidates
	page.ScannedCount = len(candidates)
	if req.Limit > 0 && len(candidates) == req.Limit {
		page.LastItem = candidates[len(candidates)-1]
	}
	return page, nil
}

func matchesKeyCondition(req ports.QueryRequest, item attr.Item) bool {
	kc := req.KeyCondition
	hv, ok := item[kc.HashAttribute]
	if !ok || !hv.Equal(kc.HashValue) {
		return false
	}
	if !kc.HasRangeCondition() {
		return true
	}
	rv, ok := item[kc.RangeAttribute]
	if !ok {
		return false
	}
	cmp, err := attr.Compare(rv, kc.RangeValue)
	if err != nil {
		return false
	}
	switch kc.RangeOp {
	case "=":
		return cmp == 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "BETWEEN":
		upper, err := attr.Compare(rv, kc.RangeUpper)
		return err == nil && cmp >= 0 && upper <= 0
	case "begins_with":
		s, sok := rv.StringValue()
		p, pok := kc.RangeValue.StringValue()
		return sok && pok && strings.HasPrefix(s, p)
	}
	return false
}

func orderAttributes(def schema.TableDefinition, gsi *schema.GlobalSecondaryIndex, keyed bool) []string {
	var attrs []string
	if gsi != nil {
		if !keyed {
			attrs = append(attrs, gsi.Keys.HashKey)
		}
		if gsi.Keys.HasRange() {
			attrs = append(attrs, gsi.Keys.RangeKey)
		}
		attrs = append(attrs, def.Keys.HashKey)
		if def.Keys.HasRange() {
			attrs = append(attrs, def.Keys.RangeKey)
		}
		return attrs
	}
	if !keyed {
		attrs = append(attrs, def.Keys.HashKey)
	}
	if def.Keys.HasRange() {
		attrs = append(attrs, def.Keys.RangeKey)
	}
	return attrs
}

func compareByAttrs(a, b attr.Item, attrs []string) int {
	for _, name := range attrs {
		cmp, err := attr.Compare(a[name], b[name])
		if err != nil {
			continue
		}
		if cmp != 0 {
			return cmp
		}
	}
	return 0
}

func compareKeyToItem(key, item attr.Item, attrs []string) int {
	for _, name := range attrs {
		kv, ok := key[name]
		if !ok {
			continue
		}
		cmp, err := attr.Compare(kv, item[name])
		if err != nil {
			continue
		}
		if cmp != 0 {
			return cmp
		}
	}
	return 0
}

func segmentOf(def schema.TableDefinition, gsi *schema.GlobalSecondaryIndex, item attr.Item, total int) int {
	hashAttr := def.Keys.HashKey
	if gsi != nil {
		hashAttr = gsi.Keys.HashKey
	}
	kb, _ := attr.KeyBytes(item[hashAttr])
	h := fnv.New32a()
	_, _ = h.Write(kb)
	return int(h.Sum32() % uint32(total))
}

func (m *memStore) ExpiredKeys(_ context.Context, def schema.TableDefinition, ttlAttribute string, nowEpoch int64, limit int) ([]attr.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []attr.Item
	for _, item := range m.items[def.Name] {
		v, ok := item[ttlAttribute]
		if !ok {
			continue
		}
		n, ok := v.NumberValue()
		if !ok {
			continue
		}
		if c, err := attr.CompareNumbers(n, strconv.FormatInt(nowEpoch, 10)); err == nil && c <= 0 {
			key, err := def.ExtractKey(item)
			if err == nil {
				keys = append(keys, key)
			}
		}
		if len(keys) == limit {
			break
		}
	}
	return keys, nil
}

// StreamStore

func (m *memStore) SequenceBounds(_ context.Context, streamID string) (int64, int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.records[streamID]
	if len(recs) == 0 {
		return 0, 0, false, nil
	}
	return recs[0].SequenceNumber, recs[len(recs)-1].SequenceNumber, true, nil
}

func (m *memStore) FetchRecords(_ context.Context, streamID string, from int64, limit int) ([]streams.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []streams.Record
	for _, rec := range m.records[streamID] {
		if rec.SequenceNumber >= from {
			out = append(out, rec)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) PruneExpired(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for id, recs := range m.records {
		var kept []streams.Record
		for _, rec := range recs {
			if rec.CreatedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		m.records[id] = kept
	}
	return removed, nil
}
