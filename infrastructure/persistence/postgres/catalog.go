package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	apperrors "pretenderdb/pkg/errors"
	"pretenderdb/domain/schema"
)

// Catalog persists table definitions in the tables relation, fronted by
// an in-memory read-through cache invalidated on every mutation.
type Catalog struct {
	db     *DB
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]schema.TableDefinition
}

// NewCatalog creates the catalog store.
func NewCatalog(db *DB, logger *zap.Logger) *Catalog {
	return &Catalog{
		db:     db,
		logger: logger,
		cache:  map[string]schema.TableDefinition{},
	}
}

// CreateTable inserts the definition, failing when the name is taken.
func (c *Catalog) CreateTable(ctx context.Context, def schema.TableDefinition) error {
	payload, err := json.Marshal(def)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	_, err = c.db.pool.Exec(ctx,
		`INSERT INTO tables (name, schema_json, created_at) VALUES ($1, $2, $3)`,
		def.Name, payload, def.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.NewResourceInUse(def.Name)
		}
		return apperrors.NewInternal(err)
	}
	c.invalidate(def.Name)
	c.logger.Info("table created",
		zap.String("table", def.Name),
		zap.Int("gsis", len(def.GSIs)),
		zap.Bool("stream", def.Stream.Enabled))
	return nil
}

// GetTable returns the definition, serving repeat lookups from cache.
func (c *Catalog) GetTable(ctx context.Context, name string) (schema.TableDefinition, error) {
	c.mu.RLock()
	def, ok := c.cache[name]
	c.mu.RUnlock()
	if ok {
		return def, nil
	}

	var payload []byte
	err := c.db.pool.QueryRow(ctx,
		`SELECT schema_json FROM tables WHERE name = $1`, name).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return schema.TableDefinition{}, apperrors.NewResourceNotFound(name)
	}
	if err != nil {
		return schema.TableDefinition{}, apperrors.NewInternal(err)
	}
	if err := json.Unmarshal(payload, &def); err != nil {
		return schema.TableDefinition{}, apperrors.NewInternal(fmt.Errorf("corrupt schema for table %s: %w", name, err))
	}

	c.mu.Lock()
	c.cache[name] = def
	c.mu.Unlock()
	return def, nil
}

// ListTables returns up to limit names after startAfter.
func (c *Catalog) ListTables(ctx context.Context, startAfter string, limit int) ([]string, error) {
	rows, err := c.db.pool.Query(ctx,
		`SELECT name FROM tables WHERE name > $1 ORDER BY name LIMIT $2`,
		startAfter, limit)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, apperrors.NewInternal(err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return names, nil
}

// UpdateTable replaces the stored definition.
func (c *Catalog) UpdateTable(ctx context.Context, def schema.TableDefinition) error {
	payload, err := json.Marshal(def)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	tag, err := c.db.pool.Exec(ctx,
		`UPDATE tables SET schema_json = $2 WHERE name = $1`, def.Name, payload)
	if err != nil {
		return apperrors.NewInternal(err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewResourceNotFound(def.Name)
	}
	c.invalidate(def.Name)
	return nil
}

// DeleteTable removes the definition; item rows follow through the
// foreign key cascade, and GSI projections plus stream records are
// removed explicitly in the same transaction.
func (c *Catalog) DeleteTable(ctx context.Context, def schema.TableDefinition) error {
	err := c.db.inTx(ctx, "delete table", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM tables WHERE name = $1`, def.Name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperrors.NewResourceNotFound(def.Name)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM gsi_projections WHERE table_name = $1`, def.Name); err != nil {
			return err
		}
		if def.Stream.StreamID != "" {
			if _, err := tx.Exec(ctx, `DELETE FROM stream_records WHERE stream_id = $1`, def.Stream.StreamID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.AsOperationError(err)
	}
	c.invalidate(def.Name)
	c.logger.Info("table deleted", zap.String("table", def.Name))
	return nil
}

func (c *Catalog) invalidate(name string) {
	c.mu.Lock()
	delete(c.cache, name)
	c.mu.Unlock()
}
