package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"pretenderdb/application/ports"
	"pretenderdb/domain/attr"
	apperrors "pretenderdb/pkg/errors"
	"pretenderdb/domain/schema"
	"pretenderdb/domain/streams"
	"pretenderdb/pkg/clock"
)

// Options tunes the engine's background behavior and defaults.
type Options struct {
	TTLSweepInterval      time.Duration
	TTLBatchSize          int
	StreamRetention       time.Duration
	StreamPruneInterval   time.Duration
	DefaultStreamViewType schema.StreamViewType
	// IteratorSigningKey signs shard iterators; a random per-process key
	// is generated when empty.
	IteratorSigningKey []byte
	// TTL delete marker, distinguishable by stream consumers.
	TTLPrincipalType string
	TTLPrincipalID   string
}

// withDefaults fills unset options.
func (o Options) withDefaults() Options {
	if o.TTLSweepInterval <= 0 {
		o.TTLSweepInterval = 60 * time.Second
	}
	if o.TTLBatchSize <= 0 {
		o.TTLBatchSize = 500
	}
	if o.StreamRetention <= 0 {
		o.StreamRetention = 24 * time.Hour
	}
	if o.StreamPruneInterval <= 0 {
		o.StreamPruneInterval = time.Minute
	}
	if o.DefaultStreamViewType == "" {
		o.DefaultStreamViewType = schema.StreamViewNewAndOldImages
	}
	if o.TTLPrincipalType == "" {
		o.TTLPrincipalType = "Service"
	}
	if o.TTLPrincipalID == "" {
		o.TTLPrincipalID = "dynamodb.amazonaws.com"
	}
	return o
}

// Engine is the operation facade: every DynamoDB operation is a method
// on it, and the HTTP layer is a thin shell around those methods.
type Engine struct {
	catalog  ports.Catalog
	items    ports.ItemStore
	streams  ports.StreamStore
	clock    clock.Clock
	logger   *zap.Logger
	validate *validator.Validate
	opts     Options

	signingKey []byte

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewEngine wires the engine from its collaborators.
func NewEngine(
	catalog ports.Catalog,
	items ports.ItemStore,
	streamStore ports.StreamStore,
	clk clock.Clock,
	logger *zap.Logger,
	opts Options,
) *Engine {
	opts = opts.withDefaults()
	key := opts.IteratorSigningKey
	if len(key) == 0 {
		key = randomKey()
	}
	return &Engine{
		catalog:    catalog,
		items:      items,
		streams:    streamStore,
		clock:      clk,
		logger:     logger,
		validate:   validator.New(),
		opts:       opts,
		signingKey: key,
	}
}

// Start launches the TTL sweeper and the stream retention pruner.
func (e *Engine) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.wg.Add(2)
	go e.runTTLSweeper(ctx)
	go e.runStreamPruner(ctx)
	e.logger.Info("engine started",
		zap.Duration("ttlSweepInterval", e.opts.TTLSweepInterval),
		zap.Duration("streamRetention", e.opts.StreamRetention))
}

// Close stops the background workers and waits for in-flight batches.
func (e *Engine) Close() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.logger.Info("engine stopped")
}

// table resolves a table definition by name.
func (e *Engine) table(ctx context.Context, name string) (schema.TableDefinition, error) {
	if name == "" {
		return schema.TableDefinition{}, apperrors.NewValidation("TableName must not be empty")
	}
	return e.catalog.GetTable(ctx, name)
}

// checkInput validates a request struct's shape.
func (e *Engine) checkInput(input interface{}) error {
	if err := e.validate.Struct(input); err != nil {
		return apperrors.NewValidation("%s", err)
	}
	return nil
}

// translate normalizes failures for the API boundary: deadline expiry
// becomes RequestTimeout, everything else an OperationError.
func translate(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.NewRequestTimeout()
	}
	return apperrors.AsOperationError(err)
}

// captureStream appends a mutation record inside the caller's
// transaction when the table streams. Disabled streams emit nothing.
func (e *Engine) captureStream(ctx context.Context, tx ports.Tx, def schema.TableDefinition, event streams.EventName, key, oldImage, newImage attr.Item, identity *streams.UserIdentity) error {
	if !def.Stream.Enabled || def.Stream.StreamID == "" {
		return nil
	}
	rec := streams.NewRecord(def.Stream.ViewType, event, key, oldImage, newImage, identity)
	rec.StreamID = def.Stream.StreamID
	rec.CreatedAt = e.clock.Now()
	_, err := tx.AppendStreamRecord(ctx, rec)
	return err
}

// applyReturnValues computes the Attributes member for a mutating
// operation. touched lists the top-level attributes an update wrote; it
// is nil for Put and Delete, where UPDATED_* degenerate to the full
// image.
func applyReturnValues(returnValues string, pre, post attr.Item, touched []string) (attr.Item, error) {
	switch returnValues {
	case "", "NONE":
		return nil, nil
	case "ALL_OLD":
		if pre == nil {
			return attr.Item{}, nil
		}
		return pre.Clone(), nil
	case "ALL_NEW":
		if post == nil {
			return attr.Item{}, nil
		}
		return post.Clone(), nil
	case "UPDATED_OLD", "UPDATED_NEW":
		source := pre
		if returnValues == "UPDATED_NEW" {
			source = post
		}
		if source == nil {
			return attr.Item{}, nil
		}
		if touched == nil {
			return source.Clone(), nil
		}
		out := attr.Item{}
		for _, name := range touched {
			if v, ok := source[name]; ok {
				out[name] = v.Clone()
			}
		}
		return out, nil
	default:
		return nil, apperrors.NewValidation("unknown ReturnValues %q", returnValues)
	}
}

// randomKey generates a per-process iterator signing key.
func randomKey() []byte {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("failed to generate iterator signing key: %v", err))
	}
	return key
}

// streamArn fabricates the deterministic ARN for a table's stream.
func streamArn(tableName, label string) string {
	return fmt.Sprintf("arn:aws:dynamodb:local:000000000000:table/%s/stream/%s", tableName, label)
}
