package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pretenderdb/domain/attr"
	apperrors "pretenderdb/pkg/errors"
	"pretenderdb/domain/schema"
)

// CreateTable provisions a table: key schema, attribute type hints,
// GSIs, and optionally a change stream.
func (e *Engine) CreateTable(ctx context.Context, input *CreateTableInput) (*CreateTableOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}
	def, err := definitionFromInput(input)
	if err != nil {
		return nil, err
	}
	def.CreatedAt = e.clock.Now()
	if def.Stream.Enabled {
		if def.Stream.ViewType == "" {
			def.Stream.ViewType = e.opts.DefaultStreamViewType
		}
		def.Stream.StreamID = uuid.NewString()
		def.Stream.Label = def.CreatedAt.UTC().Format("2006-01-02T15:04:05.000")
	}
	if err := def.Validate(); err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}
	if err := e.catalog.CreateTable(ctx, def); err != nil {
		return nil, translate(ctx, err)
	}
	return &CreateTableOutput{TableDescription: describe(def)}, nil
}

// DescribeTable reports a table's definition.
func (e *Engine) DescribeTable(ctx context.Context, input *DescribeTableInput) (*DescribeTableOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}
	def, err := e.table(ctx, input.TableName)
	if err != nil {
		return nil, translate(ctx, err)
	}
	return &DescribeTableOutput{Table: describe(def)}, nil
}

// ListTables pages through table names in lexicographic order.
func (e *Engine) ListTables(ctx context.Context, input *ListTablesInput) (*ListTablesOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 100
	}
	names, err := e.catalog.ListTables(ctx, input.ExclusiveStartTableName, limit)
	if err != nil {
		return nil, translate(ctx, err)
	}
	out := &ListTablesOutput{TableNames: names}
	if len(names) == limit {
		out.LastEvaluatedTableName = names[len(names)-1]
	}
	return out, nil
}

// DeleteTable removes a table, its items, its GSI projections and any
// retained stream records, closing the stream.
func (e *Engine) DeleteTable(ctx context.Context, input *DeleteTableInput) (*DeleteTableOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}
	def, err := e.table(ctx, input.TableName)
	if err != nil {
		return nil, translate(ctx, err)
	}
	if err := e.catalog.DeleteTable(ctx, def); err != nil {
		return nil, translate(ctx, err)
	}
	return &DeleteTableOutput{TableDescription: describe(def)}, nil
}

// UpdateTable adjusts a table's stream settings.
func (e *Engine) UpdateTable(ctx context.Context, input *UpdateTableInput) (*UpdateTableOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}
	def, err := e.table(ctx, input.TableName)
	if err != nil {
		return nil, translate(ctx, err)
	}
	spec := input.StreamSpecification
	if spec.StreamEnabled {
		if def.Stream.Enabled {
			return nil, apperrors.NewValidation("table %s already has an enabled stream", def.Name)
		}
		view := schema.StreamViewType(spec.StreamViewType)
		if view == "" {
			view = e.opts.DefaultStreamViewType
		}
		def.Stream = schema.StreamSpec{
			Enabled:  true,
			ViewType: view,
			StreamID: uuid.NewString(),
			Label:    e.clock.Now().UTC().Format("2006-01-02T15:04:05.000"),
		}
	} else {
		def.Stream.Enabled = false
	}
	if err := def.Validate(); err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}
	if err := e.catalog.UpdateTable(ctx, def); err != nil {
		return nil, translate(ctx, err)
	}
	e.logger.Info("stream settings updated",
		zap.String("table", def.Name),
		zap.Bool("enabled", def.Stream.Enabled))
	return &UpdateTableOutput{TableDescription: describe(def)}, nil
}

// UpdateTimeToLive toggles TTL expiry on a table.
func (e *Engine) UpdateTimeToLive(ctx context.Context, input *UpdateTimeToLiveInput) (*UpdateTimeToLiveOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}
	def, err := e.table(ctx, input.TableName)
	if err != nil {
		return nil, translate(ctx, err)
	}
	spec := input.TimeToLiveSpecification
	if spec.Enabled == def.TTL.Enabled && (!spec.Enabled || spec.AttributeName == def.TTL.Attribute) {
		return nil, apperrors.NewValidation("TimeToLive is already %s", ttlStatus(def.TTL.Enabled))
	}
	def.TTL = schema.TTLSpec{Enabled: spec.Enabled}
	if spec.Enabled {
		def.TTL.Attribute = spec.AttributeName
	}
	if err := e.catalog.UpdateTable(ctx, def); err != nil {
		return nil, translate(ctx, err)
	}
	e.logger.Info("ttl settings updated",
		zap.String("table", def.Name),
		zap.Bool("enabled", def.TTL.Enabled),
		zap.String("attribute", def.TTL.Attribute))
	return &UpdateTimeToLiveOutput{TimeToLiveSpecification: spec}, nil
}

// DescribeTimeToLive reports TTL status for a table.
func (e *Engine) DescribeTimeToLive(ctx context.Context, input *DescribeTimeToLiveInput) (*DescribeTimeToLiveOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}
	def, err := e.table(ctx, input.TableName)
	if err != nil {
		return nil, translate(ctx, err)
	}
	desc := TimeToLiveDescription{TimeToLiveStatus: "DISABLED"}
	if def.TTL.Enabled {
		desc = TimeToLiveDescription{TimeToLiveStatus: "ENABLED", AttributeName: def.TTL.Attribute}
	}
	return &DescribeTimeToLiveOutput{TimeToLiveDescription: desc}, nil
}

func ttlStatus(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// definitionFromInput converts the wire definition to the catalog model.
func definitionFromInput(input *CreateTableInput) (schema.TableDefinition, error) {
	types := map[string]attr.Type{}
	for _, ad := range input.AttributeDefinitions {
		types[ad.AttributeName] = attr.Type(ad.AttributeType)
	}
	keys, err := keySchemaFromWire(input.KeySchema)
	if err != nil {
		return schema.TableDefinition{}, err
	}
	def := schema.TableDefinition{
		Name:           input.TableName,
		Keys:           keys,
		AttributeTypes: types,
	}
	for _, spec := range input.GlobalSecondaryIndexes {
		gsiKeys, err := keySchemaFromWire(spec.KeySchema)
		if err != nil {
			return schema.TableDefinition{}, err
		}
		def.GSIs = append(def.GSIs, schema.GlobalSecondaryIndex{
			Name:        spec.IndexName,
			Keys:        gsiKeys,
			Projection:  schema.ProjectionType(spec.Projection.ProjectionType),
			NonKeyAttrs: spec.Projection.NonKeyAttributes,
		})
	}
	if input.StreamSpecification != nil && input.StreamSpecification.StreamEnabled {
		def.Stream = schema.StreamSpec{
			Enabled:  true,
			ViewType: schema.StreamViewType(input.StreamSpecification.StreamViewType),
		}
	}
	return def, nil
}

func keySchemaFromWire(elements []KeySchemaElement) (schema.KeySchema, error) {
	var keys schema.KeySchema
	for _, el := range elements {
		switch el.KeyType {
		case "HASH":
			if keys.HashKey != "" {
				return keys, apperrors.NewValidation("key schema declares more than one hash key")
			}
			keys.HashKey = el.AttributeName
		case "RANGE":
			if keys.RangeKey != "" {
				return keys, apperrors.NewValidation("key schema declares more than one range key")
			}
			keys.RangeKey = el.AttributeName
		}
	}
	if keys.HashKey == "" {
		return keys, apperrors.NewValidation("no hash key specified in schema; all tables must have exactly one hash key")
	}
	return keys, nil
}

// describe renders the catalog model back onto the wire.
func describe(def schema.TableDefinition) TableDescription {
	desc := TableDescription{
		TableName:        def.Name,
		TableStatus:      "ACTIVE",
		CreationDateTime: float64(def.CreatedAt.UnixMilli()) / 1000,
	}
	for name, t := range def.AttributeTypes {
		desc.AttributeDefinitions = append(desc.AttributeDefinitions, AttributeDefinition{
			AttributeName: name,
			AttributeType: string(t),
		})
	}
	desc.KeySchema = keySchemaToWire(def.Keys)
	for _, gsi := range def.GSIs {
		desc.GlobalSecondaryIndexes = append(desc.GlobalSecondaryIndexes, GlobalSecondaryIndexSpec{
			IndexName: gsi.Name,
			KeySchema: keySchemaToWire(gsi.Keys),
			Projection: ProjectionSpec{
				ProjectionType:   string(gsi.Projection),
				NonKeyAttributes: gsi.NonKeyAttrs,
			},
		})
	}
	if def.Stream.Enabled {
		desc.StreamSpecification = &StreamSpecification{
			StreamEnabled:  true,
			StreamViewType: string(def.Stream.ViewType),
		}
		desc.LatestStreamArn = streamArn(def.Name, def.Stream.Label)
	}
	return desc
}

func keySchemaToWire(keys schema.KeySchema) []KeySchemaElement {
	out := []KeySchemaElement{{AttributeName: keys.HashKey, KeyType: "HASH"}}
	if keys.HasRange() {
		out = append(out, KeySchemaElement{AttributeName: keys.RangeKey, KeyType: "RANGE"})
	}
	return out
}
