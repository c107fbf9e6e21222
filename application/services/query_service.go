package services

import (
	"context"

	"pretenderdb/application/ports"
	"pretenderdb/domain/attr"
	"pretenderdb/domain/expr"
	apperrors "pretenderdb/pkg/errors"
	"pretenderdb/domain/schema"
	"pretenderdb/pkg/pagination"
)

// Query reads a key-pinned page, ordered by range key, with the filter
// applied after the limit cut.
func (e *Engine) Query(ctx context.Context, input *QueryInput) (*QueryOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}
	def, err := e.table(ctx, input.TableName)
	if err != nil {
		return nil, translate(ctx, err)
	}
	gsi, err := resolveIndex(def, input.IndexName)
	if err != nil {
		return nil, err
	}

	env := expr.NewEnv(input.ExpressionAttributeNames, input.ExpressionAttributeValues)
	keyCondition, err := expr.ParseKeyCondition(input.KeyConditionExpression, env)
	if err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}
	filter, projection, err := parseReadExpressions(env, input.FilterExpression, input.ProjectionExpression)
	if err != nil {
		return nil, err
	}
	if err := env.CheckFullyUsed(); err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}

	hashKey, rangeKey := def.Keys.HashKey, def.Keys.RangeKey
	if gsi != nil {
		hashKey, rangeKey = gsi.Keys.HashKey, gsi.Keys.RangeKey
	}
	if err := keyCondition.BindSchema(hashKey, rangeKey, def.AttributeTypes); err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}

	startKey, err := pagination.DecodeStartKey(def, gsi, input.ExclusiveStartKey)
	if err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}

	req := ports.QueryRequest{
		Table:        def,
		Index:        gsi,
		KeyCondition: keyCondition,
		Forward:      input.ScanIndexForward == nil || *input.ScanIndexForward,
		Limit:        input.Limit,
	}
	if startKey != nil {
		req.StartKey = startKey.Key
	}
	page, err := e.items.QueryPage(ctx, req)
	if err != nil {
		return nil, translate(ctx, err)
	}

	items, err := applyFilter(filter, page.Items)
	if err != nil {
		return nil, err
	}
	out := &QueryOutput{
		Count:        len(items),
		ScannedCount: page.ScannedCount,
	}
	if page.LastItem != nil {
		out.LastEvaluatedKey = pagination.BuildLastEvaluatedKey(def, gsi, page.LastItem)
	}
	out.Items = project(projection, items)
	return out, nil
}

// Scan reads a full-table or full-index page in primary-key order, with
// optional disjoint segmenting.
func (e *Engine) Scan(ctx context.Context, input *ScanInput) (*ScanOutput, error) {
	if err := e.checkInput(input); err != nil {
		return nil, err
	}
	def, err := e.table(ctx, input.TableName)
	if err != nil {
		return nil, translate(ctx, err)
	}
	gsi, err := resolveIndex(def, input.IndexName)
	if err != nil {
		return nil, err
	}
	if (input.Segment == nil) != (input.TotalSegments == nil) {
		return nil, apperrors.NewValidation("Segment and TotalSegments must be provided together")
	}
	if input.TotalSegments != nil {
		if *input.Segment < 0 || *input.Segment >= *input.TotalSegments {
			return nil, apperrors.NewValidation("Segment must be between 0 and TotalSegments-1")
		}
	}

	env := expr.NewEnv(input.ExpressionAttributeNames, input.ExpressionAttributeValues)
	filter, projection, err := parseReadExpressions(env, input.FilterExpression, input.ProjectionExpression)
	if err != nil {
		return nil, err
	}
	if err := env.CheckFullyUsed(); err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}

	startKey, err := pagination.DecodeStartKey(def, gsi, input.ExclusiveStartKey)
	if err != nil {
		return nil, apperrors.NewValidation("%s", err)
	}

	req := ports.QueryRequest{
		Table:         def,
		Index:         gsi,
		Forward:       true,
		Limit:         input.Limit,
		Segment:       input.Segment,
		TotalSegments: input.TotalSegments,
	}
	if startKey != nil {
		req.StartKey = startKey.Key
	}
	page, err := e.items.QueryPage(ctx, req)
	if err != nil {
		return nil, translate(ctx, err)
	}

	items, err := applyFilter(filter, page.Items)
	if err != nil {
		return nil, err
	}
	out := &ScanOutput{
		Count:        len(items),
		ScannedCount: page.ScannedCount,
	}
	if page.LastItem != nil {
		out.LastEvaluatedKey = pagination.BuildLastEvaluatedKey(def, gsi, page.LastItem)
	}
	out.Items = project(projection, items)
	return out, nil
}

// resolveIndex finds the named GSI, or nil for primary reads.
func resolveIndex(def schema.TableDefinition, indexName string) (*schema.GlobalSecondaryIndex, error) {
	if indexName == "" {
		return nil, nil
	}
	gsi, ok := def.GSI(indexName)
	if !ok {
		return nil, apperrors.NewResourceNotFound(def.Name + "/index/" + indexName)
	}
	return &gsi, nil
}

// parseReadExpressions compiles the optional filter and projection of a
// read against the shared environment.
func parseReadExpressions(env *expr.Env, filterText, projectionText string) (expr.Condition, *expr.Projection, error) {
	var filter expr.Condition
	var projection *expr.Projection
	var err error
	if filterText != "" {
		if filter, err = expr.ParseCondition(filterText, env); err != nil {
			return nil, nil, apperrors.NewValidation("%s", err)
		}
	}
	if projectionText != "" {
		if projection, err = expr.ParseProjection(projectionText, env); err != nil {
			return nil, nil, apperrors.NewValidation("%s", err)
		}
	}
	return filter, projection, nil
}

// applyFilter keeps the candidates the filter accepts. It runs after the
// limit cut, so ScannedCount is unaffected.
func applyFilter(filter expr.Condition, candidates []attr.Item) ([]attr.Item, error) {
	if filter == nil {
		return candidates, nil
	}
	var kept []attr.Item
	for _, item := range candidates {
		ok, err := expr.Evaluate(filter, item)
		if err != nil {
			return nil, apperrors.NewValidation("%s", err)
		}
		if ok {
			kept = append(kept, item)
		}
	}
	return kept, nil
}

// project applies an optional projection to every result.
func project(projection *expr.Projection, items []attr.Item) []attr.Item {
	if items == nil {
		items = []attr.Item{}
	}
	if projection == nil {
		return items
	}
	out := make([]attr.Item, len(items))
	for i, item := range items {
		out[i] = projection.Apply(item)
	}
	return out
}
