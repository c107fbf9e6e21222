package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"pretenderdb/application/services"
	apperrors "pretenderdb/pkg/errors"
)

// handler decodes protocol requests, invokes the engine and encodes the
// protocol responses.
type handler struct {
	engine *services.Engine
	logger *zap.Logger
}

// operation adapts one typed engine method to the wire.
type operation func(ctx context.Context, body []byte) (interface{}, error)

// operations maps operation names onto engine calls.
func (h *handler) operations() map[string]operation {
	e := h.engine
	return map[string]operation{
		"CreateTable":        typed(e.CreateTable),
		"DeleteTable":        typed(e.DeleteTable),
		"DescribeTable":      typed(e.DescribeTable),
		"ListTables":         typed(e.ListTables),
		"UpdateTable":        typed(e.UpdateTable),
		"UpdateTimeToLive":   typed(e.UpdateTimeToLive),
		"DescribeTimeToLive": typed(e.DescribeTimeToLive),
		"PutItem":            typed(e.PutItem),
		"GetItem":            typed(e.GetItem),
		"UpdateItem":         typed(e.UpdateItem),
		"DeleteItem":         typed(e.DeleteItem),
		"Query":              typed(e.Query),
		"Scan":               typed(e.Scan),
		"BatchGetItem":       typed(e.BatchGetItem),
		"BatchWriteItem":     typed(e.BatchWriteItem),
		"TransactWriteItems": typed(e.TransactWriteItems),
		"TransactGetItems":   typed(e.TransactGetItems),
		"ListStreams":        typed(e.ListStreams),
		"DescribeStream":     typed(e.DescribeStream),
		"GetShardIterator":   typed(e.GetShardIterator),
		"GetRecords":         typed(e.GetRecords),
	}
}

// typed wraps a strongly-typed engine method as a wire operation.
func typed[I any, O any](fn func(context.Context, *I) (*O, error)) operation {
	return func(ctx context.Context, body []byte) (interface{}, error) {
		input := new(I)
		if len(body) > 0 {
			if err := json.Unmarshal(body, input); err != nil {
				return nil, apperrors.NewValidation("invalid request body: %s", err)
			}
		}
		return fn(ctx, input)
	}
}

func (h *handler) serve(w http.ResponseWriter, r *http.Request, operationName string) {
	op, ok := h.operations()[operationName]
	if !ok {
		h.writeError(w, apperrors.NewValidation("unknown operation %q", operationName))
		return
	}

	body := make([]byte, 0)
	if r.Body != nil {
		decoded := json.RawMessage{}
		if err := json.NewDecoder(r.Body).Decode(&decoded); err != nil && !errors.Is(err, io.EOF) {
			h.writeError(w, apperrors.NewValidation("invalid request body: %s", err))
			return
		}
		body = decoded
	}

	result, err := op(r.Context(), body)
	if err != nil {
		h.writeError(w, apperrors.AsOperationError(err))
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// errorBody is the protocol error shape.
type errorBody struct {
	Type                string                         `json:"__type"`
	Message             string                         `json:"message"`
	CancellationReasons []apperrors.CancellationReason `json:"CancellationReasons,omitempty"`
}

func (h *handler) writeError(w http.ResponseWriter, opErr *apperrors.OperationError) {
	if opErr.Code == apperrors.CodeInternal {
		h.logger.Error("internal failure", zap.Error(opErr))
	}
	h.writeJSON(w, opErr.HTTPStatus(), errorBody{
		Type:                opErr.WireType(),
		Message:             opErr.Message,
		CancellationReasons: opErr.Reasons,
	})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/x-amz-json-1.0")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
