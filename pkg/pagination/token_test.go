package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pretenderdb/domain/attr"
	"pretenderdb/domain/schema"
)

func tableDef() schema.TableDefinition {
	return schema.TableDefinition{
		Name: "t",
		Keys: schema.KeySchema{HashKey: "pk", RangeKey: "sk"},
		AttributeTypes: map[string]attr.Type{
			"pk":  attr.TypeString,
			"sk":  attr.TypeNumber,
			"gpk": attr.TypeString,
		},
		GSIs: []schema.GlobalSecondaryIndex{
			{Name: "ByG", Keys: schema.KeySchema{HashKey: "gpk"}, Projection: schema.ProjectionAll},
		},
	}
}

func TestRoundTripTableRead(t *testing.T) {
	def := tableDef()
	item := attr.Item{"pk": attr.String("a"), "sk": attr.Number("1"), "other": attr.Bool(true)}

	token := BuildLastEvaluatedKey(def, nil, item)
	assert.Len(t, token, 2)

	sk, err := DecodeStartKey(def, nil, token)
	require.NoError(t, err)
	assert.True(t, sk.Key.Equal(attr.Item{"pk": attr.String("a"), "sk": attr.Number("1")}))
}

func TestRoundTripGSIRead(t *testing.T) {
	def := tableDef()
	gsi := def.GSIs[0]
	item := attr.Item{"pk": attr.String("a"), "sk": attr.Number("1"), "gpk": attr.String("g")}

	token := BuildLastEvaluatedKey(def, &gsi, item)
	assert.Len(t, token, 3)

	sk, err := DecodeStartKey(def, &gsi, token)
	require.NoError(t, err)
	assert.Contains(t, sk.Key, "gpk")
}

func TestDecodeValidation(t *testing.T) {
	def := tableDef()

	sk, err := DecodeStartKey(def, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, sk, "empty start key means start from the beginning")

	_, err = DecodeStartKey(def, nil, attr.Item{"pk": attr.String("a")})
	assert.Error(t, err, "missing range key")

	_, err = DecodeStartKey(def, nil, attr.Item{"pk": attr.String("a"), "sk": attr.String("1")})
	assert.Error(t, err, "wrong range key type")

	_, err = DecodeStartKey(def, nil, attr.Item{"pk": attr.String("a"), "sk": attr.Number("1"), "extra": attr.Bool(true)})
	assert.Error(t, err, "unexpected attribute")
}
