package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	backend "mlserve-backend/internal/api"
	"mlserve-backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statusOf reports the HTTP status a handler error maps to.
func statusOf(t *testing.T, err error) int {
	require.Error(t, err)

	rec := httptest.NewRecorder()
	backend.RestHandler(func(r *http.Request) (any, error) { return nil, err })(rec, nil)
	return rec.Code
}

func TestTrainSchemaValidate(t *testing.T) {
	schema := backend.NewTrainSchema(map[string]model.ParamType{
		"epochs":        model.IntParam,
		"learning_rate": model.FloatParam,
		"shuffle":       model.BoolParam,
		"optimizer":     model.StringParam,
	})

	valid := map[string]any{
		"epochs":        float64(10),
		"learning_rate": 0.1,
		"shuffle":       true,
		"optimizer":     "sgd",
		"records":       []any{map[string]any{"x": 1.0}},
	}

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, schema.Validate(valid))
	})

	t.Run("ExtraFieldsPassThrough", func(t *testing.T) {
		inputs := map[string]any{}
		for key, value := range valid {
			inputs[key] = value
		}
		inputs["undeclared"] = []byte{0xff}
		assert.NoError(t, schema.Validate(inputs))
	})

	t.Run("NilInputs", func(t *testing.T) {
		err := schema.Validate(nil)
		assert.Equal(t, http.StatusUnprocessableEntity, statusOf(t, err))
		assert.Contains(t, err.Error(), "missing required field: inputs")
	})

	t.Run("MissingDeclaredField", func(t *testing.T) {
		inputs := map[string]any{}
		for key, value := range valid {
			if key != "optimizer" {
				inputs[key] = value
			}
		}

		err := schema.Validate(inputs)
		assert.Equal(t, http.StatusUnprocessableEntity, statusOf(t, err))
		assert.Contains(t, err.Error(), "optimizer")
	})

	t.Run("IntegralFloatAcceptedForInt", func(t *testing.T) {
		inputs := map[string]any{}
		for key, value := range valid {
			inputs[key] = value
		}
		inputs["epochs"] = float64(25)
		assert.NoError(t, schema.Validate(inputs))
	})

	typeCases := []struct {
		name  string
		field string
		value any
	}{
		{"FractionalForInt", "epochs", 1.5},
		{"StringForInt", "epochs", "ten"},
		{"StringForFloat", "learning_rate", "fast"},
		{"NumberForBool", "shuffle", 1.0},
		{"BoolForString", "optimizer", false},
	}

	for _, tc := range typeCases {
		t.Run(tc.name, func(t *testing.T) {
			inputs := map[string]any{}
			for key, value := range valid {
				inputs[key] = value
			}
			inputs[tc.field] = tc.value

			err := schema.Validate(inputs)
			assert.Equal(t, http.StatusUnprocessableEntity, statusOf(t, err))
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestTrainSchemaNoDeclaredHyperparameters(t *testing.T) {
	schema := backend.NewTrainSchema(nil)

	assert.NoError(t, schema.Validate(map[string]any{"anything": "goes"}))
	assert.Error(t, schema.Validate(nil))
}
