package api

import (
	"fmt"
	"math"
	"net/http"
	"sort"

	"mlserve-backend/internal/model"
)

// TrainSchema is the accepted-input schema of the train endpoint. It is
// synthesized once, at service construction, from the model's declared
// hyperparameters: each declaration becomes a required field of its declared
// type. Inputs beyond the declared fields (e.g. dataset records) pass
// through unchecked.
type TrainSchema struct {
	fields map[string]model.ParamType
}

func NewTrainSchema(hyperparameters map[string]model.ParamType) *TrainSchema {
	return &TrainSchema{fields: hyperparameters}
}

// Validate rejects a train request before any local or remote execution is
// attempted.
func (s *TrainSchema) Validate(inputs map[string]any) error {
	if inputs == nil {
		return CodedErrorf(http.StatusUnprocessableEntity, "missing required field: inputs")
	}

	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value, ok := inputs[name]
		if !ok {
			return CodedErrorf(http.StatusUnprocessableEntity, "inputs is missing required hyperparameter %q", name)
		}
		if err := checkType(value, s.fields[name]); err != nil {
			return CodedErrorf(http.StatusUnprocessableEntity, "hyperparameter %q: %v", name, err)
		}
	}

	return nil
}

func checkType(value any, paramType model.ParamType) error {
	switch paramType {
	case model.IntParam:
		// JSON numbers decode as float64; accept integral values only.
		number, ok := value.(float64)
		if !ok {
			if _, isInt := value.(int); isInt {
				return nil
			}
			return fmt.Errorf("expected an integer, got %T", value)
		}
		if number != math.Trunc(number) {
			return fmt.Errorf("expected an integer, got %v", number)
		}
	case model.FloatParam:
		switch value.(type) {
		case float64, int:
		default:
			return fmt.Errorf("expected a number, got %T", value)
		}
	case model.StringParam:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected a string, got %T", value)
		}
	case model.BoolParam:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected a boolean, got %T", value)
		}
	default:
		return fmt.Errorf("unknown hyperparameter type %q", paramType)
	}

	return nil
}
