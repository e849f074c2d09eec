package importer

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/noah-isme/sma-timetable/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable/pkg/errors"
)

// Constraints are the fixed inputs of a run: sessions pinned to a cell and cells an
// instructor cannot teach in.
type Constraints struct {
	Preassigned []scheduler.Placement      `json:"preassigned" validate:"dive"`
	Unavailable []scheduler.Unavailability `json:"unavailable" validate:"dive"`
}

var constraintValidator = validator.New()

// LoadConstraints reads a JSON document of the form
//
//	{"preassigned": [{"class_id": "101", "day": "MON", "slot": "10:00-11:00", "course_id": "1", "instructor_id": "11"}],
//	 "unavailable": [{"instructor_id": "12", "day": "SAT", "slot": "2:30-3:30"}]}
//
// Unknown keys are rejected so a typo does not silently drop a constraint.
func LoadConstraints(r io.Reader) (Constraints, error) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Constraints{}, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("constraints: %v", err))
	}

	var out Constraints
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return Constraints{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Constraints{}, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("constraints: %v", err))
	}
	if err := constraintValidator.Struct(out); err != nil {
		return Constraints{}, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("constraints: %v", err))
	}
	return out, nil
}
