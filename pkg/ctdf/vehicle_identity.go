package ctdf

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/travigo/livetrack/pkg/util"
)

const HFPTopicFormat = "/hfp/v1/journey/ongoing/%s/%s/%s/+/+/+/+/+/+/#"

const (
	operatorIDWidth    = 4
	vehicleNumberWidth = 5
)

var identityValidator = newIdentityValidator()

func newIdentityValidator() *validator.Validate {
	v := validator.New()

	// Report fields by their wire names
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		return strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	})

	return v
}

// VehicleIdentity names a single vehicle on the feed
type VehicleIdentity struct {
	TransportMode string `json:"transport_mode" validate:"required"`
	OperatorID    string `json:"operator_id" validate:"required"`
	VehicleNumber string `json:"vehicle_number" validate:"required"`
}

// TopicPattern is the feed subscription filter matching every message for the vehicle.
// The operator is zero padded to 4 characters and the vehicle number to 5.
func (v VehicleIdentity) TopicPattern() string {
	return fmt.Sprintf(
		HFPTopicFormat,
		v.TransportMode,
		util.PadLeft(v.OperatorID, operatorIDWidth, '0'),
		util.PadLeft(v.VehicleNumber, vehicleNumberWidth, '0'),
	)
}

// StorageKey is the unpadded key used for stored positions and per vehicle queues.
// Writers and readers must both go through this.
func (v VehicleIdentity) StorageKey() string {
	return v.TransportMode + v.OperatorID + v.VehicleNumber
}

func (v VehicleIdentity) String() string {
	return fmt.Sprintf("%s/%s/%s", v.TransportMode, v.OperatorID, v.VehicleNumber)
}

// Validate returns a *ValidationError listing every missing field
func (v VehicleIdentity) Validate() error {
	err := identityValidator.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}

	validationError := &ValidationError{}
	for _, fieldError := range fieldErrors {
		validationError.Fields = append(validationError.Fields, fieldError.Field())
	}

	return validationError
}

type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing a required field: %s", strings.Join(e.Fields, ", "))
}
