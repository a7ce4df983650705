package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"solarscan/internal/types"
)

// Validator wraps go-playground/validator with the domain tags
// building_type and heatmap_metric. Field names in reported errors follow
// the json tags so they match what the client sent.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// ValidationError describes one failed field rule.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// tagCodes maps a failed tag to the error code reported for the request.
// The first failing field decides.
var tagCodes = map[string]types.ErrorCode{
	"required":       types.ErrCodeValidationMissingField,
	"email":          types.ErrCodeValidationInvalidEmail,
	"building_type":  types.ErrCodeValidationBuildingType,
	"heatmap_metric": types.ErrCodeValidationInvalidMetric,
}

// NewValidator creates a Validator and registers the custom tags.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	mustRegister(v, "building_type", func(fl validator.FieldLevel) bool {
		return types.BuildingType(fl.Field().String()).IsValid()
	})
	mustRegister(v, "heatmap_metric", func(fl validator.FieldLevel) bool {
		return types.HeatmapMetric(fl.Field().String()).IsValid()
	})

	return &Validator{validate: v, logger: logger}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("core: register %q validation: %v", tag, err))
	}
}

// ValidateStruct checks s against its validate tags. A failure is returned
// as a *types.AppError whose details list every failed field.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// InvalidValidationError: a programming mistake, not bad input.
		v.logger.Error("struct validation misuse", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	fields := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, ValidationError{
			Field:   fe.Field(),
			Code:    fe.Tag(),
			Message: fieldMessage(fe),
		})
	}

	code, ok := tagCodes[fieldErrs[0].Tag()]
	if !ok {
		code = types.ErrCodeValidationFailed
	}
	return types.NewAppErrorWithDetails(code, fields[0].Message, nil, map[string]any{"fields": fields})
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "building_type":
		return fmt.Sprintf("%s must be one of %v", fe.Field(), types.BuildingTypes)
	case "heatmap_metric":
		return fmt.Sprintf("%s must be one of %v", fe.Field(), types.HeatmapMetrics)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed the %s rule", fe.Field(), fe.Tag())
}
