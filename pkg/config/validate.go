package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	gvalidator "github.com/go-playground/validator/v10"
)

var validate *gvalidator.Validate

func init() {
	validate = gvalidator.New(gvalidator.WithRequiredStructEnabled())
	// report fields by their variable name
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("envconfig")
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// envName turns "Config.CIRCUIT_BREAKER.THRESHOLD" into "CIRCUIT_BREAKER_THRESHOLD"
func envName(fe gvalidator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.ReplaceAll(ns, ".", "_")
}

// validateStruct maps validator errors to ErrMissingSetting / ErrInvalidSetting, one per field
func validateStruct(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrs gvalidator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required", "required_if":
			errs = append(errs, fmt.Errorf("%w: %s", ErrMissingSetting, envName(fe)))
		default:
			errs = append(errs, fmt.Errorf("%w: %s=%v fails %q", ErrInvalidSetting, envName(fe), fe.Value(), fe.Tag()))
		}
	}
	return errors.Join(errs...)
}
