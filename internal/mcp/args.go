package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func argValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// report argument names as the client sent them
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// decodeArgs unmarshals tool arguments into dst and validates its struct tags.
func decodeArgs(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := argValidator().Struct(dst); err != nil {
		return describeValidation(err)
	}
	return nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid arguments: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, name+" is required")
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", name, fe.Param()))
		case "gte", "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", name, fe.Param()))
		case "lte", "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s", name, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", name, fe.Tag()))
		}
	}
	return fmt.Errorf("invalid arguments: %s", strings.Join(msgs, "; "))
}

func ptrFloat(v float64) *float64 { return &v }
