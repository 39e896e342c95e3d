package handler

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator"

	"github.com/Shivanand-hulikatti/membership-registry/internal/apperr"
)

// newValidator returns a validator that reports JSON field names and knows
// the "identity" tag.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("identity", validateIdentity)
	return v
}

// validateIdentity rejects blank identities and ones containing whitespace
// or control characters.
func validateIdentity(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if strings.TrimSpace(s) == "" {
		return false
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

func (h *Handler) validateStruct(ctx context.Context, s any) error {
	err := h.validate.StructCtx(ctx, s)
	if err == nil {
		return nil
	}
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) || len(vErrs) == 0 {
		return apperr.Wrap(apperr.KindInvalidRequest, "invalid request", err)
	}

	fe := vErrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "field is required"
	case "max":
		msg = "field exceeds maximum length " + fe.Param()
	case "oneof":
		msg = "field must be one of: " + fe.Param()
	case "identity":
		msg = "field is not a valid identity"
	default:
		msg = "field is invalid"
	}
	return apperr.WithMetadata(apperr.KindInvalidRequest,
		fe.Field()+": "+msg,
		map[string]string{"field": fe.Field(), "rule": fe.Tag()})
}
