package utils

import (
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Reuse the same tags gin binding reads, so inputs validate identically
	// whether they arrive over HTTP or are passed to a workflow directly.
	v.SetTagName("binding")
	return v
}

// ValidateStruct runs tag-level validation on an input struct.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}
