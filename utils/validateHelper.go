package utils

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs validator tags on a request payload. Handlers call this
// after binding so validation errors surface as one 400 with a field message.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// FirstValidationError flattens a validator error into a short human string.
func FirstValidationError(err error) string {
	if err == nil {
		return ""
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		return fe.Field() + " failed on " + fe.Tag()
	}
	return err.Error()
}
