package validation

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// Error messages written by BindAndValidate.
const (
	MessageInvalidJSON   = "Invalid JSON body"
	MessageInvalidFields = "Invalid request fields"
)

// BindAndValidate binds the JSON body into out and runs v over it. On failure
// it writes a 400 and returns the error so the handler can stop. Type
// mismatches such as a string or fractional quantity fail at binding.
func BindAndValidate(c *gin.Context, out any, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": MessageInvalidJSON})
		return err
	}

	if err := v.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  MessageInvalidFields,
			"fields": fieldErrors(err),
		})
		return err
	}
	return nil
}

// fieldErrors maps each failing JSON field to the rule it broke.
func fieldErrors(err error) map[string]string {
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return map[string]string{"_": err.Error()}
	}
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
