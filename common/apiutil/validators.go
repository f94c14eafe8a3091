package apiutil

import (
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/MoMannn/wanchain-example/common/errors"
	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator that reports fields by their json names and
// knows the uint256 and bytes32 tags.
func NewValidator() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for empty tags or nil funcs.
	_ = validate.RegisterValidation("uint256", isUint256)
	_ = validate.RegisterValidation("bytes32", isBytes32)

	return &Validator{validate}
}

type Validator struct {
	validator *validator.Validate
}

// RegisterValidation adds a custom tag.
func (v *Validator) RegisterValidation(tag string, fn validator.Func) error {
	return v.validator.RegisterValidation(tag, fn)
}

// Validate checks i and returns *errors.ProblemDetails listing every failed field.
func (v *Validator) Validate(i interface{}) error {
	err := v.validator.Struct(i)
	if err == nil {
		return nil
	}

	var fieldsError validator.ValidationErrors
	if !stderrors.As(err, &fieldsError) {
		return err
	}

	problem := errors.NewValidationError("Request validation failed", "")
	for _, fieldErr := range fieldsError {
		problem.AddValidationError(fieldErr.Field(), fieldMessage(fieldErr), fieldErr.Tag())
	}
	return problem
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "eth_addr":
		return "must be a 0x-prefixed 20-byte hex address"
	case "uint256":
		return "must be an unsigned 256-bit decimal integer"
	case "bytes32":
		return "must be a 32-byte hex string"
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("failed on tag '%s=%s'", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("failed on tag '%s'", fe.Tag())
	}
}

func isUint256(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if strings.HasPrefix(s, "+") {
		return false
	}
	n, ok := new(big.Int).SetString(s, 10)
	return ok && n.Sign() >= 0 && n.BitLen() <= 256
}

func isBytes32(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
