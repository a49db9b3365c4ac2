package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	v *validator.Validate

	regxVersionLabel = regexp.MustCompile(`^v[0-9]+$`)

	// Appwrite resource ids: up to 36 chars of a-z, A-Z, 0-9, period, hyphen and underscore,
	// must not start with a special char.
	regxResourceID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,35}$`)

	regxSQLIdent = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)
)

func init() {
	v = validator.New()

	mustRegisterRegexp("versionlabel", regxVersionLabel)
	mustRegisterRegexp("resourceid", regxResourceID)
	mustRegisterRegexp("sqlident", regxSQLIdent)

	err := v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	if err != nil {
		panic(fmt.Sprintf("register validation notblank: %s", err))
	}
}

func mustRegisterRegexp(tag string, regx *regexp.Regexp) {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return regx.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("register validation %s: %s", tag, err))
	}
}

// Validate validates struct i using the `validate` tags.
func Validate(i interface{}) error {
	if i == nil {
		return fmt.Errorf("data to validate is nil")
	}

	return v.Struct(i)
}

// Var validates a single value against tag, for example Var("v3", "versionlabel").
func Var(field interface{}, tag string) error {
	return v.Var(field, tag)
}
