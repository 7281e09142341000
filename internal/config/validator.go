// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `internal/config/loader.go` calls `validateStruct` immediately after it
// unmarshals the merged Koanf tree into a `Config` instance.  Any tag
// mismatch or validation error aborts startup, ensuring the binary never
// runs with partial, malformed, or missing configuration.
//
// Field names in errors are the dotted koanf keys (`relay.mail_to`), so the
// operator can map a failure straight to YAML or an env override.
//
// Custom rules
// ------------
//   • sql_ident           an unquoted MySQL identifier, used for the store table.
//   • required_with_host  relay.smtp.from must be set once relay.smtp.host is.

package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

//
// validator instance (package-level singleton)
//

var (
	sqlIdentRx = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)
	v          = newValidator()
)

func newValidator() *validator.Validate {
	val := validator.New()
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = val.RegisterValidation("sql_ident", func(fl validator.FieldLevel) bool {
		return sqlIdentRx.MatchString(fl.Field().String())
	})
	val.RegisterStructValidation(smtpRules, SMTP{})
	return val
}

// smtpRules requires a sender address whenever a server is configured.
func smtpRules(sl validator.StructLevel) {
	s := sl.Current().Interface().(SMTP)
	if s.Host != "" && s.From == "" {
		sl.ReportError(s.From, "from", "From", "required_with_host", "")
	}
}

//
// public API
//

// validateStruct returns a readable error listing every failed rule, or nil.
func validateStruct(c *Config) error {
	err := v.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace is "Config.relay.mail_to"; drop the root type.
		_, key, _ := strings.Cut(fe.Namespace(), ".")
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", key, fe.Tag()))
	}
	return fmt.Errorf("config invalid: %s", strings.Join(msgs, "; "))
}
