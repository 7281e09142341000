// internal/form/validate.go
//
// Contact form subsystem: field validation.
//
// Context
//   Validate maps (field, raw value) to a user-facing message, or "" when the
//   value is acceptable.  It is pure, so the browser-side store, the submit
//   controller, and the relay all call the same function and agree on every
//   message byte for byte.
//
// Workflow
//   •  Each rule is a custom go-playground/validator tag registered once.
//   •  rules maps a field to its tag and message.  Fields without a rule
//      (company, service, project, website) are always valid.
//   •  ValidateAll runs Validate over every declared field and keeps only the
//      failures.  Submit uses it to force a full check regardless of touched
//      state.
//
// Style
//   Two-space sentence spacing, Oxford comma, concise inline notes.
//
//------------------------------------------------------------------------------

package form

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// User-facing messages.  Tests and the relay compare these verbatim.
const (
	MsgName    = "Please enter your full name."
	MsgEmail   = "Enter a valid email address."
	MsgPhone   = "Enter a valid phone."
	MsgMessage = "Please add at least 10 characters."
)

// space is the browser's whitespace class: ASCII controls, every Zs
// separator, the line and paragraph separators, and the BOM.  RE2's \s only
// covers the ASCII part.
const space = `\t\n\v\f\r\p{Zs}\x{2028}\x{2029}\x{feff}`

var (
	emailRx = regexp.MustCompile(`(?i)^[^@` + space + `]+@[^@` + space + `]+\.[^@` + space + `]{2,}$`)
	phoneRx = regexp.MustCompile(`^[0-9+\-()` + space + `]{7,}$`)
)

// isSpace matches the same set as space.  unicode.IsSpace differs on U+0085
// and U+FEFF.
func isSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', '\u2028', '\u2029', '\ufeff':
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

type rule struct {
	tag string
	msg string
}

var rules = map[Field]rule{
	FieldName:    {"fullname", MsgName},
	FieldEmail:   {"contact_email", MsgEmail},
	FieldPhone:   {"contact_phone", MsgPhone},
	FieldMessage: {"contact_message", MsgMessage},
}

// fieldValidator is the package-level validator singleton.
var fieldValidator = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	_ = val.RegisterValidation("fullname", minTrimmed(2))
	_ = val.RegisterValidation("contact_message", minTrimmed(10))
	_ = val.RegisterValidation("contact_email", func(fl validator.FieldLevel) bool {
		return emailRx.MatchString(fl.Field().String())
	})
	_ = val.RegisterValidation("contact_phone", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || phoneRx.MatchString(s) // optional
	})
	return val
}

// minTrimmed accepts strings whose trimmed length is at least n runes.
func minTrimmed(n int) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return utf8.RuneCountInString(strings.TrimFunc(fl.Field().String(), isSpace)) >= n
	}
}

// Validate returns the error message for value in field f, or "" when valid.
func Validate(f Field, value string) string {
	r, ok := rules[f]
	if !ok {
		return ""
	}
	if err := fieldValidator.Var(value, r.tag); err != nil {
		return r.msg
	}
	return ""
}

// ValidateAll checks every declared field and returns only the failures.
func ValidateAll(vals Values) Errors {
	out := make(Errors)
	for _, f := range Fields {
		if msg := Validate(f, vals.Get(f)); msg != "" {
			out[f] = msg
		}
	}
	return out
}
