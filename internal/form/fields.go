// internal/form/fields.go
//
// Contact form subsystem: field catalogue and value record.
//
// Context
//   The contact form has a fixed set of string inputs.  Empty string means
//   unset.  The hidden honeypot travels on the wire as “website” so the relay
//   and the browser markup agree on one name.
//
//   Fields lists the inputs in declaration order.  That order decides which
//   field receives focus when a submit attempt fails validation.
//
//------------------------------------------------------------------------------

package form

import "errors"

// Field names one input of the contact form.
type Field string

const (
	FieldName     Field = "name"
	FieldEmail    Field = "email"
	FieldPhone    Field = "phone"
	FieldCompany  Field = "company"
	FieldService  Field = "service"
	FieldProject  Field = "project"
	FieldMessage  Field = "message"
	FieldHoneypot Field = "website" // hidden from humans
)

// Fields is the declaration order of every input.
var Fields = []Field{
	FieldName,
	FieldEmail,
	FieldPhone,
	FieldCompany,
	FieldService,
	FieldProject,
	FieldMessage,
	FieldHoneypot,
}

// ErrUnknownField is returned when a caller names a field the form lacks.
var ErrUnknownField = errors.New("form: unknown field")

// Valid reports whether f is one of the declared fields.
func (f Field) Valid() bool {
	for _, d := range Fields {
		if d == f {
			return true
		}
	}
	return false
}

// Values is the full set of form inputs.  The JSON shape is the request body
// posted to the relay.
type Values struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Company  string `json:"company"`
	Service  string `json:"service"`
	Project  string `json:"project"`
	Message  string `json:"message"`
	Honeypot string `json:"website"`
}

// Get returns the value of f, or "" for an unknown field.
func (v Values) Get(f Field) string {
	if p := v.ptr(f); p != nil {
		return *p
	}
	return ""
}

// Set stores s under f.  It returns ErrUnknownField for an undeclared field.
func (v *Values) Set(f Field, s string) error {
	p := v.ptr(f)
	if p == nil {
		return ErrUnknownField
	}
	*p = s
	return nil
}

func (v *Values) ptr(f Field) *string {
	switch f {
	case FieldName:
		return &v.Name
	case FieldEmail:
		return &v.Email
	case FieldPhone:
		return &v.Phone
	case FieldCompany:
		return &v.Company
	case FieldService:
		return &v.Service
	case FieldProject:
		return &v.Project
	case FieldMessage:
		return &v.Message
	case FieldHoneypot:
		return &v.Honeypot
	}
	return nil
}

// Trapped reports whether the honeypot input carries a value.
func (v Values) Trapped() bool { return v.Honeypot != "" }

// Errors maps a field to its current validation message.  A missing key or an
// empty message means the field is valid.
type Errors map[Field]string

// First returns the first failing field in declaration order.
func (e Errors) First() (Field, string, bool) {
	for _, f := range Fields {
		if msg := e[f]; msg != "" {
			return f, msg, true
		}
	}
	return "", "", false
}

// Any reports whether at least one message is non-empty.
func (e Errors) Any() bool {
	_, _, ok := e.First()
	return ok
}

func (e Errors) clone() Errors {
	out := make(Errors, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}
