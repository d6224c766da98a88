package validation

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"slices"
	"strconv"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/sitegate/gatekeeper/internal/config"
	"github.com/sitegate/gatekeeper/internal/core/domain"
	"github.com/sitegate/gatekeeper/internal/core/ports"
)

const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
	TypeEmail   = "email"
)

type fieldRule struct {
	pattern *regexp.Regexp
	def     config.FieldDef
}

// SchemaValidator checks JSON bodies field by field using gjson paths, so
// the body is never unmarshalled into a map.
type SchemaValidator struct {
	name   string
	fields []fieldRule
}

var _ ports.SchemaValidator = (*SchemaValidator)(nil)

func NewSchemaValidator(name string, def config.SchemaDef) (*SchemaValidator, error) {
	sv := &SchemaValidator{name: name, fields: make([]fieldRule, 0, len(def.Fields))}
	for _, f := range def.Fields {
		if f.Path == "" {
			return nil, fmt.Errorf("schema %s: field path is required", name)
		}
		switch f.Type {
		case "", TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeArray, TypeObject, TypeEmail:
		default:
			return nil, fmt.Errorf("schema %s: field %s has unknown type %q", name, f.Path, f.Type)
		}

		rule := fieldRule{def: f}
		if f.Pattern != "" {
			re, err := regexp.Compile(f.Pattern)
			if err != nil {
				return nil, fmt.Errorf("schema %s: field %s pattern: %w", name, f.Path, err)
			}
			rule.pattern = re
		}
		sv.fields = append(sv.fields, rule)
	}
	return sv, nil
}

// CompileSchemas builds a validator for every named schema in the config.
func CompileSchemas(defs map[string]config.SchemaDef) (map[string]ports.SchemaValidator, error) {
	out := make(map[string]ports.SchemaValidator, len(defs))
	for name, def := range defs {
		sv, err := NewSchemaValidator(name, def)
		if err != nil {
			return nil, err
		}
		out[name] = sv
	}
	return out, nil
}

func (sv *SchemaValidator) Name() string {
	return sv.name
}

// Validate reports every failing field. An empty body is treated as an
// empty object so that only required fields complain about it.
func (sv *SchemaValidator) Validate(_ context.Context, body []byte) []domain.FieldError {
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	if !gjson.ValidBytes(body) {
		return []domain.FieldError{{Field: "body", Message: "must be valid JSON"}}
	}

	var errs []domain.FieldError
	for i := range sv.fields {
		if msg := sv.fields[i].check(gjson.GetBytes(body, sv.fields[i].def.Path)); msg != "" {
			errs = append(errs, domain.FieldError{Field: sv.fields[i].def.Path, Message: msg})
		}
	}
	return errs
}

func (fr *fieldRule) check(v gjson.Result) string {
	def := fr.def
	if !v.Exists() || v.Type == gjson.Null {
		if def.Required {
			return "is required"
		}
		return ""
	}

	switch def.Type {
	case TypeString, TypeEmail:
		if v.Type != gjson.String {
			return "must be a string"
		}
	case TypeNumber:
		if v.Type != gjson.Number {
			return "must be a number"
		}
	case TypeInteger:
		if v.Type != gjson.Number {
			return "must be an integer"
		}
		if _, err := strconv.ParseInt(v.Raw, 10, 64); err != nil {
			return "must be an integer"
		}
	case TypeBoolean:
		if v.Type != gjson.True && v.Type != gjson.False {
			return "must be a boolean"
		}
	case TypeArray:
		if !v.IsArray() {
			return "must be an array"
		}
	case TypeObject:
		if !v.IsObject() {
			return "must be an object"
		}
	}

	if def.Type == TypeArray {
		n := len(v.Array())
		if def.MinLength > 0 && n < def.MinLength {
			return fmt.Sprintf("must contain at least %d items", def.MinLength)
		}
		if def.MaxLength > 0 && n > def.MaxLength {
			return fmt.Sprintf("must contain at most %d items", def.MaxLength)
		}
		return ""
	}

	if v.Type != gjson.String {
		return ""
	}

	s := v.String()
	n := utf8.RuneCountInString(s)
	if def.MinLength > 0 && n < def.MinLength {
		return fmt.Sprintf("must be at least %d characters", def.MinLength)
	}
	if def.MaxLength > 0 && n > def.MaxLength {
		return fmt.Sprintf("must be at most %d characters", def.MaxLength)
	}
	if def.Type == TypeEmail {
		if addr, err := mail.ParseAddress(s); err != nil || addr.Address != s {
			return "must be a valid email address"
		}
	}
	if fr.pattern != nil && !fr.pattern.MatchString(s) {
		return "has an invalid format"
	}
	if len(def.Enum) > 0 && !slices.Contains(def.Enum, s) {
		return "must be one of the allowed values"
	}
	return ""
}
