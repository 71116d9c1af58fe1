// Package schema validates decoded dataset JSON against the fixed record
// shapes in package site.
//
// Decoding is strict: unknown keys and type mismatches are rejected, struct
// tags are checked with go-playground/validator, and record ids must be
// unique within a collection.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/danmuck/clubsite/internal/site"
	"github.com/go-playground/validator/v10"
)

// ValidationError names the offending record, field and constraint.
type ValidationError struct {
	Dataset    string
	Index      int
	Field      string
	Constraint string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Dataset)
	if e.Index >= 0 {
		fmt.Fprintf(&b, "[%d]", e.Index)
	}
	if e.Field != "" {
		b.WriteString(".")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Constraint)
	return b.String()
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Members validates a members dataset.
func Members(data []byte) ([]site.Member, error) {
	return Decode[site.Member]("members", data)
}

// Events validates an events dataset.
func Events(data []byte) ([]site.ClubEvent, error) {
	return Decode[site.ClubEvent]("events", data)
}

// Timeline validates a timeline dataset.
func Timeline(data []byte) ([]site.TimelineItem, error) {
	return Decode[site.TimelineItem]("timeline", data)
}

// Decode strictly decodes a JSON array of T and validates every element.
// data must already be well-formed JSON; syntax errors are the caller's
// concern.
func Decode[T site.Identifiable](dataset string, data []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &ValidationError{Dataset: dataset, Index: -1, Constraint: "must be an array"}
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, &ValidationError{Dataset: dataset, Index: -1, Constraint: err.Error()}
	}

	out := make([]T, 0, len(raw))
	seen := make(map[string]int, len(raw))
	for i, elem := range raw {
		item, err := decodeStrict[T](elem)
		if err != nil {
			return nil, decodeFailure(dataset, i, err)
		}
		if err := validate.Struct(item); err != nil {
			return nil, constraintFailure(dataset, i, err)
		}
		id := item.RecordID()
		if first, dup := seen[id]; dup {
			return nil, &ValidationError{
				Dataset:    dataset,
				Index:      i,
				Field:      "id",
				Constraint: fmt.Sprintf("must be unique (duplicate of index %d)", first),
			}
		}
		seen[id] = i
		out = append(out, item)
	}
	return out, nil
}

func decodeStrict[T any](elem json.RawMessage) (T, error) {
	var item T
	trimmed := bytes.TrimSpace(elem)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return item, errNotObject
	}
	if err := checkShape(trimmed, reflect.TypeOf(item), ""); err != nil {
		return item, err
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&item); err != nil {
		return item, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return item, errTrailingData
	}
	return item, nil
}

var (
	errNotObject    = errors.New("must be an object")
	errTrailingData = errors.New("unexpected trailing data")
)

// shapeError is a key or null problem found before struct decoding.
type shapeError struct {
	field      string
	constraint string
}

func (e *shapeError) Error() string {
	return e.field + ": " + e.constraint
}

// checkShape walks raw alongside t. Object keys must match a json tag
// exactly, case included, and no field may be an explicit null. Type
// mismatches are left to the decoder.
func checkShape(raw json.RawMessage, t reflect.Type, field string) error {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return &shapeError{field: field, constraint: "must not be null"}
	}
	if len(trimmed) == 0 {
		return nil
	}

	switch t.Kind() {
	case reflect.Struct:
		if trimmed[0] != '{' {
			return nil
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil
		}
		fields := jsonFields(t)
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			path := joinField(field, k)
			ft, ok := fields[k]
			if !ok {
				return &shapeError{field: path, constraint: "unknown field"}
			}
			if err := checkShape(obj[k], ft, path); err != nil {
				return err
			}
		}
	case reflect.Slice:
		if trimmed[0] != '[' {
			return nil
		}
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil
		}
		for i, elem := range items {
			if err := checkShape(elem, t.Elem(), fmt.Sprintf("%s[%d]", field, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func jsonFields(t reflect.Type) map[string]reflect.Type {
	fields := make(map[string]reflect.Type, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = f.Name
		}
		fields[name] = f.Type
	}
	return fields
}

func joinField(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func decodeFailure(dataset string, index int, err error) error {
	var typeErr *json.UnmarshalTypeError
	var shapeErr *shapeError
	switch {
	case errors.As(err, &shapeErr):
		return &ValidationError{
			Dataset:    dataset,
			Index:      index,
			Field:      shapeErr.field,
			Constraint: shapeErr.constraint,
		}
	case errors.As(err, &typeErr):
		return &ValidationError{
			Dataset:    dataset,
			Index:      index,
			Field:      typeErr.Field,
			Constraint: fmt.Sprintf("must be %s, got %s", jsonKind(typeErr.Type), typeErr.Value),
		}
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return &ValidationError{
			Dataset:    dataset,
			Index:      index,
			Field:      field,
			Constraint: "unknown field",
		}
	default:
		return &ValidationError{Dataset: dataset, Index: index, Constraint: err.Error()}
	}
}

func constraintFailure(dataset string, index int, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Dataset: dataset, Index: index, Constraint: err.Error()}
	}
	fe := fieldErrs[0]
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	return &ValidationError{
		Dataset:    dataset,
		Index:      index,
		Field:      field,
		Constraint: describe(fe),
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		if fe.Kind() == reflect.String {
			return "must be a non-empty string"
		}
		return "is required"
	case "url":
		return "must be a well-formed URL"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", strings.Join(strings.Fields(fe.Param()), ", "))
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %q constraint", fe.Tag())
	}
}

func jsonKind(t reflect.Type) string {
	if t == nil {
		return "a value"
	}
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Slice, reflect.Array:
		return "an array"
	case reflect.Struct, reflect.Map, reflect.Pointer:
		return "an object"
	default:
		return "a " + t.Kind().String()
	}
}
