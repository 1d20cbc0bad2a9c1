package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

// Error lists every schema constraint a document violated
type Error struct {
	Subject    string
	Violations []pipeline.Violation
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.Field == "" {
			parts = append(parts, v.Message)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s", v.Field, v.Message))
	}
	return fmt.Sprintf("invalid %s: %s", e.Subject, strings.Join(parts, "; "))
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON property names instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseRequest decodes and validates an invocation request.
// All violations are collected; none of them stops the check early.
func ParseRequest(raw []byte) (pipeline.InvocationRequest, error) {
	var req pipeline.InvocationRequest

	fields, violation := decodeObject(raw)
	if violation != nil {
		return req, &Error{Subject: "request", Violations: []pipeline.Violation{*violation}}
	}

	violations := unknownFields(fields, reflect.TypeOf(req))
	typed := map[string]bool{}
	decode := func(name string, dst any, kind string) {
		if v := decodeField(fields, name, dst, kind); v != nil {
			violations = append(violations, *v)
			typed[name] = true
		}
	}
	decode("processing_mode", &req.ProcessingMode, "string")
	decode("source_bucket", &req.SourceBucket, "string")
	decode("source_key", &req.SourceKey, "string")
	decode("destination_prefix", &req.DestinationPrefix, "string")
	decode("versions", &req.Versions, "array")

	for _, v := range structViolations(req) {
		if !typed[v.Field] {
			violations = append(violations, v)
		}
	}

	if len(violations) > 0 {
		return pipeline.InvocationRequest{}, &Error{Subject: "request", Violations: violations}
	}
	return req, nil
}

// ValidateRequest checks an already typed invocation request
func ValidateRequest(req pipeline.InvocationRequest) error {
	if violations := structViolations(req); len(violations) > 0 {
		return &Error{Subject: "request", Violations: violations}
	}
	return nil
}

// ParseConfig decodes and validates a configuration call
func ParseConfig(raw []byte) (pipeline.ConfigRequest, error) {
	var cfg pipeline.ConfigRequest

	fields, violation := decodeObject(raw)
	if violation != nil {
		return cfg, &Error{Subject: "configuration", Violations: []pipeline.Violation{*violation}}
	}

	violations := unknownFields(fields, reflect.TypeOf(cfg))
	if v := decodeField(fields, "workspace_root", &cfg.WorkspaceRoot, "string"); v != nil {
		violations = append(violations, *v)
	} else {
		violations = append(violations, structViolations(cfg)...)
	}

	if len(violations) > 0 {
		return pipeline.ConfigRequest{}, &Error{Subject: "configuration", Violations: violations}
	}
	return cfg, nil
}

// ValidateConfig checks an already typed configuration call
func ValidateConfig(cfg pipeline.ConfigRequest) error {
	if violations := structViolations(cfg); len(violations) > 0 {
		return &Error{Subject: "configuration", Violations: violations}
	}
	return nil
}

func decodeObject(raw []byte) (map[string]json.RawMessage, *pipeline.Violation) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &pipeline.Violation{
			Rule:    "object",
			Message: fmt.Sprintf("document must be a JSON object: %v", err),
		}
	}
	return fields, nil
}

func decodeField(fields map[string]json.RawMessage, name string, dst any, kind string) *pipeline.Violation {
	raw, ok := fields[name]
	if !ok {
		return nil
	}
	// null would decode into a zero value; a present field must carry its type
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) || json.Unmarshal(raw, dst) != nil {
		return &pipeline.Violation{
			Field:   name,
			Rule:    "type",
			Param:   kind,
			Message: fmt.Sprintf("must be of type %s", kind),
		}
	}
	return nil
}

func unknownFields(fields map[string]json.RawMessage, t reflect.Type) []pipeline.Violation {
	known := map[string]bool{}
	for i := 0; i < t.NumField(); i++ {
		name := strings.SplitN(t.Field(i).Tag.Get("json"), ",", 2)[0]
		known[name] = true
	}

	var names []string
	for name := range fields {
		if !known[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	violations := make([]pipeline.Violation, 0, len(names))
	for _, name := range names {
		violations = append(violations, pipeline.Violation{
			Field:   name,
			Rule:    "additionalProperties",
			Message: "is not a permitted property",
		})
	}
	return violations
}

func structViolations(s any) []pipeline.Violation {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []pipeline.Violation{{Rule: "schema", Message: err.Error()}}
	}

	violations := make([]pipeline.Violation, 0, len(verrs))
	for _, fe := range verrs {
		violations = append(violations, pipeline.Violation{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Message: describe(fe),
		})
	}
	return violations
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters long", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return fmt.Sprintf("failed %s constraint", fe.Tag())
	}
}
