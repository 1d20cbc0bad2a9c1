package validation

import (
	"errors"
	"testing"

	"github.com/tendant/simple-image-pipeline/pkg/pipeline"
)

func violationFields(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *validation.Error, got %T: %v", err, err)
	}
	if len(verr.Violations) == 0 {
		t.Fatalf("expected at least one violation")
	}
	out := map[string]string{}
	for _, v := range verr.Violations {
		out[v.Field] = v.Rule
	}
	return out
}

func TestParseRequestAcceptsValidRequests(t *testing.T) {
	cases := map[string]string{
		"resize with versions":  `{"processing_mode":"resize","source_bucket":"in","source_key":"uploads/photo.jpg","destination_prefix":"out/2024","versions":[{"suffix":"w800","width":800},{"suffix":"w400","width":400}]}`,
		"crop without versions": `{"processing_mode":"crop","source_bucket":"in","source_key":"photo.jpg","destination_prefix":"out"}`,
		"empty versions":        `{"processing_mode":"crop","source_bucket":"in","source_key":"photo.jpg","destination_prefix":"out","versions":[]}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			req, err := ParseRequest([]byte(raw))
			if err != nil {
				t.Fatalf("expected request to be accepted, got %v", err)
			}
			if !req.ProcessingMode.Valid() {
				t.Fatalf("unexpected mode %q", req.ProcessingMode)
			}
		})
	}
}

func TestParseRequestKeepsVersionsOpaque(t *testing.T) {
	raw := `{"processing_mode":"resize","source_bucket":"b","source_key":"k.png","destination_prefix":"p","versions":[{"anything":true},42,"x"]}`
	req, err := ParseRequest([]byte(raw))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if len(req.Versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(req.Versions))
	}
	if string(req.Versions[1]) != "42" {
		t.Fatalf("expected version to pass through unchanged, got %s", req.Versions[1])
	}
}

func TestParseRequestReportsEveryViolation(t *testing.T) {
	raw := `{"processing_mode":"sepia","source_key":"","versions":{"not":"array"},"extra":1,"another":"x"}`

	_, err := ParseRequest([]byte(raw))
	got := violationFields(t, err)

	want := map[string]string{
		"processing_mode":    "oneof",
		"source_bucket":      "required",
		"source_key":         "required",
		"destination_prefix": "required",
		"versions":           "type",
		"extra":              "additionalProperties",
		"another":            "additionalProperties",
	}
	for field, rule := range want {
		if got[field] != rule {
			t.Errorf("field %s: expected rule %q, got %q", field, rule, got[field])
		}
	}
	if len(got) != len(want) {
		t.Errorf("expected %d violations, got %v", len(want), got)
	}
}

func TestParseRequestRejectsMissingRequiredFields(t *testing.T) {
	base := map[string]string{
		"processing_mode":    `"resize"`,
		"source_bucket":      `"b"`,
		"source_key":         `"k.jpg"`,
		"destination_prefix": `"p"`,
	}
	for missing := range base {
		t.Run(missing, func(t *testing.T) {
			raw := "{"
			first := true
			for k, v := range base {
				if k == missing {
					continue
				}
				if !first {
					raw += ","
				}
				raw += `"` + k + `":` + v
				first = false
			}
			raw += "}"

			_, err := ParseRequest([]byte(raw))
			got := violationFields(t, err)
			if got[missing] != "required" {
				t.Fatalf("expected %s to be reported as required, got %v", missing, got)
			}
		})
	}
}

func TestParseRequestRejectsNonObject(t *testing.T) {
	for _, raw := range []string{`[]`, `"text"`, `{broken`} {
		_, err := ParseRequest([]byte(raw))
		got := violationFields(t, err)
		if got[""] != "object" {
			t.Errorf("%s: expected object violation, got %v", raw, got)
		}
	}
}

func TestParseRequestWrongFieldTypeReportedOnce(t *testing.T) {
	raw := `{"processing_mode":5,"source_bucket":"b","source_key":"k","destination_prefix":"p"}`
	_, err := ParseRequest([]byte(raw))

	var verr *Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if len(verr.Violations) != 1 || verr.Violations[0].Rule != "type" {
		t.Fatalf("expected a single type violation, got %+v", verr.Violations)
	}
}

func TestParseRequestRejectsNullFields(t *testing.T) {
	cases := map[string]string{
		"versions":        `{"processing_mode":"crop","source_bucket":"in","source_key":"photo.jpg","destination_prefix":"out","versions":null}`,
		"source_bucket":   `{"processing_mode":"crop","source_bucket":null,"source_key":"photo.jpg","destination_prefix":"out"}`,
		"processing_mode": `{"processing_mode":null,"source_bucket":"in","source_key":"photo.jpg","destination_prefix":"out"}`,
	}
	for field, raw := range cases {
		t.Run(field, func(t *testing.T) {
			_, err := ParseRequest([]byte(raw))
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if len(verr.Violations) != 1 || verr.Violations[0].Field != field || verr.Violations[0].Rule != "type" {
				t.Fatalf("expected a single type violation on %s, got %+v", field, verr.Violations)
			}
		})
	}
}

func TestValidateRequest(t *testing.T) {
	ok := pipeline.InvocationRequest{
		ProcessingMode:    pipeline.ModeResize,
		SourceBucket:      "b",
		SourceKey:         "k.jpg",
		DestinationPrefix: "p",
	}
	if err := ValidateRequest(ok); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	bad := ok
	bad.ProcessingMode = "unknown"
	bad.SourceKey = ""
	got := violationFields(t, ValidateRequest(bad))
	if got["processing_mode"] != "oneof" || got["source_key"] != "required" {
		t.Fatalf("unexpected violations %v", got)
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"workspace_root":"/var/tmp/pipeline"}`))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.WorkspaceRoot == nil || *cfg.WorkspaceRoot != "/var/tmp/pipeline" {
		t.Fatalf("unexpected workspace root %v", cfg.WorkspaceRoot)
	}

	cfg, err = ParseConfig([]byte(`{}`))
	if err != nil {
		t.Fatalf("ParseConfig empty: %v", err)
	}
	if cfg.WorkspaceRoot != nil {
		t.Fatalf("expected absent workspace root")
	}

	_, err = ParseConfig([]byte(`{"workspace_root":""}`))
	if got := violationFields(t, err); got["workspace_root"] != "min" {
		t.Fatalf("expected min violation, got %v", got)
	}

	_, err = ParseConfig([]byte(`{"workspace_root":null}`))
	if got := violationFields(t, err); got["workspace_root"] != "type" {
		t.Fatalf("expected type violation for null root, got %v", got)
	}

	_, err = ParseConfig([]byte(`{"workspace_root":"/tmp","tmp_dir":"/x"}`))
	if got := violationFields(t, err); got["tmp_dir"] != "additionalProperties" {
		t.Fatalf("expected additionalProperties violation, got %v", got)
	}
}
