package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	govalidator "github.com/go-playground/validator/v10"

	"github.com/benthamhq/bentham/pkg/types"
)

// Result is the outcome of a manifest validation pass
type Result struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`
}

// Validator checks manifests for well-formedness before admission.
// Validation is deterministic and tenant-agnostic: the same manifest
// always produces the same result regardless of submitter.
type Validator struct {
	validate *govalidator.Validate
	now      func() time.Time
}

// New creates a manifest validator
func New() *Validator {
	v := govalidator.New()

	// Report violations using the wire field names, not Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{
		validate: v,
		now:      time.Now,
	}
}

// Validate checks the manifest against the admission rules. The result
// lists every violation found, not just the first.
func (v *Validator) Validate(manifest *types.Manifest) Result {
	if manifest == nil {
		return Result{Errors: []string{"manifest: required"}}
	}

	var errs []string

	if err := v.validate.Struct(manifest); err != nil {
		var fieldErrs govalidator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs = append(errs, formatFieldError(fe))
			}
		} else {
			errs = append(errs, fmt.Sprintf("manifest: %v", err))
		}
	}

	errs = append(errs, v.checkDeadline(manifest)...)
	errs = append(errs, checkSurfaces(manifest)...)
	errs = append(errs, checkLocations(manifest)...)
	errs = append(errs, checkCompletion(manifest)...)

	return Result{OK: len(errs) == 0, Errors: errs}
}

// checkDeadline rejects deadlines at or before the admission instant.
// A zero deadline is already reported by the required tag.
func (v *Validator) checkDeadline(m *types.Manifest) []string {
	if m.Deadline.IsZero() || m.Deadline.After(v.now()) {
		return nil
	}
	return []string{"deadline: must be strictly in the future"}
}

// checkSurfaces rejects duplicate surface ids and malformed option records
func checkSurfaces(m *types.Manifest) []string {
	var errs []string
	seen := make(map[string]bool, len(m.Surfaces))
	for i, ref := range m.Surfaces {
		if seen[ref.SurfaceID] {
			errs = append(errs, fmt.Sprintf("surfaces[%d].surfaceId: duplicate surface %q", i, ref.SurfaceID))
		}
		seen[ref.SurfaceID] = true

		for key := range ref.Options {
			if key == "" {
				errs = append(errs, fmt.Sprintf("surfaces[%d].options: option keys must be non-empty", i))
				break
			}
		}
	}
	return errs
}

// checkLocations rejects duplicate location ids
func checkLocations(m *types.Manifest) []string {
	var errs []string
	seen := make(map[string]bool, len(m.Locations))
	for i, loc := range m.Locations {
		if seen[loc.ID] {
			errs = append(errs, fmt.Sprintf("locations[%d].id: duplicate location %q", i, loc.ID))
		}
		seen[loc.ID] = true
	}
	return errs
}

// checkCompletion rejects completion criteria that reference surfaces
// the manifest does not declare
func checkCompletion(m *types.Manifest) []string {
	declared := make(map[string]bool, len(m.Surfaces))
	for _, ref := range m.Surfaces {
		declared[ref.SurfaceID] = true
	}

	var errs []string
	seen := make(map[string]bool, len(m.Completion.RequiredSurfaces))
	for _, id := range m.Completion.RequiredSurfaces {
		if !declared[id] {
			errs = append(errs, fmt.Sprintf("completion.requiredSurfaces: %q is not a declared surface", id))
		}
		if seen[id] {
			errs = append(errs, fmt.Sprintf("completion.requiredSurfaces: duplicate entry %q", id))
		}
		seen[id] = true
	}
	return errs
}

func formatFieldError(fe govalidator.FieldError) string {
	// Namespace is "Manifest.queries[0].text"; drop the root type
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s: required", field)
	case "min":
		return fmt.Sprintf("%s: below minimum %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s: exceeds maximum %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s: must be >= %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s: must be <= %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s: must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s: failed %s validation", field, fe.Tag())
	}
}
