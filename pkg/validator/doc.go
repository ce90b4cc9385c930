/*
Package validator checks study manifests for well-formedness before admission.

The validator is deterministic and tenant-agnostic: the same manifest always
yields the same result, and nothing about the submitting tenant influences the
outcome. It runs once at admission; manifests are immutable afterwards, so
nothing is ever re-validated.

# Rules

Structural rules are declared as struct tags on pkg/types and enforced with
go-playground/validator:

  - name present, at most 200 characters
  - at least one query, surface, and location; query text non-empty
  - coverage threshold within [0, 1]
  - retry and concurrency limits non-negative
  - evidence level, session isolation, and proxy type drawn from their enums
  - deadline present

Cross-field rules are checked by hand on top of the tag pass:

  - deadline strictly in the future at admission time
  - surface and location ids unique within the manifest
  - completion criteria reference only declared surfaces
  - per-surface option records carry no empty keys (values stay opaque)

# Usage

	v := validator.New()
	result := v.Validate(manifest)
	if !result.OK {
		// result.Errors holds one message per violation, e.g.
		// "queries[0].text: required"
		// "deadline: must be strictly in the future"
	}

All violations are collected in a single pass so a client can fix a manifest
in one round trip.

# Integration Points

  - pkg/orchestrator: rejects CreateStudy with VALIDATION_ERROR when OK is false
  - pkg/types: owns the validate tags this package evaluates
*/
package validator
