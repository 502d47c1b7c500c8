package config

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/matchforge/configurator/pkg/errors"
)

var validate = validator.New()

// Validate checks the resolved settings for the subcommand recorded in
// Subcommand. All problems are reported in one aggregate error.
func (s *Settings) Validate() error {
	var problems []string

	if err := validate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if stderrors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				problems = append(problems, fmt.Sprintf("%s: failed %q check (value %v)",
					fieldKey(fe.StructField()), fe.Tag(), fe.Value()))
			}
		} else {
			return errors.Wrap(err, errors.ErrorTypeInternal, "validating settings")
		}
	}

	if s.Subcommand == "service" && s.SupportPath == "" {
		problems = append(problems, "support_path: required for the service subcommand")
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New(errors.ErrorTypeValidation, strings.Join(problems, "; ")).
		WithDetail("problem_count", len(problems))
}

// fieldKey translates a Go field name back to its settings key.
func fieldKey(structField string) string {
	for _, b := range bindings {
		if keyToField(b.key) == structField {
			return b.key
		}
	}
	return structField
}

func keyToField(key string) string {
	var sb strings.Builder
	for _, part := range strings.Split(key, "_") {
		switch part {
		case "url":
			sb.WriteString("URL")
		case "json":
			sb.WriteString("JSON")
		case "api":
			sb.WriteString("API")
		default:
			if part == "" {
				continue
			}
			sb.WriteString(strings.ToUpper(part[:1]))
			sb.WriteString(part[1:])
		}
	}
	return sb.String()
}

// Redacted returns a copy of the settings with the credential-bearing
// values (engine configuration document and both database URLs) removed,
// safe to log or print.
func (s *Settings) Redacted() *Settings {
	out := *s
	out.EngineConfigurationJSON = ""
	out.DatabaseURLGeneric = ""
	out.DatabaseURLSpecific = ""
	return &out
}
