package kube

import (
	"fmt"
	"regexp"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"
)

var invalidLabelChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// NormalizeLabel maps a machine attribute onto a Kubernetes label.
//
// Keys that are not qualified names have every run of illegal characters
// replaced by '-' and are cut to 63 characters. Attributes whose key still
// fails validation, or whose value is not a valid label value, are dropped.
func NormalizeLabel(key, value string) (string, string, bool) {
	if len(validation.IsQualifiedName(key)) != 0 {
		key = invalidLabelChars.ReplaceAllString(key, "-")
		key = strings.Trim(key, "-._")
		if len(key) > validation.LabelValueMaxLength {
			key = strings.Trim(key[:validation.LabelValueMaxLength], "-._")
		}
		if key == "" || len(validation.IsQualifiedName(key)) != 0 {
			return "", "", false
		}
	}
	if len(validation.IsValidLabelValue(value)) != 0 {
		return "", "", false
	}
	return key, value, true
}

// ValidateLabel rejects values the API server would refuse as label values.
func ValidateLabel(key, value string) error {
	if errs := validation.IsValidLabelValue(value); len(errs) != 0 {
		return fmt.Errorf("invalid value %q for label %s: %s", value, key, strings.Join(errs, "; "))
	}
	return nil
}
