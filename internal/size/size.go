// Package size parses memory sizes written in the cluster orchestrator's
// quantity notation: binary suffixes (Ki, Mi, Gi), decimal suffixes (k, M,
// G) and scientific notation (129e6, 129e+6).
package size

import (
	"fmt"
	"strings"

	units "github.com/docker/go-units"
	"k8s.io/apimachinery/pkg/api/resource"
)

// ParseError reports a memory size string that cannot be parsed.
type ParseError struct {
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed memory size %q: %v", e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseMemory returns the exact number of bytes for s. Fractional byte
// results are rounded up, as the orchestrator does.
//
//	"123Mi"  -> 128974848
//	"129M"   -> 129000000
//	"129e6"  -> 129000000
func ParseMemory(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, &ParseError{Value: s, Err: fmt.Errorf("empty value")}
	}
	q, err := resource.ParseQuantity(trimmed)
	if err != nil {
		return 0, &ParseError{Value: s, Err: err}
	}
	if q.Sign() < 0 {
		return 0, &ParseError{Value: s, Err: fmt.Errorf("negative size")}
	}
	return q.Value(), nil
}

// FormatMemory renders a byte count the way the orchestrator would print it
// in canonical binary form, e.g. 128974848 -> "123Mi".
func FormatMemory(bytes int64) string {
	return resource.NewQuantity(bytes, resource.BinarySI).String()
}

// HumanMemory renders a byte count for people, e.g. "1.5GiB".
func HumanMemory(bytes int64) string {
	return units.BytesSize(float64(bytes))
}
