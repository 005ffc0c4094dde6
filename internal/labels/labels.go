// Package labels builds the metadata attached to backend-native objects
// (pods, services, ingresses, containers) so that a running machine can be
// traced back to its workspace runtime.
package labels

import (
	"sort"

	"wsruntime/internal/model"
)

// Reserved label keys. Downstream tooling queries infrastructure objects by
// these keys, so their values must never change.
const (
	WorkspaceID = "wsruntime.io/workspace-id"
	Owner       = "wsruntime.io/owner"
	Environment = "wsruntime.io/environment"
	Machine     = "wsruntime.io/machine"
)

var reserved = map[string]bool{
	WorkspaceID: true,
	Owner:       true,
	Environment: true,
	Machine:     true,
}

// IsReserved reports whether key is one of the reserved identity keys.
func IsReserved(key string) bool {
	return reserved[key]
}

// ReservedKeys returns the reserved keys in sorted order.
func ReservedKeys() []string {
	keys := make([]string, 0, len(reserved))
	for k := range reserved {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// KeyNormalizer maps a user attribute onto a backend label. It returns false
// when the attribute cannot be represented as a label at all.
type KeyNormalizer func(key, value string) (string, string, bool)

// Identity passes attributes through unchanged.
func Identity(key, value string) (string, string, bool) {
	return key, value, true
}

// Serializer accumulates the inputs of a label set. The zero value is ready
// to use; it normalizes nothing.
type Serializer struct {
	machine    string
	attributes map[string]string
	identity   model.RuntimeIdentity
	normalize  KeyNormalizer
}

// New returns an empty Serializer.
func New() *Serializer {
	return &Serializer{}
}

// Machine sets the machine name.
func (s *Serializer) Machine(name string) *Serializer {
	s.machine = name
	return s
}

// Attributes sets the custom attributes passed through as extra labels.
// The map is copied.
func (s *Serializer) Attributes(attrs map[string]string) *Serializer {
	s.attributes = make(map[string]string, len(attrs))
	for k, v := range attrs {
		s.attributes[k] = v
	}
	return s
}

// Runtime sets the runtime identity.
func (s *Serializer) Runtime(id model.RuntimeIdentity) *Serializer {
	s.identity = id
	return s
}

// KeyNormalizer sets the backend-specific attribute normalization. Reserved
// keys are never passed through it.
func (s *Serializer) KeyNormalizer(fn KeyNormalizer) *Serializer {
	s.normalize = fn
	return s
}

// Labels materializes the label set. Reserved keys always carry the identity
// values; a colliding user attribute is dropped. Attributes are normalized in
// sorted key order and when two of them normalize to the same label key the
// first one wins, so calling Labels repeatedly yields equal maps.
func (s *Serializer) Labels() map[string]string {
	normalize := s.normalize
	if normalize == nil {
		normalize = Identity
	}

	keys := make([]string, 0, len(s.attributes))
	for k := range s.attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(s.attributes)+len(reserved))
	for _, k := range keys {
		if IsReserved(k) {
			continue
		}
		nk, nv, ok := normalize(k, s.attributes[k])
		if !ok || IsReserved(nk) {
			continue
		}
		if _, taken := out[nk]; taken {
			continue
		}
		out[nk] = nv
	}

	out[WorkspaceID] = s.identity.WorkspaceID
	out[Owner] = s.identity.OwnerID
	out[Environment] = s.identity.EnvName
	out[Machine] = s.machine
	return out
}

// Parse recovers the machine name and runtime identity from a label set. It
// returns false if the workspace id or machine label is missing.
func Parse(l map[string]string) (string, model.RuntimeIdentity, bool) {
	id := model.RuntimeIdentity{
		WorkspaceID: l[WorkspaceID],
		EnvName:     l[Environment],
		OwnerID:     l[Owner],
	}
	machine := l[Machine]
	if id.WorkspaceID == "" || machine == "" {
		return "", model.RuntimeIdentity{}, false
	}
	return machine, id, true
}

// SelectWorkspace returns the selector matching every object of a workspace.
func SelectWorkspace(workspaceID string) map[string]string {
	return map[string]string{WorkspaceID: workspaceID}
}
