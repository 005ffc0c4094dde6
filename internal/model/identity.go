package model

import (
	"errors"
	"fmt"
)

// ErrMissingWorkspaceID is returned when a RuntimeIdentity has no workspace id.
var ErrMissingWorkspaceID = errors.New("runtime identity: workspace id is required")

// RuntimeIdentity identifies one running instance of a workspace environment.
type RuntimeIdentity struct {
	// WorkspaceID is the identifier of the workspace, e.g. "workspace1a2b3c".
	WorkspaceID string `json:"workspaceId" yaml:"workspaceId"`

	// EnvName is the name of the environment that was started, e.g. "default".
	EnvName string `json:"envName" yaml:"envName"`

	// OwnerID identifies the user that owns the runtime.
	OwnerID string `json:"ownerId" yaml:"ownerId"`
}

// Validate checks that the identity can be used as a label and lookup key.
func (id RuntimeIdentity) Validate() error {
	if id.WorkspaceID == "" {
		return ErrMissingWorkspaceID
	}
	return nil
}

// String renders the identity as workspace:env:owner.
func (id RuntimeIdentity) String() string {
	return fmt.Sprintf("%s:%s:%s", id.WorkspaceID, id.EnvName, id.OwnerID)
}
