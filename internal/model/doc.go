// Package model holds the backend-agnostic representation of a workspace
// environment while it is being provisioned.
//
// A workspace definition is loaded into an InternalEnvironment, which carries
// two views of every machine:
//
//   - InternalMachineConfig: what the user declared (attributes, servers,
//     installers, environment variables, volumes).
//   - ContainerConfig: the backend-native recipe that the provisioners fill in
//     and that an infrastructure client finally turns into containers or pods.
//
// The provisioning pipeline never shares an InternalEnvironment between
// goroutines. Provisioners receive a deep copy (see Clone) and return the
// modified value, so a failed step leaves the caller's environment untouched.
//
// RuntimeIdentity ties a running environment to its workspace. It is created
// once per start, never mutated, and used as the key for labels and for
// exposure lookups.
package model
