// Package types defines the shared data model for fleet mission
// coordination: the MissionMessage wire entity, mission status and
// message-kind enums, the opaque TaskDefinition payload, and the typed
// error model used by every other package in the module.
//
// This package has ZERO dependencies on other behaviorfleets packages to
// avoid circular imports. All other packages should import types from here.
package types

