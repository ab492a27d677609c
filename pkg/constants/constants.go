// Package constants holds small process-wide literals shared across forge's
// packages: the CLI name, the on-disk archive format version, and the
// default paths the orchestrator writes under.
package constants

// CLIName is the prefix used in user-facing output to refer to the forge binary.
const CLIName = "forge"

// MakefileFormatVersion gates makefile-cache regeneration: a cache with a
// different version is never partially migrated, only discarded and rebuilt.
const MakefileFormatVersion int32 = 19

// DefaultIntermediateDir is the relative directory makefiles, caches and the
// hot-reload state file are written under when a target descriptor doesn't
// override it.
const DefaultIntermediateDir = "Intermediate/Build"

// DefaultMaxProcessorCount bounds the local executor's worker pool when the
// caller doesn't supply an explicit override.
const DefaultMaxProcessorCount = 64
