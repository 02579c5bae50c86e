// Package buildsys implements a minimal build system based on Starlark for the task definitions
// and mvdan.cc/sh for the shell runtime.
//
// Tasks come in three flavours: script tasks declared with task(), file rules which produce a single file from
// a list of prerequisites and phony groups which only aggregate other tasks. File rules and groups are usually
// registered by Go code (see Registry) that is exposed to the build scripts as additional builtins.
package buildsys
