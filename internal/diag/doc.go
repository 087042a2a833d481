// Package diag defines the typed construction errors raised by the class
// builder and a small bag for reporting failures of batch builds.
//
// # Codes
//
// Code is a compact numeric identifier grouped into categories by range:
//
//   - 1000-1999 Access: unknown members, static/instance mismatch,
//     visibility, reads of unassigned locals.
//   - 2000-2999 Syntax/state: statements against closed scopes, misplaced
//     else/catch/break/continue, reused or dangling expression nodes,
//     slot and table limits.
//   - 3000-3999 Type: operand kinds, casts, argument lists, return values.
//   - 4000-4999 Assembly: open methods at finalization, unimplemented
//     abstract members, poisoned assemblers.
//   - 5000-5999 Recipe: declarative input that cannot be compiled.
//
// There is no severity: every Error aborts the member under construction,
// and the builder that raised it refuses further work (AsmUnusable wraps
// the first failure so RootCode can recover it).
package diag
