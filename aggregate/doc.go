// Package aggregate merges the capabilities of all healthy backends into
// one conflict-resolved namespace.
//
// Every capability is always reachable under its namespaced name
// ("backend.original"). The bare original name is additionally published
// according to the configured conflict policy when two backends advertise
// the same name. The tables are rebuilt from scratch on every registry
// change, never patched incrementally, so a vanished backend can not
// leave stale conflicts behind. Rebuilds triggered while one is already
// running coalesce into a single re-run.
package aggregate
