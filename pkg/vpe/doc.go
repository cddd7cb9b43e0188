// Package vpe implements VirtualPointEngine: a dependency graph over raw
// and derived points, evaluated by a sandboxed JavaScript-style formula
// interpreter (github.com/dop251/goja). The engine is a process-wide
// singleton with explicit Initialize/Shutdown.
package vpe
