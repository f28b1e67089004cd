// Package storage persists the workspace state between process runs.
//
// The automation service stores each slice of state (template, custom
// variables, recipients, activity log) as an independent key-value
// blob, written on every mutation and loaded at startup.
package storage
