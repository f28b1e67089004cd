// Package logx provides a small structured logging layer over zerolog.
//
// Components receive a Logger value and derive children with With().
// The Service owns sink configuration (console/file) and can be
// re-applied at runtime without invalidating existing Logger values.
package logx
