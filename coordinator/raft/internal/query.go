package internal

import (
	"github.com/ramforge/ramforge/coordinator"
	"github.com/ramforge/ramforge/master/tablet"
)

type QueryType uint8

const (
	QueryTGetTabletMap QueryType = iota
	QueryTGetServers
)

// Query is passed to the state machine's Lookup, so it travels as an
// interface{} rather than a serialized byte array (dragonboat only
// requires Update commands to be bytes; local reads can pass Go values
// directly when NodeHost and state machine share a process).
type Query struct {
	Type QueryType
}

// QueryResult is the Lookup return value, cast back by the caller.
type QueryResult struct {
	Tablets []tablet.Tablet
	Servers []coordinator.ServerDescriptor
}
