// Package hlc implements a Hybrid Logical Clock.
//
// A Clock pairs the highest physical time (milliseconds since the Unix epoch)
// a node has observed with a counter that breaks ties between events sharing
// that logical time, and the node's identity as the final tie-break. Clocks
// are totally ordered by (Logical, Counter, NodeID) and survive skew between
// the wall clocks of different nodes.
//
// Every function in this package is pure: the caller owns the current clock
// value and threads it through Send and Receive.
//
//	c := hlc.Initialize("A", nowMs)
//	c = hlc.Send(c, nowMs)              // stamp a local event
//	ts := hlc.Pack(c)                   // "2024-05-01T10:00:00.000Z/0001/A000000000000000"
//	c = hlc.Receive(c, remote, nowMs)   // merge a remote stamp
//
// Packed clocks sort lexicographically in the same order as Compare, so they
// can be used directly as keys in a log or an index.
package hlc
