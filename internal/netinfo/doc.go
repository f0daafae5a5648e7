// Package netinfo reports how the relay can be reached: the LAN IPv4
// address, a best-effort public IPv4 lookup, and an mDNS advertisement.
//
// None of it affects relay correctness; results are shown to the operator.
package netinfo
