// Package domain holds the aggregates: the device lifecycle state
// machine and the network object (VLAN / container network), plus the
// command and event types they exchange. Aggregates validate commands
// against their current state and produce events; they never touch
// storage directly.
package domain
