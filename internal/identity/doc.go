// Package identity defines the typed identifiers used throughout netfabric.
//
// Every message flowing through the system (commands in, events out) is
// addressed by opaque identifiers rather than raw strings. The types here
// exist to keep device ids, aggregate ids, and the correlation/causation
// pair from being mixed up at call sites.
//
// # Identifier Algebra
//
// A root message (the first command of a logical operation) sets its own
// message id as both its correlation id and its causation id. Any message
// derived from it inherits the parent's correlation id and sets its
// causation id to the parent's message id. NewRootEnvelope and
// DerivedEnvelope encode this rule so callers cannot get it wrong.
//
// # Bounded Values
//
// VlanID is validated on construction: the 802.1Q range is 1-4094, with
// 0 and 4095 reserved by the standard. ParseSubnet normalizes CIDR text
// to its masked form so that two spellings of the same block compare equal.
package identity
