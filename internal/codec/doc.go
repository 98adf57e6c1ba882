// Package codec provides the two serialization primitives the event
// log is built on: canonical CBOR encoding and keyed BLAKE3 content
// hashing.
//
// Canonical encoding matters because content identifiers are computed
// over encoded payload bytes. If the same logical payload could encode
// two different ways, chain verification would report tampering where
// none happened. The encoder is therefore locked to RFC 8949 Core
// Deterministic Encoding.
//
// ChainHash links each event to its predecessor: the digest covers the
// event kind, the payload bytes, and the previous event's digest.
// Recomputing the chain from the first event reproduces every stored
// identifier unless some event was altered, in which case every
// identifier from that point on diverges.
package codec
