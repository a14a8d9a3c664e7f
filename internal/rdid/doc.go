// Package rdid derives identifiers for entities in the synchronized tree.
//
// An ID is a 64-bit value. Null (zero) means unassigned; the static range
// (0, MaxStaticID) is reserved for well-known top-level entities named by
// small integers. Every other id is produced by Mix from a parent id and a
// string key, so two endpoints that build the same tree derive the same ids
// without exchanging them.
//
// This package imports nothing internal.
package rdid
