// Package protocol binds entity trees to a communicating endpoint.
//
// A Protocol is one side of a connection: it owns the scheduler every entity
// of that side runs on, the wire, the serializer registry, the identity
// allocator and the root lifetime. Entities embed Node, which implements
// identification, binding and extensions; the concrete entity only declares
// its children and registers an init hook.
//
// Lifecycle of a Node:
//
//	Unidentified --Identify--> Identified --Bind--> Bound --lifetime ends--> Unbound
//
// Unbound is terminal. Identification recurses into declared children in
// declaration order, so two endpoints that build the same tree derive the
// same ids without exchanging them.
package protocol
