// Package entity provides the synchronized reactive entities: List,
// Property and Signal.
//
// Every entity applies local changes immediately. While unbound, changes
// are only recorded; at bind the current state is transmitted, and from
// then on each local change is sent as it happens. Changes received from
// the remote side are applied through a suppressed path that notifies
// observers without sending anything back.
//
// Sending is done by an adviser registered during bind inside a priority
// section, so the wire always sees a change before application observers
// do, regardless of when those observers subscribed.
package entity
