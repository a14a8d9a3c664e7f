// Package store journals wire traffic to SQLite.
//
// Every message an endpoint sends or receives is appended with a logical
// sequence number, the endpoint session and the entity id. The journal can
// then be verified (each endpoint received exactly what its peer sent, per
// entity, in order) and replayed into list replicas.
//
// # Ordering
//
//   - All ordering uses seq INTEGER from a logical clock, never timestamps
//   - All queries order by seq ASC so results are identical across reads
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability and performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: messages must reference a recorded session
//
// Entity ids are unsigned 64-bit values stored in SQLite's signed INTEGER
// column by bit pattern.
package store
