// Package harness runs scripted two-endpoint scenarios against the entity
// layer.
//
// A scenario is a YAML file describing one synchronized list replicated
// between a server and a client endpoint, a sequence of steps applied to
// either side, and the expected outcome. Files are checked against an
// embedded CUE schema before they are decoded, so typos and wrong value
// types are rejected with a position.
//
// Steps run on immediate schedulers joined by an in-memory wire, so each
// step is fully propagated before the next one starts and the resulting
// trace is deterministic. RunWithGolden compares that trace against a
// golden file under testdata/golden:
//
//	go test ./internal/harness -update
//
// regenerates the golden files.
package harness
