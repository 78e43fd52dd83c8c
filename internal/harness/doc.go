// Package harness runs compile scenarios against the signal compiler.
//
// A scenario names a graph description, the options to compile it with, the
// expected outcome and a list of assertions on the normal form. Each run
// builds the graph into a fresh pool, runs the full pipeline and records the
// run in an in-memory run log.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: lowpass_feedback
//	description: "One-pole lowpass keeps its single recursion group"
//	graph: ../graphs/lowpass.yaml    # .cue, .yaml or .yml, relative to the scenario
//	select: lowpass                  # required when the file holds several graphs
//	options:
//	  foreign_lsb: -24
//	expect:
//	  status: ok                     # ok | error
//	assertions:
//	  - type: schedule
//	    schedule: [[0]]
//	  - type: interval_within
//	    output: 0
//	    low: -10
//	    high: 10
//
// A graph may be embedded instead of referenced, under inline: with the same
// outputs/nodes layout as a graph file entry.
//
// # Assertion Types
//
//   - output_equals: shared-mode print of an output equals expr
//   - interval_within: an output's interval lies inside [low, high]
//   - output_kind: an output's numeric kind is int or real
//   - schedule: the recursion schedule equals schedule
//   - rewrites: the reducer applied exactly count rewrites
//   - diagnostic: a diagnostic with code was reported
//   - recorded: the run log holds this run with the observed status
//   - predicate: check, an expr-lang boolean expression over the snapshot
//     (status, outputs, intervals, kinds, schedule, rewrites, diagnostics),
//     holds; for example `rewrites <= 2 && all(kinds, # == "real")`
//
// # Golden Files
//
// With --update the snapshot of each scenario is written next to it under
// golden/<name>.golden. Later runs compare against it; on mismatch DiffGolden
// renders the difference inline as [-removed-]{+added+}.
//
// # Deterministic Testing
//
// Run IDs come from testutil.SequenceIDGenerator, so the run log and the
// golden snapshots are identical across runs.
package harness
