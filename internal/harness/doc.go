// Package harness runs stream scenarios against a real engine.
//
// A scenario seeds users, applies a sequence of mutations through
// engine.Apply and then asserts on what each user's stream, an entity's
// stream or an entity's follower list returns. Every run uses a fresh
// in-memory store, a manual clock starting at the scenario's now and
// sequential record IDs, so the step trace is reproducible and can be
// compared against a golden file.
//
// # Scenario Format
//
//	name: account_team_visibility
//	description: "Team members see account activity"
//	now: 2026-01-05T09:00:00Z
//	users:
//	  - {id: u1, name: Ann, teams: [t1], roles: [sales]}
//	steps:
//	  - op: create
//	    as: u1
//	    type: Account
//	    id: a1
//	    attrs: {name: Acme, teamsIds: [t1]}
//	    expect:
//	      notes: ["Create Account/a1"]
//	  - op: post
//	    as: u1
//	    advance: 1m
//	    parent: Account/a1
//	    post: {text: hello}
//	assertions:
//	  - type: stream
//	    user: u1
//	    notes: ["Post Account/a1: hello", "Create Account/a1"]
//
// # Operations
//
//   - create, update, delete: type, id and attrs of the record
//   - relate: type and id of the record, parent it was linked to
//   - email_received, email_sent: parent and email
//   - post: optional parent and the post body
//   - follow, unfollow: type and id, optional user (defaults to as)
//
// # Assertion Types
//
//   - stream: the user stream of user as seen by as
//   - entity_stream: the stream of entity as seen by as
//   - followers: the follower IDs of entity
//
// Notes are matched by label, see NoteLabel.
package harness
