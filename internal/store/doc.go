// Package store provides SQLite-backed storage for the activity stream:
// users and their team, portal and role memberships, business records,
// notes with their membership tables, and subscriptions.
//
// # Ordering
//
// Notes are ordered by number only. number is an AUTOINCREMENT primary key,
// so it strictly increases with insertion order and is never reused. The
// created_at column is used for time windows, never for ordering.
//
// # Denormalized membership
//
// A note keeps users_ids, teams_ids and portals_ids as JSON arrays for
// reading, and mirrors them into note_users, note_teams and note_portals
// for the joins the stream queries use. Both copies are rewritten in one
// transaction. Concurrent rewrites of the same note are last-writer-wins.
//
// # Queries
//
// Stream queries arrive as queryir trees and are compiled by querysql.
// The store never accepts raw SQL from callers.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
