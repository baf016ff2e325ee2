// Package models defines the domain entities shared by the upsync engines, transport and render layers.
//
// The package contains three groups of types:
//
// 1. Authentication: the handshake and its outcome
//   - [AuthChallenge] : a server-issued scannable login token
//   - [Identity] : the authenticated subject
//
// 2. Pipeline: read replicas of server-side task state
//   - [TaskInstance] : one submitted video and its coarse status code
//   - [TaskStep] : one ordered unit of the preparation chain
//   - [TaskDetail] : a task with its steps, progress and files
//
// 3. Cache: rows persisted locally from successful server round-trips
//   - [TaskSnapshot] : the task set of the last successful refresh
//
// Nothing in this package talks to the network or the database.
package models
