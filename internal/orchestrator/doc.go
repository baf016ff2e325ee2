// Package orchestrator owns the signed-in lifecycle of the client.
//
// The [Orchestrator] drives an [auth.Session] to obtain an identity, then starts the [tasks.Registry]
// refresh cadence and runs one refresh right away. [Orchestrator.Logout] is the only way back: it stops
// the cadence, waits for any scheduled refresh in flight, empties the registry, resets the handshake and
// clears the local cache before returning. A refresh or handshake result that lands after a logout is
// discarded, so a logout/login cycle never leaves two cadences running.
//
// On startup [Orchestrator.Start] asks the server for its auth status and resumes a live session without
// showing a QR code.
package orchestrator
