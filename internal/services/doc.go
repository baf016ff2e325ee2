// Package services is the HTTP transport to the remote pipeline server.
//
// # Raw Transport
//
// [APIService] performs rate-limited JSON requests against the versioned API root and returns the raw
// [APIResponse]. Every request carries an X-Request-ID header.
//
// # Pipeline Client
//
// [PipelineClient] maps the server's auth and video endpoints to [models] types:
//   - challenge issuance and polling for the QR login handshake
//   - the authoritative auth status and logout
//   - paged task listing, task detail, artifact listing
//   - single-step retry and manual stage triggers
//
// # Error Handling
//
// Every response carries a numeric code where 0 or 200 means success:
//   - [shared.ErrAPIRequest] : the request never got an answer
//   - [RemoteError] (wraps [shared.ErrRemoteRejected]) : the server answered with a failure code
//   - [shared.ErrMalformedResponse] : the body could not be decoded
//   - [shared.ErrTaskNotFound] : the task id does not exist
//
// Polling is the exception: [PipelineClient.PollChallenge] reports HTTP 400 and 500 as [PollExpired]
// instead of an error, since that is how the server signals an expired challenge.
package services
