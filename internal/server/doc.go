// Package server provides the local JSON API started by `upsync serve`.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation registers method patterns ("GET /api/tasks/{id}") on an [http.ServeMux],
// so the mux answers 405 for wrong methods and handlers read path values with [http.Request.PathValue].
//
// # Endpoints
//
//	GET  /api/health
//	GET  /api/identity
//	GET  /api/tasks?category=&page=
//	GET  /api/tasks/{id}
//	GET  /api/tasks/{id}/files
//	POST /api/tasks/{id}/steps/{step}/retry
//	POST /api/tasks/{id}/trigger/{stage}
//	POST /api/refresh
//
// Task endpoints answer 401 while signed out. Commands answer with the task re-fetched from the
// server; nothing is patched locally.
//
// [API] reads through the [Session] and [TaskStore] interfaces, which the orchestrator and the task
// registry satisfy.
package server
