// Package imagehost implements the provider contract over a REST image
// hosting API with native album and image resources.
//
// Requests are classified by resource and method into those requiring the
// user's bearer token (account-scoped reads and all mutations) and those
// servable with the anonymous application credential. Classification failures
// on mutations fail closed; anonymous fallback exists only for reads.
//
// Transport failures follow the shared retry protocol: exponential backoff
// for network and 5xx errors, the server's advertised retry-after plus a
// safety margin for rate limits, and no retries at all for authentication
// failures, which invalidate the local session immediately.
package imagehost
