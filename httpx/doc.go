// Package httpx is a declarative client for JSON/REST backends:
//   - requests described as data (path, query, body, auth, timeout, retry)
//   - base URL joining and deterministic query encoding
//   - bearer/cookie auth with per-call overrides
//   - one cancellation scope per call covering every retry and backoff sleep
//   - exponential backoff with jitter on retryable statuses and transport errors
//   - bodies parsed once into empty/JSON/text, failures normalized into *Error
//   - a CRUD Resource on top of Client.Request
package httpx
