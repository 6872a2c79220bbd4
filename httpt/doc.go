// Package httpt provides the net/http-backed Transport for the
// restcore client core, together with the default rate-limit header
// contract and a REST endpoint builder for versioned resources.
//
// Transport performs exactly one HTTP exchange per Send call; retries,
// rate admission, and status interpretation stay in restcore.
package httpt
