// Package client is the Go client for the study API. It wraps the
// /v1 HTTP surface with typed methods, bearer authentication, and
// envelope decoding, and is what the CLI study commands build on.
//
//	c := client.New("http://localhost:8080", apiKey)
//	receipt, err := c.CreateStudy(ctx, manifest)
//
// Failures carry the server's stable error code via *APIError so
// callers can branch on RATE_LIMITED, STUDY_NOT_FOUND, and friends
// without string matching.
package client
