// Package server exposes the upload pipeline over HTTP.
//
// The browser flow is GET / for the form and POST /upload, which answers with
// a 303 back to / and a signed flash cookie carrying the outcome. The JSON
// flow is POST /api/upload plus read-only GET /api/uploads and GET
// /api/status for scripts and the CLI.
package server
