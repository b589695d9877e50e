// Package httpapi serves the account endpoints over HTTP with gorilla/mux.
//
// Every /auth route runs behind middleware.Guard with its route policy.
// Request bodies are JSON; errors are written as
// {"statusCode": ..., "message": ...}. Health, readiness and Prometheus
// endpoints are mounted outside the API prefix.
package httpapi
