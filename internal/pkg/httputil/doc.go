// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Every response carries a "success" flag. Errors use the envelope
// {"success": false, "error": "..."}; handlers never write raw
// http.ResponseWriter calls.
package httputil
