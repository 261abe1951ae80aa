// Package core holds the HTTP response primitives shared by the API and
// webhook handlers: a Response interface, the JSON envelope, HTTPError values
// and Wrap, which adapts a Response-returning handler to http.HandlerFunc.
package core
