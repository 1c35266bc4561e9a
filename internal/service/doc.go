// ABOUTME: Package doc for the service layer
// ABOUTME: Describes how operations compose the auth resolver with the store

// Package service implements the operations both front doors expose: account
// management, credential lifecycle, collections and documents.
//
// Every operation takes the resolved AuthContext produced by the auth
// resolver and enforces its own authorization before touching the store.
// Record discovery is scoped: by-id lookups on records the caller has no
// rights to return NotFound rather than Forbidden, so probing ids reveals
// nothing about what exists.
package service
