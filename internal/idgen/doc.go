// Package idgen generates the opaque identifiers used for cache instances,
// messages, segments and access tokens.
package idgen
