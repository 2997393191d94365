// Package google provides OAuth2 authentication and token storage for the
// Google Calendar API.
//
// Tokens are stored per account as JSON files named google-<account>.json in
// the token directory, which defaults to $XDG_DATA_HOME/calmux. The
// TokenProvider interface lets callers plug in other token sources.
package google
