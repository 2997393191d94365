// Package similarity holds the pure functions behind duplicate and conflict
// detection: time range overlap and a fixed decision table that scores how
// likely two events are the same.
package similarity
