// Package batch holds helpers for tools that act on several values at once.
//
// Tool arguments such as account, calendar or eventId accept a single string,
// an array of strings, or a string holding a JSON array. ParseStringOrArray
// normalizes all three. Process runs one operation per value and collects a
// Summary that reports every success and failure without stopping early.
package batch
