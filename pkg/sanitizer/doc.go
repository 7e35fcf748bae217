// Package sanitizer normalizes free-form user input before validation.
//
// All functions are idempotent: applying them twice gives the same result as
// applying them once. Invalid input never produces an error; the validators
// that run afterwards decide whether the normalized value is acceptable.
package sanitizer
