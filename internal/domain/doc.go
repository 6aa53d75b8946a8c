// Package domain defines core data models and interfaces shared across devid.
// It contains plain types (claims, key handles and specs), the key store and
// identity contracts, and the error kinds callers match with errors.Is.
package domain
