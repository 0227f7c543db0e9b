// Package types contains common types used across the application
package types

// Entry represents a roster ranking entry
type Entry struct {
	Rank  int    `json:"rank"`
	Name  string `json:"name"`
	Score int64  `json:"score"`
	Role  string `json:"role,omitempty"`
}
