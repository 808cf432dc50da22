// ABOUTME: Patient is the first-class identity referenced by health records
// ABOUTME: Names are unique and compared exactly, without case or whitespace folding
package models

import "time"

// Patient represents a person whose health records are tracked
type Patient struct {
	ID        int64     `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}
