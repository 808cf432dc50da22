// ABOUTME: HealthRecord represents a single health measurement
// ABOUTME: Stored normalized with a patient_id reference, surfaced with the patient name
package models

import "time"

// Common record types accepted by the bot and API
const (
	RecordTypeBP         = "BP"
	RecordTypeSugar      = "Sugar"
	RecordTypeCreatinine = "Creatinine"
	RecordTypeWeight     = "Weight"
	RecordTypeOther      = "Other"
)

// HealthRecord is a health measurement for a patient
type HealthRecord struct {
	ID         int64     `json:"id" yaml:"id"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
	Patient    string    `json:"patient" yaml:"patient"`
	PatientID  int64     `json:"patient_id" yaml:"patient_id"`
	RecordType string    `json:"record_type" yaml:"record_type"`
	DataType   string    `json:"data_type" yaml:"data_type"`
	Value      string    `json:"value" yaml:"value"`
}

// RecordFilter narrows a record listing. Zero values mean no filter.
type RecordFilter struct {
	Patient    string
	RecordType string
	Limit      int
}
