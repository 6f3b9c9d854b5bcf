// Package model defines the domain types shared across the pipeline stages
// and the dashboard read path.
package model

import "time"

// ChangeType classifies the contractor-change intent of an amendment,
// derived from its work-description text.
type ChangeType string

const (
	ChangeContractor        ChangeType = "CONTRACTOR_CHANGE"
	ChangeContractorToOwner ChangeType = "CONTRACTOR_TO_OWNER"
	ChangeOwnerToContractor ChangeType = "OWNER_TO_CONTRACTOR"
)

// JobStatus is the terminal status of a pipeline invocation.
type JobStatus string

const (
	JobSuccess JobStatus = "SUCCESS"
	JobFailed  JobStatus = "FAILED"
)

// RolePrimary is the contractor role subject to the one-per-build constraint.
const RolePrimary = "PRIMARY"

// Permit is a building permit observed from the external source. The permit
// number is the natural key within a jurisdiction. Sync refreshes source
// fields, the duration computer owns the timing fields, and the certificate
// linker may backfill FinaledDate. Permits are never deleted.
type Permit struct {
	PermitNumber string     `json:"permit_number"`
	Jurisdiction string     `json:"jurisdiction,omitempty"`
	Status       string     `json:"status,omitempty"`
	PermitScope  string     `json:"permit_scope,omitempty"`
	WorkDesc     string     `json:"work_desc,omitempty"`
	IsADU        bool       `json:"is_adu"`
	ADUKind      *string    `json:"adu_kind,omitempty"`
	IssuedDate   *time.Time `json:"issued_date,omitempty"`
	FinaledDate  *time.Time `json:"finaled_date,omitempty"`

	// Derived by the duration computer.
	StartedDate            *time.Time `json:"started_date,omitempty"`
	StartedButNotCompleted bool       `json:"started_but_not_completed"`
	PullToStartLagDays     *int       `json:"pull_to_start_lag_days,omitempty"`
}

// Build is the per-project companion of a permit, carrying site attributes
// and derived outcome fields.
type Build struct {
	BuildID          int64      `json:"build_id"`
	PermitNumber     string     `json:"permit_number"`
	Address          *string    `json:"address,omitempty"`
	ZipCode          *string    `json:"zip_code,omitempty"`
	APN              *string    `json:"apn,omitempty"`
	Lat              *float64   `json:"lat,omitempty"`
	Lon              *float64   `json:"lon,omitempty"`
	Valuation        *float64   `json:"valuation,omitempty"`
	Sqft             *float64   `json:"sqft,omitempty"`
	ValuationPerSqft *float64   `json:"valuation_per_sqft,omitempty"`
	FinaledDate      *time.Time `json:"finaled_date,omitempty"`
	FailedInspCount  *int       `json:"failed_inspection_count,omitempty"`
}

// Amendment belongs to exactly one base permit and is keyed on its own
// external identifier, so re-observation updates rather than duplicates.
type Amendment struct {
	AmendmentPermitNbr  string      `json:"amendment_permit_nbr"`
	BasePermitNbr       string      `json:"base_permit_nbr"`
	AmendmentNumber     int         `json:"amendment_number"`
	Status              string      `json:"status,omitempty"`
	WorkDesc            string      `json:"work_desc,omitempty"`
	IssuedDate          *time.Time  `json:"issued_date,omitempty"`
	FinaledDate         *time.Time  `json:"finaled_date,omitempty"`
	HasContractorChange bool        `json:"has_contractor_change"`
	ContractorChange    *ChangeType `json:"contractor_change_type,omitempty"`
}

// Inspection is a single inspection event. The key is (permit number,
// inspection date, normalized type); Result holds the normalized
// uppercase result label.
type Inspection struct {
	PermitNumber string    `json:"permit_number"`
	Date         time.Time `json:"inspection_date"`
	Type         string    `json:"inspection_type"`
	Result       string    `json:"result"`
}

// Contractor is identified by license number. The aggregate metric block is
// wholly owned by the metrics aggregator and overwritten on every run.
type Contractor struct {
	ContractorID  int64   `json:"contractor_id"`
	LicenseNumber string  `json:"license_number"`
	Name          string  `json:"name"`
	LicenseType   *string `json:"license_type,omitempty"`

	TotalBuilds         int        `json:"total_builds"`
	ActiveBuilds        int        `json:"active_builds"`
	CompletionRate      *float64   `json:"completion_rate,omitempty"`
	BuildsLastYear      int        `json:"builds_last_year"`
	AvgCompletionDays   *int       `json:"avg_time_to_completion_days,omitempty"`
	AvgPassFinalDays    *int       `json:"avg_time_to_pass_final_days,omitempty"`
	AvgFailedInspection *float64   `json:"avg_failed_inspections,omitempty"`
	LastActiveDate      *time.Time `json:"last_active_date,omitempty"`
}

// PhaseMetrics holds the six derived phase durations for one permit, in
// whole days. A nil field means the interval could not be established
// (missing milestone, same-day, or out-of-order dates).
type PhaseMetrics struct {
	PermitNumber        string `json:"permit_number"`
	StartToFoundation   *int   `json:"start_to_foundation,omitempty"`
	FoundationToFraming *int   `json:"foundation_to_framing,omitempty"`
	FramingToDrywall    *int   `json:"framing_to_drywall,omitempty"`
	DrywallToFinal      *int   `json:"drywall_to_final,omitempty"`
	StartToFinal        *int   `json:"start_to_final,omitempty"`
	TimeToPassFinal     *int   `json:"time_to_pass_final,omitempty"`
}

// Watermark records the last successfully synced cursor for one source.
// It only advances after the corresponding batch write has committed.
type Watermark struct {
	SourceKey        string     `json:"source_key"`
	LastCursor       *time.Time `json:"last_cursor,omitempty"`
	RecordsProcessed int64      `json:"records_processed"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// JobRun is one row in the append-only pipeline audit log.
type JobRun struct {
	ID         string    `json:"id"`
	JobName    string    `json:"job_name"`
	SourceKey  string    `json:"source_key"`
	Status     JobStatus `json:"status"`
	RowCount   int64     `json:"row_count"`
	Message    string    `json:"message,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
