package encounter

import (
	"context"
	"time"
)

// CatalogField names a column whose distinct values feed a filter control.
type CatalogField string

const (
	CatalogGender         CatalogField = "gender"
	CatalogRace           CatalogField = "race"
	CatalogDisposition    CatalogField = "disposition"
	CatalogChiefComplaint CatalogField = "chiefcomplaint"
)

// Repository is the read-only storage boundary for ED visits. Lookups by
// stay id use the per-table stay_id index.
type Repository interface {
	// List counts the visits matching preds and returns the requested page.
	List(ctx context.Context, preds []Predicate, q PageQuery) ([]*Summary, int, error)
	// GetVisit returns ErrNotFound when the stay does not exist.
	GetVisit(ctx context.Context, stayID int64) (*Visit, error)
	// GetTriage returns nil without error when the visit has no triage.
	GetTriage(ctx context.Context, stayID int64) (*TriageRecord, error)
	ListVitals(ctx context.Context, stayID int64) ([]VitalObservation, error)
	ListDiagnoses(ctx context.Context, stayID int64) ([]DiagnosisEntry, error)
	ListReconciliation(ctx context.Context, stayID int64) ([]ReconciliationRecord, error)
	ListDispensing(ctx context.Context, stayID int64) ([]DispensingRecord, error)

	// DistinctValues returns the distinct non-null, non-empty values of field
	// in no particular order.
	DistinctValues(ctx context.Context, field CatalogField) ([]string, error)
	// ArrivalRange returns the earliest and latest intime, or nils when there
	// are no visits.
	ArrivalRange(ctx context.Context) (first, last *time.Time, err error)
}
