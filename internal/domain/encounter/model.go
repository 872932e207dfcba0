package encounter

import (
	"strconv"
	"time"
)

// Visit maps to the edstays table.
type Visit struct {
	StayID           int64     `db:"stay_id" json:"stay_id"`
	SubjectID        int64     `db:"subject_id" json:"subject_id"`
	HadmID           *int64    `db:"hadm_id" json:"hadm_id"`
	InTime           time.Time `db:"intime" json:"intime"`
	OutTime          time.Time `db:"outtime" json:"outtime"`
	Gender           string    `db:"gender" json:"gender"`
	Race             *string   `db:"race" json:"race"`
	ArrivalTransport *string   `db:"arrival_transport" json:"arrival_transport"`
	Disposition      string    `db:"disposition" json:"disposition"`
}

// DurationHours returns the length of stay in hours rounded to two decimals.
func (v *Visit) DurationHours() float64 {
	return DurationHours(v.InTime, v.OutTime)
}

// DurationHours returns (out - in) in hours rounded to two decimals. The
// rounding is done on the decimal expansion of the float, so an exact tie
// such as 0.125 goes to the even digit and 3.005, which is stored just
// below 3.005, rounds down.
func DurationHours(in, out time.Time) float64 {
	h := out.Sub(in).Seconds() / 3600
	r, _ := strconv.ParseFloat(strconv.FormatFloat(h, 'f', 2, 64), 64)
	return r
}

// TriageRecord maps to the triage table. A visit has at most one.
type TriageRecord struct {
	ID             int64    `db:"id" json:"-"`
	StayID         int64    `db:"stay_id" json:"-"`
	Temperature    *float64 `db:"temperature" json:"temperature"`
	HeartRate      *float64 `db:"heartrate" json:"heartrate"`
	RespRate       *float64 `db:"resprate" json:"resprate"`
	O2Sat          *float64 `db:"o2sat" json:"o2sat"`
	SBP            *float64 `db:"sbp" json:"sbp"`
	DBP            *float64 `db:"dbp" json:"dbp"`
	Pain           *string  `db:"pain" json:"pain"`
	Acuity         *int     `db:"acuity" json:"acuity"`
	ChiefComplaint *string  `db:"chiefcomplaint" json:"chiefcomplaint"`
}

// VitalObservation maps to the vitalsigns table.
type VitalObservation struct {
	ID          int64     `db:"id" json:"-"`
	StayID      int64     `db:"stay_id" json:"-"`
	ChartTime   time.Time `db:"charttime" json:"charttime"`
	Temperature *float64  `db:"temperature" json:"temperature"`
	HeartRate   *float64  `db:"heartrate" json:"heartrate"`
	RespRate    *float64  `db:"resprate" json:"resprate"`
	O2Sat       *float64  `db:"o2sat" json:"o2sat"`
	SBP         *float64  `db:"sbp" json:"sbp"`
	DBP         *float64  `db:"dbp" json:"dbp"`
	Rhythm      *string   `db:"rhythm" json:"rhythm"`
	Pain        *string   `db:"pain" json:"pain"`
}

// DiagnosisEntry maps to the diagnoses table.
type DiagnosisEntry struct {
	ID         int64   `db:"id" json:"-"`
	StayID     int64   `db:"stay_id" json:"-"`
	SeqNum     int     `db:"seq_num" json:"seq_num"`
	ICDCode    string  `db:"icd_code" json:"icd_code"`
	ICDVersion int     `db:"icd_version" json:"icd_version"`
	ICDTitle   *string `db:"icd_title" json:"icd_title"`
}

// ReconciliationRecord maps to the medrecon table (medication history taken
// at intake).
type ReconciliationRecord struct {
	ID             int64      `db:"id"`
	StayID         int64      `db:"stay_id"`
	ChartTime      *time.Time `db:"charttime"`
	Name           *string    `db:"name"`
	GSN            *string    `db:"gsn"`
	NDC            *string    `db:"ndc"`
	ETCRn          *int       `db:"etc_rn"`
	ETCCode        *string    `db:"etccode"`
	ETCDescription *string    `db:"etcdescription"`
}

// DispensingRecord maps to the pyxis table (medications dispensed during
// the stay).
type DispensingRecord struct {
	ID        int64      `db:"id"`
	StayID    int64      `db:"stay_id"`
	ChartTime *time.Time `db:"charttime"`
	MedRn     *int       `db:"med_rn"`
	Name      *string    `db:"name"`
	GSNRn     *int       `db:"gsn_rn"`
	GSN       *string    `db:"gsn"`
}

// MedicationSource tags which channel a MedicationEvent came from.
type MedicationSource string

const (
	SourceReconciliation MedicationSource = "medrecon"
	SourceDispensing     MedicationSource = "pyxis"
)

// MedicationEvent is one entry of the merged medication timeline. Description
// is only ever set for reconciliation events.
type MedicationEvent struct {
	ChartTime   *time.Time       `json:"charttime"`
	Name        *string          `json:"name"`
	Source      MedicationSource `json:"source"`
	GSN         *string          `json:"gsn"`
	Description *string          `json:"description"`
}

// FromReconciliation builds the reconciliation variant of a MedicationEvent.
func FromReconciliation(r *ReconciliationRecord) MedicationEvent {
	return MedicationEvent{
		ChartTime:   r.ChartTime,
		Name:        r.Name,
		Source:      SourceReconciliation,
		GSN:         r.GSN,
		Description: r.ETCDescription,
	}
}

// FromDispensing builds the dispensing variant of a MedicationEvent.
func FromDispensing(d *DispensingRecord) MedicationEvent {
	return MedicationEvent{
		ChartTime: d.ChartTime,
		Name:      d.Name,
		Source:    SourceDispensing,
		GSN:       d.GSN,
	}
}

// Summary is one row of the encounter list: the visit plus the triage
// fields surfaced by the left join.
type Summary struct {
	Visit
	ChiefComplaint *string `json:"chiefcomplaint"`
	Acuity         *int    `json:"acuity"`
	DurationHours  float64 `json:"duration_hours"`
}

// Detail is the full clinical timeline of a single visit.
type Detail struct {
	Visit
	DurationHours float64            `json:"duration_hours"`
	Triage        *TriageRecord      `json:"triage"`
	VitalSigns    []VitalObservation `json:"vitalsigns"`
	Diagnoses     []DiagnosisEntry   `json:"diagnoses"`
	Medications   []MedicationEvent  `json:"medications"`
}

// DateRange holds the arrival-time bounds over all visits. Both are nil when
// there are no visits.
type DateRange struct {
	Min *time.Time `json:"min"`
	Max *time.Time `json:"max"`
}

// FilterCatalog lists the values used to populate filter controls.
type FilterCatalog struct {
	Genders         []string  `json:"genders"`
	Races           []string  `json:"races"`
	Dispositions    []string  `json:"dispositions"`
	ChiefComplaints []string  `json:"chief_complaints"`
	DateRange       DateRange `json:"date_range"`
}
