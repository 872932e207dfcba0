package encounter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct {
	db querier
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{db: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

const visitCols = `stay_id, subject_id, hadm_id, intime, outtime,
	gender, race, arrival_transport, disposition`

const triageCols = `id, stay_id, temperature, heartrate, resprate, o2sat, sbp, dbp,
	pain, acuity, chiefcomplaint`

const vitalCols = `id, stay_id, charttime, temperature, heartrate, resprate, o2sat,
	sbp, dbp, rhythm, pain`

const diagnosisCols = `id, stay_id, seq_num, icd_code, icd_version, icd_title`

const reconciliationCols = `id, stay_id, charttime, name, gsn, ndc, etc_rn, etccode, etcdescription`

const dispensingCols = `id, stay_id, charttime, med_rn, name, gsn_rn, gsn`

var catalogSources = map[CatalogField]struct{ table, column string }{
	CatalogGender:         {"edstays", "gender"},
	CatalogRace:           {"edstays", "race"},
	CatalogDisposition:    {"edstays", "disposition"},
	CatalogChiefComplaint: {"triage", "chiefcomplaint"},
}

func (r *repoPG) List(ctx context.Context, preds []Predicate, q PageQuery) ([]*Summary, int, error) {
	vq := newVisitQuery()
	vq.Apply(preds)
	vq.OrderBy(q.OrderBy())

	var total int
	if err := r.db.QueryRow(ctx, vq.CountSQL(), vq.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count encounters: %w", err)
	}

	rows, err := r.db.Query(ctx, vq.DataSQL(), vq.DataArgs(q.Limit(), q.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list encounters: %w", err)
	}
	defer rows.Close()

	var items []*Summary
	for rows.Next() {
		var s Summary
		err := rows.Scan(
			&s.StayID, &s.SubjectID, &s.HadmID, &s.InTime, &s.OutTime,
			&s.Gender, &s.Race, &s.ArrivalTransport, &s.Disposition,
			&s.ChiefComplaint, &s.Acuity,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan encounter: %w", err)
		}
		s.DurationHours = s.Visit.DurationHours()
		items = append(items, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate encounters: %w", err)
	}
	return items, total, nil
}

func (r *repoPG) GetVisit(ctx context.Context, stayID int64) (*Visit, error) {
	var v Visit
	err := r.db.QueryRow(ctx, `SELECT `+visitCols+` FROM edstays WHERE stay_id = $1`, stayID).Scan(
		&v.StayID, &v.SubjectID, &v.HadmID, &v.InTime, &v.OutTime,
		&v.Gender, &v.Race, &v.ArrivalTransport, &v.Disposition,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get visit %d: %w", stayID, err)
	}
	return &v, nil
}

func (r *repoPG) GetTriage(ctx context.Context, stayID int64) (*TriageRecord, error) {
	var t TriageRecord
	err := r.db.QueryRow(ctx, `SELECT `+triageCols+` FROM triage WHERE stay_id = $1 ORDER BY id LIMIT 1`, stayID).Scan(
		&t.ID, &t.StayID, &t.Temperature, &t.HeartRate, &t.RespRate, &t.O2Sat, &t.SBP, &t.DBP,
		&t.Pain, &t.Acuity, &t.ChiefComplaint,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get triage %d: %w", stayID, err)
	}
	return &t, nil
}

func (r *repoPG) ListVitals(ctx context.Context, stayID int64) ([]VitalObservation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+vitalCols+` FROM vitalsigns WHERE stay_id = $1 ORDER BY charttime, id`, stayID)
	if err != nil {
		return nil, fmt.Errorf("list vitals %d: %w", stayID, err)
	}
	defer rows.Close()

	var out []VitalObservation
	for rows.Next() {
		var v VitalObservation
		if err := rows.Scan(
			&v.ID, &v.StayID, &v.ChartTime, &v.Temperature, &v.HeartRate, &v.RespRate, &v.O2Sat,
			&v.SBP, &v.DBP, &v.Rhythm, &v.Pain,
		); err != nil {
			return nil, fmt.Errorf("scan vital: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *repoPG) ListDiagnoses(ctx context.Context, stayID int64) ([]DiagnosisEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+diagnosisCols+` FROM diagnoses WHERE stay_id = $1 ORDER BY seq_num, id`, stayID)
	if err != nil {
		return nil, fmt.Errorf("list diagnoses %d: %w", stayID, err)
	}
	defer rows.Close()

	var out []DiagnosisEntry
	for rows.Next() {
		var d DiagnosisEntry
		if err := rows.Scan(&d.ID, &d.StayID, &d.SeqNum, &d.ICDCode, &d.ICDVersion, &d.ICDTitle); err != nil {
			return nil, fmt.Errorf("scan diagnosis: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *repoPG) ListReconciliation(ctx context.Context, stayID int64) ([]ReconciliationRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+reconciliationCols+` FROM medrecon WHERE stay_id = $1 ORDER BY id`, stayID)
	if err != nil {
		return nil, fmt.Errorf("list medrecon %d: %w", stayID, err)
	}
	defer rows.Close()

	var out []ReconciliationRecord
	for rows.Next() {
		var m ReconciliationRecord
		if err := rows.Scan(
			&m.ID, &m.StayID, &m.ChartTime, &m.Name, &m.GSN, &m.NDC, &m.ETCRn, &m.ETCCode, &m.ETCDescription,
		); err != nil {
			return nil, fmt.Errorf("scan medrecon: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repoPG) ListDispensing(ctx context.Context, stayID int64) ([]DispensingRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+dispensingCols+` FROM pyxis WHERE stay_id = $1 ORDER BY id`, stayID)
	if err != nil {
		return nil, fmt.Errorf("list pyxis %d: %w", stayID, err)
	}
	defer rows.Close()

	var out []DispensingRecord
	for rows.Next() {
		var p DispensingRecord
		if err := rows.Scan(&p.ID, &p.StayID, &p.ChartTime, &p.MedRn, &p.Name, &p.GSNRn, &p.GSN); err != nil {
			return nil, fmt.Errorf("scan pyxis: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repoPG) DistinctValues(ctx context.Context, field CatalogField) ([]string, error) {
	src, ok := catalogSources[field]
	if !ok {
		return nil, fmt.Errorf("unknown catalog field %q", field)
	}
	sql := fmt.Sprintf(`SELECT DISTINCT %[2]s FROM %[1]s WHERE %[2]s IS NOT NULL AND %[2]s <> ''`, src.table, src.column)
	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", field, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", field, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *repoPG) ArrivalRange(ctx context.Context) (*time.Time, *time.Time, error) {
	var lo, hi *time.Time
	if err := r.db.QueryRow(ctx, `SELECT MIN(intime), MAX(intime) FROM edstays`).Scan(&lo, &hi); err != nil {
		return nil, nil, fmt.Errorf("arrival range: %w", err)
	}
	return lo, hi, nil
}
