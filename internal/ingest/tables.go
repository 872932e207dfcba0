package ingest

// Table maps one MIMIC-IV-ED export file onto its destination table.
type Table struct {
	Name    string
	File    string
	Columns []string
	Row     func(r *Record) []interface{}
}

// Tables lists the load order. edstays comes first so child rows satisfy
// their foreign keys.
var Tables = []Table{
	{
		Name:    "edstays",
		File:    "edstays.csv.gz",
		Columns: []string{"stay_id", "subject_id", "hadm_id", "intime", "outtime", "gender", "race", "arrival_transport", "disposition"},
		Row: func(r *Record) []interface{} {
			stayID := r.RequiredInt64("stay_id")
			intime, outtime := r.RequiredTime("intime"), r.RequiredTime("outtime")
			if outtime.Before(intime) {
				r.fail("outtime", r.raw("outtime"), "departure before arrival")
			}
			return []interface{}{
				stayID,
				r.RequiredInt64("subject_id"),
				r.Int64("hadm_id"),
				intime,
				outtime,
				r.RequiredString("gender"),
				r.String("race"),
				r.String("arrival_transport"),
				r.RequiredString("disposition"),
			}
		},
	},
	{
		Name:    "triage",
		File:    "triage.csv.gz",
		Columns: []string{"subject_id", "stay_id", "temperature", "heartrate", "resprate", "o2sat", "sbp", "dbp", "pain", "acuity", "chiefcomplaint"},
		Row: func(r *Record) []interface{} {
			return []interface{}{
				r.RequiredInt64("subject_id"),
				r.RequiredInt64("stay_id"),
				r.Float("temperature"),
				r.Float("heartrate"),
				r.Float("resprate"),
				r.Float("o2sat"),
				r.Float("sbp"),
				r.Float("dbp"),
				r.String("pain"),
				r.Int32("acuity"),
				r.String("chiefcomplaint"),
			}
		},
	},
	{
		Name:    "vitalsigns",
		File:    "vitalsign.csv.gz",
		Columns: []string{"subject_id", "stay_id", "charttime", "temperature", "heartrate", "resprate", "o2sat", "sbp", "dbp", "rhythm", "pain"},
		Row: func(r *Record) []interface{} {
			return []interface{}{
				r.RequiredInt64("subject_id"),
				r.RequiredInt64("stay_id"),
				r.RequiredTime("charttime"),
				r.Float("temperature"),
				r.Float("heartrate"),
				r.Float("resprate"),
				r.Float("o2sat"),
				r.Float("sbp"),
				r.Float("dbp"),
				r.String("rhythm"),
				r.String("pain"),
			}
		},
	},
	{
		Name:    "diagnoses",
		File:    "diagnosis.csv.gz",
		Columns: []string{"subject_id", "stay_id", "seq_num", "icd_code", "icd_version", "icd_title"},
		Row: func(r *Record) []interface{} {
			return []interface{}{
				r.RequiredInt64("subject_id"),
				r.RequiredInt64("stay_id"),
				r.RequiredInt32("seq_num"),
				r.RequiredString("icd_code"),
				r.RequiredInt32("icd_version"),
				r.String("icd_title"),
			}
		},
	},
	{
		Name:    "medrecon",
		File:    "medrecon.csv.gz",
		Columns: []string{"subject_id", "stay_id", "charttime", "name", "gsn", "ndc", "etc_rn", "etccode", "etcdescription"},
		Row: func(r *Record) []interface{} {
			return []interface{}{
				r.RequiredInt64("subject_id"),
				r.RequiredInt64("stay_id"),
				r.Time("charttime"),
				r.String("name"),
				r.String("gsn"),
				r.String("ndc"),
				r.Int32("etc_rn"),
				r.String("etccode"),
				r.String("etcdescription"),
			}
		},
	},
	{
		Name:    "pyxis",
		File:    "pyxis.csv.gz",
		Columns: []string{"subject_id", "stay_id", "charttime", "med_rn", "name", "gsn_rn", "gsn"},
		Row: func(r *Record) []interface{} {
			return []interface{}{
				r.RequiredInt64("subject_id"),
				r.RequiredInt64("stay_id"),
				r.Time("charttime"),
				r.Int32("med_rn"),
				r.String("name"),
				r.Int32("gsn_rn"),
				r.String("gsn"),
			}
		},
	},
}
