package encounter

import (
	"net/http"

	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/internal/platform/openapi"
	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/pkg/pagination"
)

const docsTag = "Encounters"

// Describe adds the encounter routes and their payload schemas to g.
// prefix is the group the handler is mounted on.
func (h *Handler) Describe(g *openapi.Generator, prefix string) {
	for name, schema := range componentSchemas() {
		g.AddSchema(name, schema)
	}

	badRequest := openapi.Response{Description: "Invalid query parameter", Schema: "Error"}

	g.AddOperation(http.MethodGet, prefix+"/encounters", openapi.Operation{
		ID:      "listEncounters",
		Summary: "List ED visits",
		Tag:     docsTag,
		Params:  append(filterParams(), pageParams()...),
		Responses: map[int]openapi.Response{
			http.StatusOK:         {Description: "One page of visits", Schema: "EncounterPage"},
			http.StatusBadRequest: badRequest,
		},
	})
	g.AddOperation(http.MethodGet, prefix+"/encounters/export", openapi.Operation{
		ID:          "exportEncounters",
		Summary:     "Download the filtered visit list as XLSX",
		Description: "page and per_page are ignored. The row count is capped by EXPORT_MAX_ROWS.",
		Tag:         docsTag,
		Params:      append(filterParams(), sortParams()...),
		Responses: map[int]openapi.Response{
			http.StatusOK: {
				Description: "XLSX workbook",
				ContentType: xlsxContentType,
				Binary:      true,
				Headers: map[string]string{
					"X-Export-Rows":      "Number of rows written",
					"X-Export-Truncated": "Present when the result exceeded the row cap",
				},
			},
			http.StatusBadRequest: badRequest,
		},
	})
	g.AddOperation(http.MethodGet, prefix+"/encounters/:stay_id", openapi.Operation{
		ID:      "getEncounter",
		Summary: "Full clinical timeline of one visit",
		Tag:     docsTag,
		Params: []openapi.Param{
			{Name: "stay_id", In: "path", Type: "integer", Format: "int64"},
		},
		Responses: map[int]openapi.Response{
			http.StatusOK:         {Description: "Visit detail", Schema: "EncounterDetail"},
			http.StatusBadRequest: badRequest,
			http.StatusNotFound:   {Description: "No visit with this stay_id", Schema: "Error"},
		},
	})
	g.AddOperation(http.MethodGet, prefix+"/filters/options", openapi.Operation{
		ID:      "getFilterOptions",
		Summary: "Distinct values for the filter controls",
		Tag:     docsTag,
		Responses: map[int]openapi.Response{
			http.StatusOK: {Description: "Filter catalog", Schema: "FilterCatalog"},
		},
	})
}

func filterParams() []openapi.Param {
	return []openapi.Param{
		{Name: "gender", Description: "Exact match"},
		{Name: "race", Description: "Any of", Repeated: true},
		{Name: "disposition", Description: "Any of", Repeated: true},
		{Name: "date_from", Description: "Arrival on or after (ISO 8601); unparsable values are ignored"},
		{Name: "date_to", Description: "Arrival on or before (ISO 8601); unparsable values are ignored"},
		{Name: "chief_complaint", Description: "Case-insensitive substring"},
	}
}

func sortParams() []openapi.Param {
	return []openapi.Param{
		{
			Name:    "sort_by",
			Enum:    []string{string(SortInTime), string(SortOutTime), string(SortStayID), string(SortDisposition)},
			Default: string(DefaultSort),
		},
		{Name: "sort_order", Enum: []string{"asc", "desc"}, Default: "desc"},
	}
}

func pageParams() []openapi.Param {
	one, maxPerPage := 1, pagination.MaxPerPage
	return append(sortParams(),
		openapi.Param{Name: "page", Type: "integer", Minimum: &one, Default: pagination.DefaultPage},
		openapi.Param{Name: "per_page", Type: "integer", Minimum: &one, Maximum: &maxPerPage, Default: pagination.DefaultPerPage},
	)
}

func componentSchemas() map[string]map[string]interface{} {
	nString := openapi.Nullable(openapi.StringSchema(""))
	nNumber := openapi.Nullable(openapi.NumberSchema())
	nInt := openapi.Nullable(openapi.IntegerSchema(""))
	dateTime := openapi.StringSchema("date-time")
	int64s := openapi.IntegerSchema("int64")

	return map[string]map[string]interface{}{
		"Visit": openapi.ObjectSchema(map[string]interface{}{
			"stay_id":           int64s,
			"subject_id":        int64s,
			"hadm_id":           openapi.Nullable(int64s),
			"intime":            dateTime,
			"outtime":           dateTime,
			"gender":            openapi.StringSchema(""),
			"race":              nString,
			"arrival_transport": nString,
			"disposition":       openapi.StringSchema(""),
		}, "stay_id", "subject_id", "intime", "outtime"),
		"EncounterSummary": openapi.AllOf("Visit", map[string]interface{}{
			"chiefcomplaint": nString,
			"acuity":         nInt,
			"duration_hours": openapi.NumberSchema(),
		}),
		"EncounterPage": openapi.ObjectSchema(map[string]interface{}{
			"items":       openapi.ArraySchema(openapi.Ref("EncounterSummary")),
			"total":       openapi.IntegerSchema(""),
			"page":        openapi.IntegerSchema(""),
			"per_page":    openapi.IntegerSchema(""),
			"total_pages": openapi.IntegerSchema(""),
		}, "items", "total", "page", "per_page", "total_pages"),
		"Triage": openapi.ObjectSchema(map[string]interface{}{
			"temperature":    nNumber,
			"heartrate":      nNumber,
			"resprate":       nNumber,
			"o2sat":          nNumber,
			"sbp":            nNumber,
			"dbp":            nNumber,
			"pain":           nString,
			"acuity":         nInt,
			"chiefcomplaint": nString,
		}),
		"VitalSign": openapi.ObjectSchema(map[string]interface{}{
			"charttime":   dateTime,
			"temperature": nNumber,
			"heartrate":   nNumber,
			"resprate":    nNumber,
			"o2sat":       nNumber,
			"sbp":         nNumber,
			"dbp":         nNumber,
			"rhythm":      nString,
			"pain":        nString,
		}),
		"Diagnosis": openapi.ObjectSchema(map[string]interface{}{
			"seq_num":     openapi.IntegerSchema(""),
			"icd_code":    openapi.StringSchema(""),
			"icd_version": openapi.IntegerSchema(""),
			"icd_title":   nString,
		}),
		"Medication": openapi.ObjectSchema(map[string]interface{}{
			"charttime":   openapi.Nullable(dateTime),
			"name":        nString,
			"source":      openapi.StringSchema(""),
			"gsn":         nString,
			"description": nString,
		}),
		"EncounterDetail": openapi.AllOf("Visit", map[string]interface{}{
			"duration_hours": openapi.NumberSchema(),
			"triage":         openapi.Nullable(openapi.Ref("Triage")),
			"vitalsigns":     openapi.ArraySchema(openapi.Ref("VitalSign")),
			"diagnoses":      openapi.ArraySchema(openapi.Ref("Diagnosis")),
			"medications":    openapi.ArraySchema(openapi.Ref("Medication")),
		}),
		"FilterCatalog": openapi.ObjectSchema(map[string]interface{}{
			"genders":          openapi.ArraySchema(openapi.StringSchema("")),
			"races":            openapi.ArraySchema(openapi.StringSchema("")),
			"dispositions":     openapi.ArraySchema(openapi.StringSchema("")),
			"chief_complaints": openapi.ArraySchema(openapi.StringSchema("")),
			"date_range": openapi.ObjectSchema(map[string]interface{}{
				"min": openapi.Nullable(dateTime),
				"max": openapi.Nullable(dateTime),
			}),
		}),
	}
}
