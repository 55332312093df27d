package records

import (
	"net/http"

	"github.com/labtrend/labtrend/internal/platform/auth"
	"github.com/labtrend/labtrend/internal/platform/openapi"
)

var (
	recordNameParam = openapi.Param{Name: "name", In: "path", Description: "Exact record name, URL-encoded"}
	idParam         = openapi.Param{Name: "id", In: "path", Description: "Snapshot id"}
	pageParams      = []openapi.Param{
		{Name: "limit", In: "query", Type: "integer", Description: "Page size, at most 100"},
		{Name: "offset", In: "query", Type: "integer", Description: "Items to skip"},
	}
)

// Operations documents the routes registered by RegisterRoutes. Paths are
// relative to the group the handler is mounted on.
func (h *Handler) Operations() []openapi.Operation {
	const tagRecords, tagSnapshots, tagCorpus = "records", "snapshots", "corpus"
	return []openapi.Operation{
		{
			Method: http.MethodGet, Path: "/records", Tag: tagRecords, Role: auth.RoleReader,
			Summary: "List record names with entry counts",
			Params: append([]openapi.Param{
				{Name: "category", In: "query", Description: "blood or other"},
			}, pageParams...),
			Response: "SeriesPage",
		},
		{
			Method: http.MethodGet, Path: "/records/:name", Tag: tagRecords, Role: auth.RoleReader,
			Summary: "Get one record series, newest first",
			Params:  []openapi.Param{recordNameParam}, Response: "Series",
		},
		{
			Method: http.MethodGet, Path: "/records/:name/chart", Tag: tagRecords, Role: auth.RoleReader,
			Summary: "Trend chart data for a numeric series",
			Params:  []openapi.Param{recordNameParam}, Response: "Chart",
		},
		{
			Method: http.MethodGet, Path: "/records/:name/report", Tag: tagRecords, Role: auth.RoleReader,
			Summary: "Display text for a series; send Accept: text/plain for the raw text",
			Params:  []openapi.Param{recordNameParam}, Response: "Report",
		},
		{
			Method: http.MethodGet, Path: "/query", Tag: tagRecords, Role: auth.RoleReader,
			Summary: "Resolve a free-text question to record series",
			Params: []openapi.Param{
				{Name: "q", In: "query", Required: true, Description: "Test name or question"},
			},
			Response: "QueryResult",
		},
		{
			Method: http.MethodGet, Path: "/abnormal", Tag: tagRecords, Role: auth.RoleReader,
			Summary: "Out-of-range results grouped by series", Response: "[]AbnormalSeries",
		},
		{
			Method: http.MethodGet, Path: "/status", Tag: tagCorpus, Role: auth.RoleReader,
			Summary: "Describe the corpus being served", Response: "LoadStatus",
		},
		{
			Method: http.MethodPost, Path: "/reload", Tag: tagCorpus, Role: auth.RoleAdmin,
			Summary: "Rebuild the corpus from the data folder", Response: "LoadStatus",
		},
		{
			Method: http.MethodGet, Path: "/snapshots", Tag: tagSnapshots, Role: auth.RoleReader,
			Summary: "List stored snapshots, newest first",
			Params:  pageParams, Response: "SnapshotPage",
		},
		{
			Method: http.MethodPost, Path: "/snapshots", Tag: tagSnapshots, Role: auth.RoleAdmin,
			Summary:     "Store the served corpus as a snapshot",
			RequestBody: "CreateSnapshot", Status: http.StatusCreated, Response: "Snapshot",
		},
		{
			Method: http.MethodPost, Path: "/snapshots/:id/restore", Tag: tagSnapshots, Role: auth.RoleAdmin,
			Summary: "Serve a stored snapshot in place of the loaded corpus",
			Params:  []openapi.Param{idParam}, Response: "LoadStatus",
		},
		{
			Method: http.MethodDelete, Path: "/snapshots/:id", Tag: tagSnapshots, Role: auth.RoleAdmin,
			Summary: "Delete a snapshot and its entries",
			Params:  []openapi.Param{idParam}, Status: http.StatusNoContent,
		},
	}
}

// Schemas returns the component schemas referenced by Operations.
func Schemas() map[string]interface{} {
	page := func(item string) map[string]interface{} {
		return openapi.Object(map[string]interface{}{
			"data":     openapi.ArrayOf(item),
			"total":    openapi.Integer(),
			"limit":    openapi.Integer(),
			"offset":   openapi.Integer(),
			"has_more": openapi.Boolean(),
		}, "data", "total", "limit", "offset", "has_more")
	}
	return map[string]interface{}{
		"Entry": openapi.Object(map[string]interface{}{
			"Date":            openapi.String(),
			"Value":           openapi.String(),
			"Unit":            openapi.String(),
			"Reference Range": openapi.String(),
			"Status":          openapi.String(),
			"Type":            openapi.String(),
		}, "Date", "Value", "Unit", "Reference Range", "Status", "Type"),
		"SeriesSummary": openapi.Object(map[string]interface{}{
			"name":     openapi.String(),
			"type":     openapi.String(),
			"count":    openapi.Integer(),
			"category": openapi.Enum("blood", "other"),
		}, "name", "type", "count", "category"),
		"SeriesPage": page("SeriesSummary"),
		"Series": openapi.Object(map[string]interface{}{
			"name":    openapi.String(),
			"type":    openapi.String(),
			"entries": openapi.ArrayOf("Entry"),
		}, "name", "type", "entries"),
		"QueryResult": openapi.Object(map[string]interface{}{
			"query":   openapi.String(),
			"tier":    openapi.Enum("normalized", "exact", "all-words", "substring", "fuzzy"),
			"matches": openapi.ArrayOf("Series"),
		}, "query", "tier", "matches"),
		"AbnormalSeries": openapi.Object(map[string]interface{}{
			"name":     openapi.String(),
			"category": openapi.Enum("blood", "other"),
			"entries":  openapi.ArrayOf("Entry"),
		}, "name", "category", "entries"),
		"ChartPoint": openapi.Object(map[string]interface{}{
			"date":   openapi.String(),
			"value":  openapi.Number(),
			"status": openapi.String(),
			"color":  openapi.String(),
		}),
		"Chart": openapi.Object(map[string]interface{}{
			"name":   openapi.String(),
			"unit":   openapi.String(),
			"points": openapi.ArrayOf("ChartPoint"),
			"band": openapi.Object(map[string]interface{}{
				"low":  openapi.Number(),
				"high": openapi.Number(),
			}),
		}, "name", "points"),
		"Report": openapi.Object(map[string]interface{}{
			"name": openapi.String(),
			"text": openapi.String(),
		}, "name", "text"),
		"LoadStatus": openapi.Object(map[string]interface{}{
			"source":    openapi.Enum(SourceNone, SourceFiles, SourceSnapshot),
			"batch_id":  openapi.Format("uuid"),
			"loaded_at": openapi.Format("date-time"),
			"files":     openapi.Integer(),
			"parsed":    openapi.Integer(),
			"empty":     openapi.Integer(),
			"skipped":   openapi.Integer(),
			"failed":    openapi.Integer(),
			"names":     openapi.Integer(),
			"entries":   openapi.Integer(),
		}, "source", "names", "entries"),
		"Snapshot": openapi.Object(map[string]interface{}{
			"id":         openapi.Format("uuid"),
			"label":      openapi.String(),
			"batch_id":   openapi.Format("uuid"),
			"names":      openapi.Integer(),
			"entries":    openapi.Integer(),
			"created_at": openapi.Format("date-time"),
		}, "id", "label", "names", "entries", "created_at"),
		"SnapshotPage": page("Snapshot"),
		"CreateSnapshot": openapi.Object(map[string]interface{}{
			"label": openapi.String(),
		}),
	}
}
