package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"bitbucket.org/mmdatafocus/matchreview_backend/config"
	"bitbucket.org/mmdatafocus/matchreview_backend/datasource"
	"bitbucket.org/mmdatafocus/matchreview_backend/models"
	"bitbucket.org/mmdatafocus/matchreview_backend/utils"
)

func statusForError(err error) int {
	switch {
	case errors.Is(err, utils.ErrorInvalidField):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrorInvalidRowId):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrorSaveInFlight):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// filterRequest is the filter block shared by the records endpoint (query
// string) and search/replace bodies (JSON). It resolves to the query
// engine's parameters.
type filterRequest struct {
	Recommendation string   `json:"recommendation"`
	SSNMatch       string   `json:"ssn_match"`
	MinNameScore   *float64 `json:"min_name_score"`
	MaxNameScore   *float64 `json:"max_name_score"`
	MinAddrScore   *float64 `json:"min_addr_score"`
	MaxAddrScore   *float64 `json:"max_addr_score"`
	Search         string   `json:"search"`
	SearchColumn   string   `json:"search_column"`
}

func (f filterRequest) toParams() models.QueryParams {
	return models.QueryParams{
		Recommendations: utils.SplitAndTrim(f.Recommendation),
		SSNBucket:       f.SSNMatch,
		MinNameScore:    f.MinNameScore,
		MaxNameScore:    f.MaxNameScore,
		MinAddrScore:    f.MinAddrScore,
		MaxAddrScore:    f.MaxAddrScore,
		Search:          f.Search,
		SearchColumn:    f.SearchColumn,
	}
}

func queryFloat(c *gin.Context, key string) *float64 {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &f
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func parseQueryParams(c *gin.Context) models.QueryParams {
	params := filterRequest{
		Recommendation: c.Query("recommendation"),
		SSNMatch:       c.Query("ssn_match"),
		MinNameScore:   queryFloat(c, "min_name_score"),
		MaxNameScore:   queryFloat(c, "max_name_score"),
		MinAddrScore:   queryFloat(c, "min_addr_score"),
		MaxAddrScore:   queryFloat(c, "max_addr_score"),
		Search:         c.Query("search[value]"),
		SearchColumn:   c.Query("search_column"),
	}.toParams()

	params.Start = queryInt(c, "start", 0)
	params.Length = queryInt(c, "length", 25)

	// DataTables ordering: resolve the ordered column's data name so sorting
	// survives column reorder drags. Falls back to plain sort/dir params.
	sortField := c.Query("sort")
	sortDir := c.DefaultQuery("dir", "asc")
	if orderCol := strings.TrimSpace(c.Query("order[0][column]")); orderCol != "" {
		if colData := c.Query(fmt.Sprintf("columns[%s][data]", orderCol)); colData != "" {
			sortField = colData
			sortDir = c.DefaultQuery("order[0][dir]", "asc")
		}
	}
	if sortField != "" && models.SortableFields[sortField] {
		params.SortField = sortField
		params.SortDesc = strings.EqualFold(sortDir, "desc")
	}
	return params
}

func recordsHandler(session *models.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		params := parseQueryParams(c)
		result := session.Query(params)
		c.JSON(http.StatusOK, gin.H{
			"draw":            queryInt(c, "draw", 1),
			"recordsTotal":    result.Total,
			"recordsFiltered": result.Filtered,
			"data":            result.Rows,
		})
	}
}

func recommendationsHandler(session *models.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, session.Recommendations())
	}
}

func statsHandler(session *models.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		if session.RowCount() == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "No data available"})
			return
		}
		c.JSON(http.StatusOK, session.Stats())
	}
}

func recordHandler(session *models.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		rowID, err := strconv.Atoi(c.Param("row_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid row id"})
			return
		}
		row, err := session.Record(rowID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Invalid row_id"})
			return
		}
		c.JSON(http.StatusOK, row)
	}
}

type editRequest struct {
	RowID *int   `json:"row_id" binding:"required"`
	Field string `json:"field" binding:"required"`
	Value any    `json:"value"`
}

func editHandler(session *models.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req editRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
			return
		}
		result, err := session.Edit(c.Request.Context(), *req.RowID, req.Field, req.Value)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error(), "pending_count": result.PendingCount})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"accepted":      true,
			"pending_count": result.PendingCount,
			"message":       result.Message,
		})
	}
}

type bulkEditRequest struct {
	RowIDs []int  `json:"row_ids" binding:"required,min=1"`
	Field  string `json:"field" binding:"required"`
	Value  any    `json:"value"`
}

func bulkEditHandler(session *models.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bulkEditRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No row IDs provided"})
			return
		}
		updated, errs := session.BulkEdit(c.Request.Context(), req.RowIDs, req.Field, req.Value)
		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"updated_count": updated,
			"errors":        errList(errs),
			"pending_count": session.PendingCount(),
		})
	}
}

type approveRequest struct {
	RowID          *int   `json:"row_id" binding:"required"`
	Recommendation string `json:"recommendation"`
}

func approveHandler(session *models.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req approveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "row_id is required"})
			return
		}
		result, err := session.Approve(c.Request.Context(), *req.RowID, req.Recommendation)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"pending_count": result.PendingCount,
		})
	}
}

type bulkApproveRequest struct {
	RowIDs         []int  `json:"row_ids" binding:"required,min=1"`
	Recommendation string `json:"recommendation"`
}

func bulkApproveHandler(session *models.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req bulkApproveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No row IDs provided"})
			return
		}
		updated, errs := session.BulkApprove(c.Request.Context(), req.RowIDs, req.Recommendation)
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"updated": updated,
			"errors":  errList(errs),
		})
	}
}

type importIDsRequest struct {
	Field     string   `json:"field" binding:"required,oneof=jib rev vendor"`
	CanvasIDs []string `json:"canvas_ids" binding:"required,min=1"`
}

func importIDsHandler(session *models.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req importIDsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "field and canvas_ids are required"})
			return
		}
		result, err := session.ImportIDs(c.Request.Context(), req.Field, req.CanvasIDs)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		message := fmt.Sprintf("Checked %s for %d records (unsaved)", strings.ToUpper(req.Field), result.Updated)
		if result.Updated == 0 {
			message = fmt.Sprintf("No new matches. %d already checked.", result.TotalInFile)
		}
		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"updated":       result.Updated,
			"total_in_file": result.TotalInFile,
			"pending_count": result.PendingCount,
			"message":       message,
		})
	}
}

func saveHandler(session *models.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "session.save")
		defer span.End()

		result := session.Save(ctx)
		if result.Saved == 0 && len(result.Errors) > 0 {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":          strings.Join(result.Errors, "; "),
				"saved_count":    0,
				"pending_count":  result.Pending,
				"failed_row_ids": result.FailedRowIDs,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"saved_count":    result.Saved,
			"pending_count":  result.Pending,
			"failed_row_ids": result.FailedRowIDs,
			"errors":         errList(result.Errors),
		})
	}
}

func undoHandler(session *models.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		applied, err := session.Undo(c.Request.Context())
		if err != nil && !applied {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, undoRedoState(session, applied))
	}
}

func redoHandler(session *models.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		applied, err := session.Redo(c.Request.Context())
		if err != nil && !applied {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, undoRedoState(session, applied))
	}
}

func undoRedoState(session *models.Session, applied bool) gin.H {
	return gin.H{
		"applied":       applied,
		"can_undo":      session.CanUndo(),
		"can_redo":      session.CanRedo(),
		"pending_count": session.PendingCount(),
	}
}

type searchReplaceRequest struct {
	Term          string        `json:"term" binding:"required"`
	Replacement   string        `json:"replacement"`
	Column        string        `json:"column"`
	Columns       []string      `json:"columns"`
	CaseSensitive bool          `json:"case_sensitive"`
	Mode          string        `json:"mode" binding:"required,oneof=find replace_one replace_all"`
	MatchIndex    int           `json:"match_index"`
	Filters       filterRequest `json:"filters"`
}

func searchReplaceHandler(session *models.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req searchReplaceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "term and mode are required"})
			return
		}
		columns := req.Columns
		if len(columns) == 0 && req.Column != "" {
			columns = []string{req.Column}
		}

		// Search and replace operate over the visible row set only; rows
		// hidden by the active filters are never touched.
		scope := session.VisibleRowIDs(req.Filters.toParams())

		switch req.Mode {
		case "find":
			result, err := session.Find(req.Term, columns, req.CaseSensitive, scope)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"match_count":      result.MatchCount,
				"matching_row_ids": result.RowIDs,
				"cells":            result.Cells,
			})
		case "replace_one":
			changed, err := session.ReplaceOne(c.Request.Context(), req.Term, req.Replacement, req.Column, req.CaseSensitive, req.MatchIndex, scope)
			if err != nil {
				c.JSON(statusForError(err), gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"changed":       changed,
				"pending_count": session.PendingCount(),
			})
		case "replace_all":
			result, err := session.ReplaceAll(c.Request.Context(), req.Term, req.Replacement, columns, req.CaseSensitive, scope)
			if err != nil {
				c.JSON(statusForError(err), gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"replaced_count":     result.Replaced,
				"affected_row_count": result.AffectedRows,
				"pending_count":      result.PendingCount,
			})
		}
	}
}

func reloadHandler(session *models.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "dataset.reload")
		defer span.End()

		count, err := session.Load(ctx)
		if err != nil {
			span.RecordError(err)
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"records": count,
			"message": fmt.Sprintf("Reloaded %d records", count),
		})
	}
}

func updateLogHandler(audit models.AuditStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := audit.ReadRecent(c.Request.Context(), queryInt(c, "limit", 100))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

func datasourcesHandler(registry *config.DatasourceRegistry, session *models.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		type listEntry struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Type string `json:"type"`
		}
		entries := make([]listEntry, 0, len(registry.Datasources))
		for _, id := range registry.IDs() {
			cfg := registry.Datasources[id]
			entries = append(entries, listEntry{
				ID:   id,
				Name: cfg.DisplayName(id),
				Type: cfg.SourceType,
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"datasources": entries,
			"active":      registry.Active,
		})
	}
}

type switchDatasourceRequest struct {
	SourceID string `json:"source_id" binding:"required"`
	FilePath string `json:"file_path"`
}

func switchDatasourceHandler(registry *config.DatasourceRegistry, session *models.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		var req switchDatasourceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "source_id is required"})
			return
		}
		cfg, ok := registry.Get(req.SourceID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Data source %q not found", req.SourceID)})
			return
		}
		if req.FilePath != "" && (cfg.SourceType == "excel" || cfg.SourceType == "csv") {
			cfg.FilePath = req.FilePath
		}

		ds, err := datasource.Open(cfg)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		count, err := session.SwitchDataset(c.Request.Context(), ds, req.SourceID)
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		// Persist the choice only after the new source loaded cleanly.
		if err := registry.SetActive(req.SourceID, req.FilePath); err != nil {
			config.LogError(logger, "handlers.go", "switchDatasourceHandler", "registry.SetActive", req.SourceID, err)
		}

		name := cfg.DisplayName(req.SourceID)
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"active":  req.SourceID,
			"name":    name,
			"records": count,
			"message": fmt.Sprintf("Switched to %s", name),
		})
	}
}

func errList(errs []string) []string {
	if errs == nil {
		return []string{}
	}
	return errs
}
