package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/matchreview_backend/config"
	"bitbucket.org/mmdatafocus/matchreview_backend/models"
	"bitbucket.org/mmdatafocus/matchreview_backend/utils"
)

// exportHandler streams the current dataset as an .xlsx download, optionally
// narrowed to one recommendation. Export reads the review cache, so unsaved
// pending edits are included.
func exportHandler(session *models.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows := session.Snapshot()
		if recommendation := c.Query("recommendation"); recommendation != "" {
			filtered := rows[:0]
			for _, row := range rows {
				if row.Recommendation == recommendation {
					filtered = append(filtered, row)
				}
			}
			rows = filtered
		}
		writeWorkbook(c, rows)
	}
}

// exportSelectedHandler exports only the requested row ids, in the order
// given. Unknown ids are skipped rather than failing the whole download.
func exportSelectedHandler(session *models.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			RowIDs []int `json:"row_ids" binding:"required,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No rows selected"})
			return
		}
		var rows []*models.Row
		for _, rowID := range utils.UniqueSlice(req.RowIDs) {
			row, err := session.Record(rowID)
			if err != nil {
				continue
			}
			rows = append(rows, row)
		}
		if len(rows) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "No rows selected"})
			return
		}
		writeWorkbook(c, rows)
	}
}

func writeWorkbook(c *gin.Context, rows []*models.Row) {
	logger := config.GetLogger()

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	for i, column := range models.Columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		f.SetCellValue(sheet, cell, column)
	}
	for r, row := range rows {
		for i, column := range models.Columns {
			cell, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			f.SetCellValue(sheet, cell, row.Get(column))
		}
	}

	filename := fmt.Sprintf("match_review_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename="+filename)
	if err := f.Write(c.Writer); err != nil {
		config.LogError(logger, "exports.go", "writeWorkbook", "f.Write", strconv.Itoa(len(rows)), err)
	}
}
