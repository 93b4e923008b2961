package main

import (
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"goplan/solver"
)

// benchRow is one query outcome in the report.
type benchRow struct {
	Query     int
	Goal      []float64
	Solved    bool
	Predicted bool
	ElapsedMS float64
	Calls     int
	Waypoints int
	PathLen   float64
}

// newBenchRow flattens a solve result. Predicted marks failures returned
// without an engine run, either a threshold rejection or an expired
// deadline.
func newBenchRow(query int, goal []float64, res *solver.Result) benchRow {
	row := benchRow{
		Query:     query,
		Goal:      goal,
		Solved:    !res.Failed(),
		Predicted: res.Failed() && res.NCalls == solver.AbnormalCalls,
		ElapsedMS: float64(res.Elapsed.Microseconds()) / 1e3,
		Calls:     res.NCalls,
	}
	if res.Traj != nil {
		row.Waypoints = res.Traj.Len()
		row.PathLen = res.Traj.Length(nil)
	}
	return row
}

// writeReport saves the per-query outcomes, plus a calibration sheet when
// the meta-solver calibrated a threshold, as an xlsx workbook.
func writeReport(path string, rows []benchRow, calibration *solver.CalibrationReport) error {
	f := excelize.NewFile()

	const sheet = "Queries"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	// Header row
	headers := []string{"query", "goal", "solved", "predicted_infeasible", "elapsed_ms", "calls", "waypoints", "path_length"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	// Data rows
	for r, row := range rows {
		values := []interface{}{
			row.Query,
			formatVec(row.Goal),
			row.Solved,
			row.Predicted,
			row.ElapsedMS,
			row.Calls,
			row.Waypoints,
			row.PathLen,
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	if calibration != nil {
		if err := writeCalibrationSheet(f, calibration); err != nil {
			return err
		}
	}

	return f.SaveAs(path)
}

// writeCalibrationSheet lays out the per-threshold mismatch tallies with a
// summary block beside them.
func writeCalibrationSheet(f *excelize.File, report *solver.CalibrationReport) error {
	const sheet = "Calibration"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	for i, h := range []string{"threshold", "mismatches"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for r, tally := range report.Tallies {
		values := []interface{}{tally.Threshold, tally.Mismatches}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	summary := [][2]interface{}{
		{"chosen_threshold", report.Chosen},
		{"accuracy", report.Accuracy},
		{"nn_dist_q1", report.NeighborDistance.Q1},
		{"nn_dist_median", report.NeighborDistance.Q2},
		{"nn_dist_q3", report.NeighborDistance.Q3},
	}
	for r, pair := range summary {
		for c, v := range pair {
			cell, _ := excelize.CoordinatesToCellName(c+4, r+1)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// formatVec renders a goal vector compactly for a spreadsheet cell.
func formatVec(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'f', 4, 64)
	}
	return strings.Join(parts, ", ")
}
