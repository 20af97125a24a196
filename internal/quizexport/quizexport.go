// Package quizexport renders a video's quiz as an Excel workbook.
package quizexport

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/ksandoe/quizmaker/internal/models"
)

// SheetName is the worksheet holding the questions.
const SheetName = "Quiz"

var header = []interface{}{"Segment", "Segment status", "Question", "A", "B", "C", "D", "Correct answer", "Segment error"}

// Item pairs a segment with its question, if one was generated.
type Item struct {
	Segment  models.Segment
	Question *models.Question
}

// Write renders one row per segment, in the given order, to w.
func Write(w io.Writer, video models.Video, items []Item) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "I1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, it := range items {
		row := []interface{}{it.Segment.Position + 1, string(it.Segment.Status)}
		if q := it.Question; q != nil {
			row = append(row, q.QuestionText, q.OptionA, q.OptionB, q.OptionC, q.OptionD, string(q.CorrectAnswer))
		} else {
			row = append(row, "", "", "", "", "", "")
		}
		errMsg := ""
		if it.Segment.ErrorMessage != nil {
			errMsg = *it.Segment.ErrorMessage
		}
		row = append(row, errMsg)

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SheetName, "C", "C", 60); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "D", "G", 30); err != nil {
		return err
	}
	if err := f.SetDocProps(&excelize.DocProperties{Title: video.Title, Creator: "quizmaker"}); err != nil {
		return fmt.Errorf("set document properties: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
