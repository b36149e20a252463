// Package export renders a provider's period statistics as an xlsx report
// sent back over the transport as a document.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Ilyushechek/secretar/internal/model"
)

// Period selects how far back a statistics report reaches.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod maps the period menu buttons to a Period.
func ParsePeriod(text string) (Period, bool) {
	switch text {
	case "📊 За день":
		return PeriodDay, true
	case "📅 За неделю":
		return PeriodWeek, true
	case "📆 За месяц":
		return PeriodMonth, true
	}
	return "", false
}

// From returns the period's first record date, inclusive, as YYYY-MM-DD.
// Periods follow calendar boundaries: the week starts on Monday, the month on
// the 1st.
func (p Period) From(now time.Time) string {
	switch p {
	case PeriodWeek:
		offset := (int(now.Weekday()) + 6) % 7 // Monday = 0
		return now.AddDate(0, 0, -offset).Format("2006-01-02")
	case PeriodMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).Format("2006-01-02")
	default:
		return now.Format("2006-01-02")
	}
}

// Label is the period name as it reads after «за» in headings.
func (p Period) Label() string {
	switch p {
	case PeriodWeek:
		return "неделю"
	case PeriodMonth:
		return "месяц"
	default:
		return "день"
	}
}

// Filename names the report after the period and the day it was built.
func Filename(p Period, now time.Time) string {
	return fmt.Sprintf("Отчёт_за_%s_%s.xlsx", p.Label(), now.Format("02.01.2006"))
}

var reportColumns = []string{
	"Дата", "Время", "Услуга", "Клиент", "Стоимость (руб.)", "Адрес", "Статус", "Комментарии",
}

// Workbook renders the period's records as a one-sheet xlsx document: bold
// header row, one row per record, dates in DD.MM.YYYY.
func Workbook(sheet string, records []model.ServiceRecord) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	// Excel caps sheet names at 31 characters; the cap counts characters,
	// so Cyrillic names must be cut at a rune boundary.
	if r := []rune(sheet); len(r) > 31 {
		sheet = string(r[:31])
	}
	f.SetSheetName("Sheet1", sheet)

	for i, col := range reportColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return nil, err
		}
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(reportColumns), 1)
		_ = f.SetCellStyle(sheet, startCell, endCell, style)
	}

	for i, rec := range records {
		row := []interface{}{
			rec.DateLabel(),
			rec.Time,
			rec.ServiceName,
			clientCell(rec),
			rec.Cost,
			rec.Address,
			statusLabel(rec.Status),
			rec.Comments,
		}
		for j, val := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return &buf, nil
}

func clientCell(rec model.ServiceRecord) string {
	if rec.ClientName == "" {
		return fmt.Sprintf("ID %d", rec.ClientID)
	}
	return rec.ClientName
}

func statusLabel(status model.RecordStatus) string {
	switch status {
	case model.RecordCompleted:
		return "Завершена"
	case model.RecordCancelled:
		return "Отменена"
	default:
		return "Активна"
	}
}
