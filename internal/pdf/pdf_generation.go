package pdf

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"calendartask/internal/models"
)

// Generator renders an agenda (удобно мокать в тестах).
type Generator interface {
	Render(w io.Writer, title string, tasks []models.Task) error
}

// AgendaGenerator lays tasks out as an A4 table, one row per task.
type AgendaGenerator struct {
	FontPath string // TTF with wide glyph coverage; empty means core Helvetica
	Location *time.Location
	fontName string
}

func NewAgendaGenerator(fontPath string, loc *time.Location) *AgendaGenerator {
	if loc == nil {
		loc = time.UTC
	}
	g := &AgendaGenerator{FontPath: fontPath, Location: loc, fontName: "Helvetica"}
	if fontPath != "" {
		g.fontName = "AgendaFont"
	}
	return g
}

var columns = []struct {
	title string
	width float64
}{
	{"Date", 26},
	{"Time", 28},
	{"Title", 76},
	{"Priority", 20},
	{"Status", 24},
}

func (g *AgendaGenerator) Render(w io.Writer, title string, tasks []models.Task) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAuthor("calendartask", false)
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 18)

	tr := func(s string) string { return s }
	if g.FontPath != "" {
		pdf.AddUTF8Font(g.fontName, "", g.FontPath)
		pdf.AddUTF8Font(g.fontName, "B", g.FontPath)
	} else {
		tr = pdf.UnicodeTranslatorFromDescriptor("")
	}

	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont(g.fontName, "", 9)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	// ===== Заголовок
	pdf.SetFont(g.fontName, "B", 16)
	pdf.CellFormat(0, 10, tr(title), "", 1, "C", false, 0, "")
	pdf.SetFont(g.fontName, "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("%d task(s), times in %s", len(tasks), g.Location), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	g.header(pdf)
	if len(tasks) == 0 {
		pdf.SetFont(g.fontName, "", 10)
		pdf.CellFormat(0, 8, "Nothing scheduled.", "1", 1, "C", false, 0, "")
	}

	pdf.SetFont(g.fontName, "", 10)
	fill := false
	for i := range tasks {
		t := &tasks[i]
		if pdf.GetY() > 270 {
			pdf.AddPage()
			g.header(pdf)
			pdf.SetFont(g.fontName, "", 10)
		}
		cells := []string{
			t.StartTime.In(g.Location).Format("2006-01-02"),
			g.timeRange(t),
			tr(truncate(t.Title, 48)),
			string(t.Priority),
			string(t.Status),
		}
		pdf.SetFillColor(245, 245, 245)
		for c, col := range columns {
			pdf.CellFormat(col.width, 7, cells[c], "1", 0, "L", fill, 0, "")
		}
		pdf.Ln(-1)
		fill = !fill
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render agenda: %w", err)
	}
	return nil
}

func (g *AgendaGenerator) header(pdf *gofpdf.Fpdf) {
	pdf.SetFont(g.fontName, "B", 10)
	pdf.SetFillColor(255, 228, 181)
	for _, col := range columns {
		pdf.CellFormat(col.width, 8, col.title, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
}

func (g *AgendaGenerator) timeRange(t *models.Task) string {
	if t.AllDay {
		return "all day"
	}
	start := t.StartTime.In(g.Location).Format("15:04")
	if t.EndTime == nil {
		return start
	}
	return start + "-" + t.EndTime.In(g.Location).Format("15:04")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
