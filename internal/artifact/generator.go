package artifact

import (
	"bytes"
	"fmt"
	"time"

	"rezerva/internal/models"

	"github.com/go-pdf/fpdf"
)

// Artifact is a generated confirmation voucher: the rendered bytes plus
// the storage path derived for them. Paths embed a generation timestamp,
// so regenerations never overwrite earlier artifacts.
type Artifact struct {
	Buffer []byte
	Path   string
}

// GenerationError reports malformed or missing input to the renderer.
// Callers recover from it locally; it must never abort a delivery job.
type GenerationError struct {
	Field  string
	Reason string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("voucher generation failed: %s %s", e.Field, e.Reason)
}

// Generator renders reservation payloads into PDF vouchers. It is pure:
// bytes in, bytes out, persistence is the store's job.
type Generator struct {
	agencyName string
	now        func() time.Time
}

func NewGenerator(agencyName string) *Generator {
	if agencyName == "" {
		agencyName = "Rezerva Travel"
	}
	return &Generator{agencyName: agencyName, now: time.Now}
}

// Generate renders the voucher for a reservation. The template is chosen
// by the primary service category; unknown or missing categories fall
// back to the default layout.
func (g *Generator) Generate(res *models.Reservation) (*Artifact, error) {
	if res == nil {
		return nil, &GenerationError{Field: "reservation", Reason: "is missing"}
	}
	if res.ReservationNumber == "" {
		return nil, &GenerationError{Field: "reservation_number", Reason: "is missing"}
	}
	if len(res.Travellers) == 0 {
		return nil, &GenerationError{Field: "travellers", Reason: "list is empty"}
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Booking Confirmation %s", res.ReservationNumber), false)
	pdf.AddPage()

	g.writeHeader(pdf, res)
	g.writeTravellers(pdf, res)

	switch res.PrimaryCategory() {
	case models.CategoryLodging:
		g.writeLodging(pdf, res)
	case models.CategoryTransport:
		g.writeTransport(pdf, res)
	default:
		g.writeGenericServices(pdf, res)
	}

	g.writeFooter(pdf, res)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &GenerationError{Field: "document", Reason: fmt.Sprintf("rendering failed: %v", err)}
	}

	return &Artifact{
		Buffer: buf.Bytes(),
		Path:   VoucherPath(res.ReservationNumber, g.now()),
	}, nil
}

// VoucherPath derives the storage path for a voucher. The timestamp keeps
// paths unique across regenerations.
func VoucherPath(reservationNumber string, at time.Time) string {
	return fmt.Sprintf("%s_%s.pdf", reservationNumber, at.UTC().Format("20060102T150405"))
}

func (g *Generator) writeHeader(pdf *fpdf.Fpdf, res *models.Reservation) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, g.agencyName)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, "Booking Confirmation")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, fmt.Sprintf("Reservation number: %s", res.ReservationNumber))
	pdf.Ln(6)
	if res.ConfirmationNumber != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Confirmation number: %s", res.ConfirmationNumber))
		pdf.Ln(6)
	}
	if res.TotalAmount > 0 {
		pdf.Cell(0, 6, fmt.Sprintf("Total: %.2f %s", res.TotalAmount, res.Currency))
		pdf.Ln(6)
	}
	pdf.Ln(4)
}

func (g *Generator) writeTravellers(pdf *fpdf.Fpdf, res *models.Reservation) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Travellers")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	for _, t := range res.Travellers {
		line := t.FullName()
		if t.IsLeader {
			line += " (lead traveller)"
		}
		pdf.Cell(0, 6, line)
		pdf.Ln(6)
	}
	pdf.Ln(4)
}

func (g *Generator) writeLodging(pdf *fpdf.Fpdf, res *models.Reservation) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Stay details")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	for _, s := range res.Services {
		pdf.Cell(0, 6, s.Name)
		pdf.Ln(6)
		if s.RoomType != "" {
			pdf.Cell(0, 6, fmt.Sprintf("Room: %s", s.RoomType))
			pdf.Ln(6)
		}
		pdf.Cell(0, 6, fmt.Sprintf("Check-in: %s", s.StartDate.Format("02 Jan 2006")))
		pdf.Ln(6)
		if !s.EndDate.IsZero() {
			pdf.Cell(0, 6, fmt.Sprintf("Check-out: %s", s.EndDate.Format("02 Jan 2006")))
			pdf.Ln(6)
		}
		pdf.Ln(2)
	}
}

func (g *Generator) writeTransport(pdf *fpdf.Fpdf, res *models.Reservation) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Itinerary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	for _, s := range res.Services {
		pdf.Cell(0, 6, s.Name)
		pdf.Ln(6)
		if s.Origin != "" || s.Destination != "" {
			pdf.Cell(0, 6, fmt.Sprintf("%s - %s", s.Origin, s.Destination))
			pdf.Ln(6)
		}
		pdf.Cell(0, 6, fmt.Sprintf("Departure: %s", s.StartDate.Format("02 Jan 2006 15:04")))
		pdf.Ln(6)
		pdf.Ln(2)
	}
}

func (g *Generator) writeGenericServices(pdf *fpdf.Fpdf, res *models.Reservation) {
	if len(res.Services) == 0 {
		return
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 7, "Services")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	for _, s := range res.Services {
		pdf.Cell(0, 6, fmt.Sprintf("%s (%s)", s.Name, s.StartDate.Format("02 Jan 2006")))
		pdf.Ln(6)
	}
	pdf.Ln(2)
}

func (g *Generator) writeFooter(pdf *fpdf.Fpdf, res *models.Reservation) {
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.Cell(0, 5, fmt.Sprintf("Generated %s. Please present this voucher on arrival.", g.now().UTC().Format("02 Jan 2006 15:04 MST")))
}
