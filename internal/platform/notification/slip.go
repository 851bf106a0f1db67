package notification

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// BookingDetails is what the confirmation mail and the PDF slip show.
type BookingDetails struct {
	AppointmentID int64
	PatientName   string
	PatientEmail  string
	DoctorName    string
	ServiceName   string
	ServicePrice  string
	Date          string
	Time          string
	Status        string
	Timezone      string
}

func (b BookingDetails) templateData() map[string]string {
	return map[string]string{
		"appointment_id": fmt.Sprintf("%d", b.AppointmentID),
		"patient_name":   b.PatientName,
		"doctor_name":    b.DoctorName,
		"service_name":   b.ServiceName,
		"date":           b.Date,
		"time":           b.Time,
		"timezone":       b.Timezone,
	}
}

// SlipFileName is the attachment name for a booking's slip.
func SlipFileName(appointmentID int64) string {
	return fmt.Sprintf("appointment-%d.pdf", appointmentID)
}

// RenderSlip draws a one-page A4 appointment slip.
func RenderSlip(b BookingDetails) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(20, 60, 120)
	pdf.CellFormat(0, 12, "Appointment Confirmation", "1", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetTextColor(0, 0, 0)
	addSlipRow(pdf, "Appointment No.", fmt.Sprintf("%d", b.AppointmentID))
	addSlipRow(pdf, "Patient", b.PatientName)
	addSlipRow(pdf, "Doctor", b.DoctorName)
	addSlipRow(pdf, "Service", b.ServiceName)
	if b.ServicePrice != "" {
		addSlipRow(pdf, "Price", b.ServicePrice)
	}
	addSlipRow(pdf, "Date", b.Date)
	when := b.Time
	if b.Timezone != "" {
		when += " (" + b.Timezone + ")"
	}
	addSlipRow(pdf, "Time", when)
	addSlipRow(pdf, "Status", b.Status)

	pdf.Ln(8)
	pdf.SetFont("Arial", "I", 10)
	pdf.MultiCell(0, 6, "Please arrive ten minutes before your appointment. "+
		"You can reschedule or cancel it from your account.", "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render slip: %w", err)
	}
	return buf.Bytes(), nil
}

func addSlipRow(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(50, 9, label, "1", 0, "L", false, 0, "")
	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 9, value, "1", 1, "L", false, 0, "")
}
