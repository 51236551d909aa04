package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/careledger/careledger/internal/appointment"
	"github.com/careledger/careledger/internal/audit"
	"github.com/careledger/careledger/internal/events"
	"github.com/careledger/careledger/internal/identity"
	"github.com/careledger/careledger/internal/ledger"
)

// seed populates a ledger state directory with demo appointments and medical
// records by driving the engine directly. Run it while the api-server is
// stopped, then point LEDGER_PATH at the same directory.

const (
	doctorCount      = 12
	patientCount     = 200
	appointmentCount = 600
	recordCount      = 150
	seedDays         = 14
)

var slotStarts = buildSlotGrid()

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	path := os.Getenv("LEDGER_PATH")
	if path == "" {
		log.Fatal("LEDGER_PATH is required")
	}

	stateDB, err := ledger.OpenLevelStateDB(path)
	if err != nil {
		log.Fatalf("open ledger state: %v", err)
	}
	led := ledger.New(stateDB)
	defer func() {
		if err := led.Close(); err != nil {
			log.Printf("error closing ledger: %v", err)
		}
	}()

	svc := appointment.NewService(
		ledger.NewSubmitter(led, 3, 10*time.Millisecond),
		audit.LogSink{},
		events.LogBus{},
	)

	gofakeit.Seed(time.Now().UnixNano())

	ctx := identity.WithPrincipal(context.Background(), identity.Principal{ID: "seed", Role: "service"})

	doctors := makeIDs("DOC", doctorCount)
	patients := makeIDs("PAT", patientCount)

	booked, skipped := seedAppointments(ctx, svc, doctors, patients)
	log.Printf("appointments booked=%d conflicts_skipped=%d", booked, skipped)

	filed, amended := seedRecords(ctx, svc, doctors, patients)
	log.Printf("records filed=%d amended=%d height=%d", filed, amended, led.Height())

	log.Println("seed complete")
}

func makeIDs(prefix string, count int) []string {
	ids := make([]string, count)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%04d", prefix, i+1)
	}
	return ids
}

// buildSlotGrid lists 30-minute starts between 09:00 and 17:00.
func buildSlotGrid() []int {
	var grid []int
	for m := 9 * 60; m < 17*60; m += 30 {
		grid = append(grid, m)
	}
	return grid
}

func clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

func seedAppointments(ctx context.Context, svc *appointment.Service, doctors, patients []string) (booked, skipped int) {
	log.Printf("seeding up to %d appointments across %d doctors", appointmentCount, len(doctors))

	purposes := []string{
		"Annual checkup",
		"Follow-up consultation",
		"Vaccination",
		"Blood pressure review",
		"Lab result discussion",
		"Skin examination",
		"Back pain assessment",
		"Prescription renewal",
	}
	urgencies := []string{"normal", "normal", "normal", "urgent", "emergency"}

	today := time.Now().UTC()

	for i := 0; i < appointmentCount; i++ {
		doctor := doctors[gofakeit.Number(0, len(doctors)-1)]
		patient := patients[gofakeit.Number(0, len(patients)-1)]
		day := today.AddDate(0, 0, gofakeit.Number(1, seedDays))
		start := slotStarts[gofakeit.Number(0, len(slotStarts)-1)]

		reason := fmt.Sprintf(`{"purpose":%q,"urgency":%q}`,
			purposes[gofakeit.Number(0, len(purposes)-1)],
			urgencies[gofakeit.Number(0, len(urgencies)-1)])

		appt, err := svc.Schedule(ctx, appointment.ScheduleRequest{
			AppointmentID: fmt.Sprintf("APT-%05d", i+1),
			PatientID:     patient,
			DoctorID:      doctor,
			Date:          day.Format("2006-01-02"),
			StartTime:     clock(start),
			EndTime:       clock(start + 30),
			ReasonJSON:    reason,
		})
		if err != nil {
			var conflict *appointment.ConflictError
			if errors.As(err, &conflict) {
				skipped++
				continue
			}
			log.Fatalf("seed appointment: %v", err)
		}
		booked++

		// Confirm a share of the bookings so the data has both active states
		if gofakeit.Number(1, 100) <= 40 {
			if _, err := svc.Confirm(ctx, appt.AppointmentID, doctor); err != nil {
				log.Printf("confirm %s: %v", appt.AppointmentID, err)
			}
		}

		if booked%100 == 0 {
			log.Printf("appointments booked: %d", booked)
		}
	}

	return booked, skipped
}

func seedRecords(ctx context.Context, svc *appointment.Service, doctors, patients []string) (filed, amended int) {
	log.Printf("seeding %d medical records", recordCount)

	types := []string{
		string(appointment.RecordTypeConsultation),
		string(appointment.RecordTypeLabResult),
		string(appointment.RecordTypePrescription),
		string(appointment.RecordTypeVaccination),
		string(appointment.RecordTypeImagingReport),
	}
	departments := []string{"General Medicine", "Cardiology", "Dermatology", "Pediatrics", "Orthopedics"}

	today := time.Now().UTC()

	for i := 0; i < recordCount; i++ {
		rec, err := svc.AddRecord(ctx, appointment.RecordRequest{
			RecordID:   fmt.Sprintf("REC-%05d", i+1),
			PatientID:  patients[gofakeit.Number(0, len(patients)-1)],
			DoctorID:   doctors[gofakeit.Number(0, len(doctors)-1)],
			RecordType: types[gofakeit.Number(0, len(types)-1)],
			RecordDate: today.AddDate(0, 0, -gofakeit.Number(1, 365)).Format("2006-01-02"),
			Title:      gofakeit.Sentence(4),
			Department: departments[gofakeit.Number(0, len(departments)-1)],
			Summary:    gofakeit.Sentence(12),
		})
		if err != nil {
			log.Fatalf("seed record: %v", err)
		}
		filed++

		// Amend a share so the demo data shows the append-only trail
		if gofakeit.Number(1, 100) <= 15 {
			if _, err := svc.AmendRecord(ctx, rec.RecordID, "Addendum after chart review", gofakeit.Sentence(10)); err != nil {
				log.Printf("amend %s: %v", rec.RecordID, err)
			} else {
				amended++
			}
		}
	}

	return filed, amended
}
