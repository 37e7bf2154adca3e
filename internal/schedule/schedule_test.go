package schedule

import (
	"testing"
	"time"

	"horse.fit/rankpulse/internal/db"
)

func int16Ptr(v int16) *int16    { return &v }
func strPtr(v string) *string    { return &v }
func at(value string) time.Time {
	ts, err := time.Parse("2006-01-02 15:04", value)
	if err != nil {
		panic(err)
	}
	return ts
}

func TestImportDueBoundaries(t *testing.T) {
	t.Parallel()

	site := db.Site{
		ImportWeekday: int16Ptr(int16(time.Monday)),
		ImportSlot:    strPtr(SlotMorning),
	}

	// 2026-03-02 is a Monday.
	if !ImportDue(site, at("2026-03-02 09:00")) {
		t.Fatal("expected import due Monday 09:00")
	}
	if ImportDue(site, at("2026-03-02 15:00")) {
		t.Fatal("expected import not due Monday 15:00")
	}
	if ImportDue(site, at("2026-03-03 09:00")) {
		t.Fatal("expected import not due Tuesday 09:00")
	}
}

func TestImportDueUnsetConfiguration(t *testing.T) {
	t.Parallel()

	if ImportDue(db.Site{}, at("2026-03-02 09:00")) {
		t.Fatal("expected unset schedule to never be due")
	}
	if ImportDue(db.Site{ImportWeekday: int16Ptr(1)}, at("2026-03-02 09:00")) {
		t.Fatal("expected missing slot to never be due")
	}
}

func TestReportDueWeekOfMonth(t *testing.T) {
	t.Parallel()

	site := db.Site{
		ReportWeekday:     int16Ptr(int16(time.Friday)),
		ReportWeekOfMonth: int16Ptr(1),
		ReportSlot:        strPtr(SlotAfternoon),
	}

	// 2026-03-06 is the first Friday of March 2026.
	if !ReportDue(site, at("2026-03-06 14:00")) {
		t.Fatal("expected report due on first Friday afternoon")
	}
	// 2026-03-13 is the second Friday.
	if ReportDue(site, at("2026-03-13 14:00")) {
		t.Fatal("expected report not due on second Friday")
	}
}

func TestReportDueLastWeekOfMonth(t *testing.T) {
	t.Parallel()

	site := db.Site{
		ReportWeekday:     int16Ptr(int16(time.Friday)),
		ReportWeekOfMonth: int16Ptr(LastWeekOfMonth),
		ReportSlot:        strPtr(SlotEvening),
	}

	// 2026-03-27 is the last Friday of March 2026.
	if !ReportDue(site, at("2026-03-27 19:00")) {
		t.Fatal("expected report due on last Friday evening")
	}
	if ReportDue(site, at("2026-03-20 19:00")) {
		t.Fatal("expected report not due on a non-final Friday")
	}
}

func TestEvaluateCarriesSiteIdentity(t *testing.T) {
	t.Parallel()

	site := db.Site{
		SiteUUID:      "abc-123",
		Slug:          "acme",
		Name:          "ACME",
		PropertyURL:   "https://acme.example/",
		ImportWeekday: int16Ptr(int16(time.Monday)),
		ImportSlot:    strPtr(SlotMorning),
	}

	status := Evaluate(site, at("2026-03-02 09:00"))
	if !status.ImportDue || status.ReportDue {
		t.Fatalf("unexpected due flags: %+v", status)
	}
	if status.Slug != "acme" || status.PropertyURL != "https://acme.example/" {
		t.Fatalf("expected site identity in status, got %+v", status)
	}
}

func TestValidSlot(t *testing.T) {
	t.Parallel()

	if !ValidSlot(" Morning ") {
		t.Fatal("expected morning to be a valid slot")
	}
	if ValidSlot("midnight") {
		t.Fatal("expected midnight to be invalid")
	}
}
