// Package schedule decides when a site's recurring import or report
// cycle is due. All predicates take the reference time as a parameter;
// nothing here reads a wall clock or touches storage.
package schedule

import (
	"strings"
	"time"

	"horse.fit/rankpulse/internal/db"
)

// Slot names. A slot is a coarse time-of-day bucket, not an exact minute.
const (
	SlotMorning   = "morning"
	SlotAfternoon = "afternoon"
	SlotEvening   = "evening"
)

// LastWeekOfMonth selects the final occurrence of a weekday in the month
// when stored in report_week_of_month.
const LastWeekOfMonth int16 = -1

// DueStatus carries both predicate results plus the identifying data the
// notifier needs to compose a message.
type DueStatus struct {
	SiteUUID    string `json:"site_uuid"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	PropertyURL string `json:"property_url"`
	ImportDue   bool   `json:"import_due"`
	ReportDue   bool   `json:"report_due"`
}

// Evaluate runs both due checks for one site at the reference time.
func Evaluate(site db.Site, now time.Time) DueStatus {
	return DueStatus{
		SiteUUID:    site.SiteUUID,
		Slug:        site.Slug,
		Name:        site.Name,
		PropertyURL: site.PropertyURL,
		ImportDue:   ImportDue(site, now),
		ReportDue:   ReportDue(site, now),
	}
}

// ImportDue is true when the reference time falls on the configured
// weekday inside the configured slot. Unset configuration means never due.
func ImportDue(site db.Site, now time.Time) bool {
	if site.ImportWeekday == nil || site.ImportSlot == nil {
		return false
	}
	if int16(now.Weekday()) != *site.ImportWeekday {
		return false
	}
	return slotContains(*site.ImportSlot, now)
}

// ReportDue additionally requires the reference day to be the configured
// occurrence of that weekday within the month (1st..5th, or last).
func ReportDue(site db.Site, now time.Time) bool {
	if site.ReportWeekday == nil || site.ReportWeekOfMonth == nil || site.ReportSlot == nil {
		return false
	}
	if int16(now.Weekday()) != *site.ReportWeekday {
		return false
	}
	if !matchesWeekOfMonth(now, *site.ReportWeekOfMonth) {
		return false
	}
	return slotContains(*site.ReportSlot, now)
}

// ValidSlot reports whether the string names a known slot.
func ValidSlot(slot string) bool {
	switch strings.ToLower(strings.TrimSpace(slot)) {
	case SlotMorning, SlotAfternoon, SlotEvening:
		return true
	}
	return false
}

func slotContains(slot string, now time.Time) bool {
	hour := now.Hour()
	switch strings.ToLower(strings.TrimSpace(slot)) {
	case SlotMorning:
		return hour >= 6 && hour < 12
	case SlotAfternoon:
		return hour >= 12 && hour < 18
	case SlotEvening:
		return hour >= 18
	}
	return false
}

func matchesWeekOfMonth(now time.Time, weekOfMonth int16) bool {
	occurrence := int16((now.Day()-1)/7) + 1
	if weekOfMonth == LastWeekOfMonth {
		// Last occurrence: the same weekday seven days later falls in
		// the next month.
		return now.AddDate(0, 0, 7).Month() != now.Month()
	}
	return occurrence == weekOfMonth
}
