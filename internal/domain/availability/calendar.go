// Package availability models a doctor's free-slot calendar: a mapping from
// date to shift name to the ordered slot labels still open for booking.
//
// Every mutation returns a new Calendar and leaves its input untouched, so a
// calendar read inside a transaction can be transformed and written back
// without aliasing the caller's copy.
package availability

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/clinic/clinic/internal/platform/apperror"
)

const (
	DateLayout = "2006-01-02"
	SlotLayout = "15:04"
)

var ErrInvalidCalendar = apperror.Validation("InvalidCalendar", "invalid availability calendar")

// Calendar is date -> shift -> slot labels.
type Calendar map[string]map[string][]string

// Parse decodes a stored calendar document. An empty or null document is an
// empty calendar.
func Parse(raw []byte) (Calendar, error) {
	cal := Calendar{}
	if len(raw) == 0 || string(raw) == "null" {
		return cal, nil
	}
	if err := json.Unmarshal(raw, &cal); err != nil {
		return nil, fmt.Errorf("decode availability: %w", err)
	}
	return cal, nil
}

// Bytes encodes the calendar for storage. A nil calendar encodes as {}.
func (c Calendar) Bytes() ([]byte, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c)
}

// Clone returns a deep copy.
func (c Calendar) Clone() Calendar {
	out := make(Calendar, len(c))
	for date, shifts := range c {
		cp := make(map[string][]string, len(shifts))
		for shift, slots := range shifts {
			cp[shift] = append([]string(nil), slots...)
		}
		out[date] = cp
	}
	return out
}

// Slots returns every slot listed under date across all shifts, sorted.
func (c Calendar) Slots(date string) []string {
	shifts, ok := c[date]
	if !ok {
		return nil
	}
	slots := lo.Flatten(lo.Values(shifts))
	sort.Strings(slots)
	return slots
}

// HasDate reports whether date lists at least one slot.
func (c Calendar) HasDate(date string) bool {
	return lo.SomeBy(lo.Values(c[date]), func(slots []string) bool { return len(slots) > 0 })
}

// IsSlotAvailable reports whether slot is listed under date in any shift.
// The shift a client names is not consulted here.
func IsSlotAvailable(c Calendar, date, slot string) bool {
	shifts, ok := c[date]
	if !ok {
		return false
	}
	return lo.Contains(lo.Flatten(lo.Values(shifts)), slot)
}

// ShiftOf returns the shift under date that lists slot.
func ShiftOf(c Calendar, date, slot string) (string, bool) {
	for shift, slots := range c[date] {
		if lo.Contains(slots, slot) {
			return shift, true
		}
	}
	return "", false
}

// RemoveSlot returns a copy of c with slot removed from c[date][shift]. An
// emptied shift is dropped, and so is a date left with no shifts. Removing a
// slot that is not listed returns an unchanged copy.
func RemoveSlot(c Calendar, date, shift, slot string) Calendar {
	out := c.Clone()
	shifts, ok := out[date]
	if !ok {
		return out
	}
	slots, ok := shifts[shift]
	if !ok {
		return out
	}

	remaining := lo.Without(slots, slot)
	if len(remaining) == 0 {
		delete(shifts, shift)
	} else {
		shifts[shift] = remaining
	}
	if len(shifts) == 0 {
		delete(out, date)
	}
	return out
}

// Merge overlays patch onto c at the date level. Each date present in patch
// replaces that date's whole shift set; a date patched with no shifts is
// removed. Dates absent from patch are kept.
func Merge(c, patch Calendar) Calendar {
	out := c.Clone()
	for date, shifts := range patch {
		nonEmpty := lo.PickBy(shifts, func(_ string, slots []string) bool { return len(slots) > 0 })
		if len(nonEmpty) == 0 {
			delete(out, date)
			continue
		}
		cp := make(map[string][]string, len(nonEmpty))
		for shift, slots := range nonEmpty {
			cp[shift] = append([]string(nil), slots...)
		}
		out[date] = cp
	}
	return out
}

// Validate checks a stored calendar: date and slot formats, no blank shift
// names, no empty dates or shifts, and no slot label listed twice under the
// same date.
func Validate(c Calendar) error {
	return validate(c, false)
}

// ValidatePatch checks a Merge patch. It differs from Validate only in
// allowing a date with no slots, which Merge reads as "remove this date".
func ValidatePatch(patch Calendar) error {
	return validate(patch, true)
}

func validate(c Calendar, allowEmptyDates bool) error {
	for date, shifts := range c {
		if _, err := time.Parse(DateLayout, date); err != nil {
			return ErrInvalidCalendar.WithMessage("date %q must be formatted YYYY-MM-DD", date)
		}
		if allowEmptyDates && !c.HasDate(date) {
			continue
		}
		if len(shifts) == 0 {
			return ErrInvalidCalendar.WithMessage("date %s has no shifts", date)
		}
		var all []string
		for shift, slots := range shifts {
			if shift == "" {
				return ErrInvalidCalendar.WithMessage("date %s has a shift with no name", date)
			}
			if len(slots) == 0 && !allowEmptyDates {
				return ErrInvalidCalendar.WithMessage("shift %s on %s has no slots", shift, date)
			}
			for _, slot := range slots {
				if !ValidSlot(slot) {
					return ErrInvalidCalendar.WithMessage("slot %q on %s must be formatted HH:MM", slot, date)
				}
			}
			all = append(all, slots...)
		}
		if dups := lo.FindDuplicates(all); len(dups) > 0 {
			return ErrInvalidCalendar.WithMessage("slot %s listed more than once on %s", dups[0], date)
		}
	}
	return nil
}

// ValidSlot reports whether label is a zero-padded HH:MM time.
func ValidSlot(label string) bool {
	if len(label) != len(SlotLayout) {
		return false
	}
	_, err := time.Parse(SlotLayout, label)
	return err == nil
}

// CompositeTime joins a date and slot into the key appointments are stored
// and matched under, e.g. "2025-01-10T09:00".
func CompositeTime(date, slot string) string {
	return date + "T" + slot
}
