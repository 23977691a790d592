package calendar

import (
	"fmt"
	"strings"
	"time"
)

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// FormatLong renders a date the es-ES long way, e.g. "2 de enero de 2025".
// Presentation only.
func FormatLong(s string, now time.Time) string {
	d := Parse(s, now)
	if !d.Valid() {
		return ""
	}
	return fmt.Sprintf("%d de %s de %d", d.Day, spanishMonths[d.Month-1], d.Year)
}

// FormatShort renders a date as dd/mm/yyyy.
func FormatShort(s string, now time.Time) string {
	d := Parse(s, now)
	if !d.Valid() {
		return ""
	}
	return fmt.Sprintf("%02d/%02d/%04d", d.Day, d.Month, d.Year)
}

// AgeYears returns whole years between birth and now. The count drops by one
// while this year's birthday has not been reached.
func AgeYears(birth string, now time.Time) int {
	b := Parse(birth, now)
	if !b.Valid() {
		return 0
	}
	today := Today(now)
	age := today.Year - b.Year
	if today.Month < b.Month || (today.Month == b.Month && today.Day < b.Day) {
		age--
	}
	return age
}

// AgeLabel is AgeYears rendered for display ("1 año", "5 años").
func AgeLabel(birth string, now time.Time) string {
	return plural(AgeYears(birth, now), "año", "años")
}

// HumanAge describes young animals in months or days and older ones in years.
func HumanAge(birth string, now time.Time) string {
	if strings.TrimSpace(birth) == "" {
		return "No especificada"
	}
	b := Parse(birth, now)
	if !b.Valid() {
		return "No especificada"
	}
	days := Days(b, Today(now))
	if days < 0 {
		days = -days
	}
	if days < 365 {
		if months := days / 30; months > 0 {
			return plural(months, "mes", "meses")
		}
		return plural(days, "día", "días")
	}
	return plural(days/365, "año", "años")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
