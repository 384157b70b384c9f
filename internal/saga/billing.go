package saga

import (
	"math"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/vallemarketing/valle360-teste-sub009/internal/models"
)

// DefaultDueDay applies when payment terms name no usable day
const DefaultDueDay = 10

var dayPattern = regexp.MustCompile(`\d+`)

var brl = message.NewPrinter(language.BrazilianPortuguese)

// BillingPlan is computed once per run and persisted with it, so a resumed
// run bills the same amount and dates as the first attempt
type BillingPlan struct {
	Installment float64   `json:"installment"`
	DueDay      int       `json:"due_day"`
	DueDate     time.Time `json:"due_date"`
	NextRun     time.Time `json:"next_run"`
}

// PlanBilling derives the first invoice and recurring schedule of a contract
func PlanBilling(c *models.Contract, now time.Time) BillingPlan {
	day := DueDay(c.PaymentTerms)
	due := FirstDueDate(day, now)
	return BillingPlan{
		Installment: Installment(c.TotalValue, c.DurationMonths),
		DueDay:      day,
		DueDate:     due,
		NextRun:     addMonth(due, day),
	}
}

// Installment splits the total evenly across the contract months, in cents.
// A contract without a duration bills the total once.
func Installment(total float64, months int) float64 {
	if months <= 0 {
		return math.Round(total*100) / 100
	}
	return math.Round(total/float64(months)*100) / 100
}

// DueDay takes the first number in the payment terms, e.g. "Todo dia 15"
func DueDay(paymentTerms string) int {
	m := dayPattern.FindString(paymentTerms)
	if m == "" {
		return DefaultDueDay
	}
	day, err := strconv.Atoi(m)
	if err != nil || day < 1 || day > 31 {
		return DefaultDueDay
	}
	return day
}

// FirstDueDate is day of the current month when that is still ahead of
// now, otherwise day of the next month. Days past the end of a month clamp
// to its last day.
func FirstDueDate(day int, now time.Time) time.Time {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	due := dayOf(now.Year(), now.Month(), day)
	if !due.After(today) {
		due = addMonth(due, day)
	}
	return due
}

func addMonth(t time.Time, day int) time.Time {
	first := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return dayOf(first.Year(), first.Month(), day)
}

func dayOf(year int, month time.Month, day int) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// FormatBRL renders an amount the way finance reads it, R$ 1.234,50
func FormatBRL(v float64) string {
	return brl.Sprintf("R$ %.2f", v)
}
