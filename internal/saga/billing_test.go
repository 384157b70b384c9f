package saga

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vallemarketing/valle360-teste-sub009/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDueDay(t *testing.T) {
	tests := map[string]int{
		"":                         DefaultDueDay,
		"Boleto todo dia 15":       15,
		"dia 5 ou 20":              5,
		"30 dias após faturamento": 30,
		"dia 45":                   DefaultDueDay,
		"dia 0":                    DefaultDueDay,
		"à vista":                  DefaultDueDay,
	}
	for terms, want := range tests {
		assert.Equal(t, want, DueDay(terms), terms)
	}
}

func TestFirstDueDate(t *testing.T) {
	tests := []struct {
		name string
		day  int
		now  time.Time
		want time.Time
	}{
		{"later this month", 10, time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC), date(2025, 3, 10)},
		{"today rolls over", 10, time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC), date(2025, 4, 10)},
		{"already past", 10, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), date(2025, 4, 10)},
		{"clamped to february", 31, time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), date(2025, 2, 28)},
		{"clamped then rolled", 31, time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC), date(2025, 5, 31)},
		{"year boundary", 5, time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC), date(2026, 1, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FirstDueDate(tt.day, tt.now))
		})
	}
}

func TestInstallment(t *testing.T) {
	assert.Equal(t, 1000.0, Installment(12000, 12))
	assert.Equal(t, 333.33, Installment(1000, 3))
	assert.Equal(t, 500.0, Installment(500, 0))
	assert.Equal(t, 500.0, Installment(500, -2))
}

func TestPlanBilling(t *testing.T) {
	c := &models.Contract{TotalValue: 6000, DurationMonths: 6, PaymentTerms: "todo dia 31"}
	plan := PlanBilling(c, time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC))

	assert.Equal(t, 1000.0, plan.Installment)
	assert.Equal(t, 31, plan.DueDay)
	assert.Equal(t, date(2025, 2, 28), plan.DueDate)
	assert.Equal(t, date(2025, 3, 31), plan.NextRun, "the next run goes back to the contracted day")
}

func TestFormatBRL(t *testing.T) {
	assert.Equal(t, "R$ 1.000,00", FormatBRL(1000))
	assert.Equal(t, "R$ 333,33", FormatBRL(333.33))
}

func TestAreaForService(t *testing.T) {
	assert.Equal(t, "trafego_pago", AreaForService("Tráfego Pago (Google Ads)"))
	assert.Equal(t, "desenvolvimento", AreaForService(" SEO "))
	assert.Equal(t, FallbackArea, AreaForService("Consultoria"))
}

func TestBackoff(t *testing.T) {
	b := Backoff{Initial: 30 * time.Second, Max: 5 * time.Minute, Multiplier: 2}
	assert.Equal(t, time.Duration(0), b.Next(0))
	assert.Equal(t, 30*time.Second, b.Next(1))
	assert.Equal(t, 60*time.Second, b.Next(2))
	assert.Equal(t, 4*time.Minute, b.Next(4))
	assert.Equal(t, 5*time.Minute, b.Next(5))
	assert.Equal(t, 5*time.Minute, b.Next(80))
}
