package domain_test

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowline/internal/domain"
)

func TestSplitKeepsGrossEqualFeePlusNet(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("fee is round(gross*0.10) and net is the remainder", prop.ForAll(
		func(gross int64) bool {
			amt := domain.Split(gross, domain.DefaultFeeBps, "USD")
			want := (gross + 5) / 10
			return amt.Fee == want && amt.Net == gross-amt.Fee && amt.Gross == gross
		},
		gen.Int64Range(1, 1_000_000_000),
	))

	properties.TestingRun(t)
}

func TestWithMilestoneKeepsAmountInvariant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("terms.amount equals the milestone sum after any rewrite", prop.ForAll(
		func(amounts []int64, replacement int64) bool {
			if len(amounts) == 0 {
				return true
			}
			c := domain.Contract{}
			for i, a := range amounts {
				c.Milestones = append(c.Milestones, domain.Milestone{ID: string(rune('a' + i%26)), Amount: a})
			}
			c.RecomputeAmount()
			m := c.Milestones[len(amounts)/2]
			m.Amount = replacement
			c.WithMilestone(len(amounts)/2, m)
			return c.Terms.Amount == domain.SumMilestones(c.Milestones)
		},
		gen.SliceOf(gen.Int64Range(1, 1_000_000)),
		gen.Int64Range(1, 1_000_000),
	))

	properties.TestingRun(t)
}

func TestWithMilestoneDoesNotAliasPreviousSlice(t *testing.T) {
	c := domain.Contract{Milestones: []domain.Milestone{{ID: "m1", Amount: 100, Status: domain.MilestonePending}}}
	before := c.Milestones
	m := c.Milestones[0]
	m.Status = domain.MilestoneActive
	c.WithMilestone(0, m)
	assert.Equal(t, domain.MilestonePending, before[0].Status)
	assert.Equal(t, domain.MilestoneActive, c.Milestones[0].Status)
}

func TestCompletionProgress(t *testing.T) {
	ms := []domain.Milestone{
		{ID: "a", Status: domain.MilestoneCompleted},
		{ID: "b", Status: domain.MilestonePending},
		{ID: "c", Status: domain.MilestoneCompleted},
	}
	assert.Equal(t, 67, domain.CompletionProgress(ms))
	assert.Equal(t, 0, domain.CompletionProgress(nil))
	assert.False(t, domain.AllMilestonesCompleted(ms))
}

func TestValidateStructure(t *testing.T) {
	valid := domain.Contract{
		ProjectID:    "p1",
		ClientID:     "client",
		FreelancerID: "freelancer",
		Terms:        domain.Terms{Currency: "USD", PaymentType: domain.PaymentFixed},
		Milestones:   []domain.Milestone{{ID: "m1", Title: "Design", Amount: 1000}},
	}
	require.NoError(t, valid.ValidateStructure([]string{"USD", "EUR"}))

	cases := map[string]func(c *domain.Contract){
		"same party":        func(c *domain.Contract) { c.FreelancerID = c.ClientID },
		"no milestones":     func(c *domain.Contract) { c.Milestones = nil },
		"negative amount":   func(c *domain.Contract) { c.Milestones[0].Amount = -5 },
		"currency rejected": func(c *domain.Contract) { c.Terms.Currency = "GBP" },
		"bad payment type":  func(c *domain.Contract) { c.Terms.PaymentType = "barter" },
		"duplicate ids": func(c *domain.Contract) {
			c.Milestones = append(c.Milestones, domain.Milestone{ID: "m1", Title: "again", Amount: 1})
		},
		"amount over cap": func(c *domain.Contract) { c.Milestones[0].Amount = domain.MaxMilestoneAmount + 1 },
		"total over cap": func(c *domain.Contract) {
			c.Milestones = nil
			for i := 0; i <= int(domain.MaxContractAmount/domain.MaxMilestoneAmount); i++ {
				c.Milestones = append(c.Milestones, domain.Milestone{ID: fmt.Sprintf("m%d", i), Title: "part", Amount: domain.MaxMilestoneAmount})
			}
		},
		"overflowing amounts": func(c *domain.Contract) {
			c.Milestones = []domain.Milestone{
				{ID: "m1", Title: "a", Amount: math.MaxInt64},
				{ID: "m2", Title: "b", Amount: math.MaxInt64},
			}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid.Clone()
			mutate(&c)
			err := c.ValidateStructure([]string{"USD", "EUR"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		})
	}
}

func TestAmountCapsKeepArithmeticInRange(t *testing.T) {
	ms := make([]domain.Milestone, 0, 100)
	for i := 0; i < 100; i++ {
		ms = append(ms, domain.Milestone{ID: fmt.Sprintf("m%d", i), Title: "part", Amount: domain.MaxMilestoneAmount})
	}
	require.NoError(t, domain.ValidateMilestones(ms))
	assert.Equal(t, domain.MaxContractAmount, domain.SumMilestones(ms))

	amt := domain.Split(domain.MaxContractAmount, 9999, "USD")
	assert.Positive(t, amt.Fee)
	assert.Equal(t, domain.MaxContractAmount, amt.Fee+amt.Net)
}

func TestMethodRecordRoundTripsVariants(t *testing.T) {
	methods := []domain.PaymentMethod{
		domain.Card{Brand: "visa", Last4: "4242"},
		domain.PayPal{Email: "pay@example.com"},
		domain.BankTransfer{BankName: "Ecobank", AccountRef: "ACC-1"},
		domain.MobileMoney{Provider: domain.ProviderMTN, PhoneNumber: "+237670000000"},
		domain.MobileMoney{Provider: domain.ProviderOrange, PhoneNumber: "237690000000", AccountName: "A. B."},
	}
	for _, pm := range methods {
		rec := domain.RecordOf(pm)
		assert.Equal(t, pm.Kind(), rec.Type)
		back, err := rec.Method()
		require.NoError(t, err)
		assert.Equal(t, pm, back)
	}
}

func TestMethodRecordRejectsInvalid(t *testing.T) {
	_, err := domain.MethodRecord{Type: "crypto"}.Method()
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = domain.MethodRecord{Type: domain.MethodMTNMoMo, PhoneNumber: "12"}.Method()
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = domain.MethodRecord{Type: domain.MethodCard, Last4: "42a2"}.Method()
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
