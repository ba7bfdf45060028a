package billing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timebill/internal/models"
)

func rate(v int64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.NewFromInt(v), Valid: true}
}

func approvedEntry(id, projectID string, minutes int) models.TimeEntry {
	return models.TimeEntry{
		ID:          id,
		ProjectID:   projectID,
		Date:        time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Duration:    minutes,
		Description: "Build nav",
		Billable:    true,
		Status:      models.EntryStatusApproved,
	}
}

func TestEligibleEntries(t *testing.T) {
	entries := []models.TimeEntry{
		approvedEntry("t1", "p1", 90),
		{ID: "t2", ProjectID: "p1", Duration: 60, Billable: true, Status: models.EntryStatusSubmitted},
		{ID: "t3", ProjectID: "p1", Duration: 60, Billable: false, Status: models.EntryStatusApproved},
		{ID: "t4", ProjectID: "p1", Duration: 60, Billable: true, Status: models.EntryStatusRejected},
		approvedEntry("t5", "p2", 30),
	}

	t.Run("only approved billable entries pass", func(t *testing.T) {
		got := EligibleEntries(entries, nil)
		require.Len(t, got, 2)
		assert.Equal(t, "t1", got[0].ID)
		assert.Equal(t, "t5", got[1].ID)
	})

	t.Run("entries on an existing invoice are excluded", func(t *testing.T) {
		invoices := []models.Invoice{{ID: "inv1", TimeEntryIDs: []string{"t1"}}}
		got := EligibleEntries(entries, invoices)
		require.Len(t, got, 1)
		assert.Equal(t, "t5", got[0].ID)
	})

	t.Run("entry referenced by any of several invoices is excluded", func(t *testing.T) {
		invoices := []models.Invoice{
			{ID: "inv1", TimeEntryIDs: []string{"x1", "x2"}},
			{ID: "inv2", TimeEntryIDs: []string{"t5"}},
		}
		got := EligibleEntries(entries, invoices)
		require.Len(t, got, 1)
		assert.Equal(t, "t1", got[0].ID)
	})

	t.Run("empty invoice list excludes nothing", func(t *testing.T) {
		got := EligibleEntries(entries, []models.Invoice{})
		assert.Len(t, got, 2)
	})
}

func TestGroupByClient(t *testing.T) {
	dir := NewDirectory([]models.Project{
		{ID: "p1", ClientID: "c1", Name: "Website"},
		{ID: "p2", ClientID: "c2", Name: "App"},
		{ID: "p3", ClientID: "c1", Name: "SEO"},
	}, nil)

	entries := []models.TimeEntry{
		approvedEntry("t1", "p1", 60),
		approvedEntry("t2", "p2", 60),
		approvedEntry("t3", "p3", 60),
		approvedEntry("t4", "missing", 60),
	}

	groups := GroupByClient(entries, dir)

	require.Len(t, groups, 2)
	require.Len(t, groups["c1"], 2)
	assert.Equal(t, "t1", groups["c1"][0].ID)
	assert.Equal(t, "t3", groups["c1"][1].ID)
	require.Len(t, groups["c2"], 1)
	assert.Equal(t, "t2", groups["c2"][0].ID)

	// Groups partition the resolvable entries: every entry lands in exactly
	// one group, and the unresolvable one in none.
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	assert.Equal(t, 3, total)
}

func TestGroupByClientMissingProjectDropped(t *testing.T) {
	dir := NewDirectory(nil, nil)
	entries := []models.TimeEntry{approvedEntry("t1", "p1", 90)}

	// Eligibility does not consult the directory, so the entry survives the
	// eligibility check but vanishes from grouping.
	assert.Len(t, EligibleEntries(entries, nil), 1)
	assert.Empty(t, GroupByClient(entries, dir))
}

func TestComputeSummary(t *testing.T) {
	dir := NewDirectory([]models.Project{
		{ID: "p1", ClientID: "c1", Name: "Website", DefaultHourlyRate: rate(100)},
	}, []models.Client{{ID: "c1", Name: "Acme"}})

	entries := []models.TimeEntry{approvedEntry("t1", "p1", 90)}

	summary := ComputeSummary([]string{"t1"}, entries, dir, DefaultTaxRate)

	assert.True(t, summary.TotalHours.Equal(decimal.NewFromFloat(1.5)), "hours = %s", summary.TotalHours)
	assert.True(t, summary.TotalAmount.Equal(decimal.NewFromInt(150)), "amount = %s", summary.TotalAmount)
	assert.True(t, summary.Tax.Equal(decimal.NewFromInt(15)), "tax = %s", summary.Tax)
	assert.True(t, summary.GrandTotal.Equal(decimal.NewFromInt(165)), "grand total = %s", summary.GrandTotal)

	require.Len(t, summary.Projects, 1)
	p := summary.Projects[0]
	assert.Equal(t, "Website", p.Name)
	assert.True(t, p.Hours.Equal(decimal.NewFromFloat(1.5)))
	assert.True(t, p.Rate.Equal(decimal.NewFromInt(100)))
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(150)))
}

func TestComputeSummaryFallbackRate(t *testing.T) {
	t.Run("project without a rate", func(t *testing.T) {
		dir := NewDirectory([]models.Project{{ID: "p1", ClientID: "c1", Name: "Website"}}, nil)
		summary := ComputeSummary([]string{"t1"}, []models.TimeEntry{approvedEntry("t1", "p1", 60)}, dir, DefaultTaxRate)
		assert.True(t, summary.TotalAmount.Equal(decimal.NewFromInt(100)))
		require.Len(t, summary.Projects, 1)
		assert.Equal(t, "Website", summary.Projects[0].Name)
	})

	t.Run("unresolvable project", func(t *testing.T) {
		dir := NewDirectory(nil, nil)
		summary := ComputeSummary([]string{"t1"}, []models.TimeEntry{approvedEntry("t1", "p1", 60)}, dir, DefaultTaxRate)
		assert.True(t, summary.TotalAmount.Equal(decimal.NewFromInt(100)))
		require.Len(t, summary.Projects, 1)
		assert.Equal(t, UnknownProjectName, summary.Projects[0].Name)
	})
}

func TestComputeSummaryAdditivity(t *testing.T) {
	dir := NewDirectory([]models.Project{
		{ID: "p1", ClientID: "c1", Name: "Website", DefaultHourlyRate: rate(100)},
		{ID: "p2", ClientID: "c1", Name: "App", DefaultHourlyRate: rate(85)},
	}, nil)

	entries := []models.TimeEntry{
		approvedEntry("t1", "p1", 90),
		approvedEntry("t2", "p2", 45),
		approvedEntry("t3", "p1", 25),
		approvedEntry("t4", "p2", 7),
	}
	ids := []string{"t1", "t2", "t3", "t4"}

	summary := ComputeSummary(ids, entries, dir, DefaultTaxRate)

	// Sum of line amounts equals the total exactly; tax and grand total are
	// derived from it.
	sum := decimal.Zero
	for _, p := range summary.Projects {
		sum = sum.Add(p.Amount)
	}
	assert.True(t, sum.Equal(summary.TotalAmount), "sum %s != total %s", sum, summary.TotalAmount)
	assert.True(t, summary.GrandTotal.Equal(summary.TotalAmount.Add(summary.TotalAmount.Mul(DefaultTaxRate))))

	// Breakdown order follows first appearance of each project.
	require.Len(t, summary.Projects, 2)
	assert.Equal(t, "p1", summary.Projects[0].ProjectID)
	assert.Equal(t, "p2", summary.Projects[1].ProjectID)
}

func TestComputeSummaryIdempotent(t *testing.T) {
	dir := NewDirectory([]models.Project{
		{ID: "p1", ClientID: "c1", Name: "Website", DefaultHourlyRate: rate(120)},
	}, nil)
	entries := []models.TimeEntry{
		approvedEntry("t1", "p1", 90),
		approvedEntry("t2", "p1", 33),
	}
	ids := []string{"t1", "t2"}

	first := ComputeSummary(ids, entries, dir, DefaultTaxRate)
	second := ComputeSummary(ids, entries, dir, DefaultTaxRate)
	assert.Equal(t, first, second)
}

func TestComputeSummaryIgnoresUnselected(t *testing.T) {
	dir := NewDirectory([]models.Project{
		{ID: "p1", ClientID: "c1", Name: "Website", DefaultHourlyRate: rate(100)},
	}, nil)
	entries := []models.TimeEntry{
		approvedEntry("t1", "p1", 60),
		approvedEntry("t2", "p1", 60),
	}

	summary := ComputeSummary([]string{"t2"}, entries, dir, DefaultTaxRate)
	assert.True(t, summary.TotalHours.Equal(decimal.NewFromInt(1)))
	assert.True(t, summary.TotalAmount.Equal(decimal.NewFromInt(100)))
}

func TestBuildDraft(t *testing.T) {
	dir := NewDirectory([]models.Project{
		{ID: "p1", ClientID: "c1", Name: "Website", DefaultHourlyRate: rate(100)},
		{ID: "p2", ClientID: "c1", Name: "App", DefaultHourlyRate: rate(80)},
	}, []models.Client{{ID: "c1", Name: "Acme"}})

	entries := []models.TimeEntry{
		approvedEntry("t1", "p1", 90),
		approvedEntry("t2", "p2", 60),
		approvedEntry("t3", "p1", 30),
	}
	due := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)

	t.Run("no entries selected", func(t *testing.T) {
		_, err := BuildDraft(nil, "c1", due, "", entries, dir, Options{})
		assert.ErrorIs(t, err, ErrNoEntriesSelected)
	})

	t.Run("no client selected", func(t *testing.T) {
		_, err := BuildDraft([]string{"t1"}, "", due, "", entries, dir, Options{})
		assert.ErrorIs(t, err, ErrNoClientSelected)
	})

	t.Run("draft shape", func(t *testing.T) {
		draft, err := BuildDraft([]string{"t1", "t2", "t3"}, "c1", due, "September work", entries, dir, Options{})
		require.NoError(t, err)

		assert.Equal(t, "c1", draft.ClientID)
		assert.Equal(t, []string{"t1", "t2", "t3"}, draft.TimeEntryIDs)
		assert.Equal(t, []string{"p1", "p2"}, draft.ProjectIDs, "unique project ids in first-seen order")
		assert.Equal(t, due, draft.DueDate)
		assert.Equal(t, "September work", draft.Notes)
		assert.Equal(t, "USD", draft.Currency)
		assert.Equal(t, "Net 30", draft.PaymentTerms)
		assert.True(t, draft.TaxRate.Equal(DefaultTaxRate))

		require.Len(t, draft.AdditionalLineItems, 3)
		first := draft.AdditionalLineItems[0]
		assert.Equal(t, "time", first.Type)
		assert.Equal(t, "Website: Build nav", first.Description)
		assert.True(t, first.Quantity.Equal(decimal.NewFromFloat(1.5)))
		assert.True(t, first.Rate.Equal(decimal.NewFromInt(100)))
		assert.True(t, first.Amount.Equal(decimal.NewFromInt(150)))
		assert.True(t, first.Taxable)
	})

	t.Run("configured currency and tax", func(t *testing.T) {
		draft, err := BuildDraft([]string{"t1"}, "c1", due, "", entries, dir, Options{
			Currency:     "EUR",
			PaymentTerms: "Net 14",
			TaxRate:      decimal.NewNullDecimal(decimal.NewFromFloat(0.19)),
		})
		require.NoError(t, err)
		assert.Equal(t, "EUR", draft.Currency)
		assert.Equal(t, "Net 14", draft.PaymentTerms)
		assert.True(t, draft.TaxRate.Equal(decimal.NewFromFloat(0.19)))
	})

	t.Run("explicit zero tax rate is not coerced to the default", func(t *testing.T) {
		draft, err := BuildDraft([]string{"t1"}, "c1", due, "", entries, dir, Options{
			TaxRate: decimal.NewNullDecimal(decimal.Zero),
		})
		require.NoError(t, err)
		assert.True(t, draft.TaxRate.IsZero(), "taxRate = %s", draft.TaxRate)
	})
}

// The end-to-end scenario: one project, one approved billable 90-minute
// entry, no invoices yet.
func TestInvoicingScenario(t *testing.T) {
	project := models.Project{ID: "p1", ClientID: "c1", Name: "Website", DefaultHourlyRate: rate(100)}
	entry := approvedEntry("t1", "p1", 90)
	dir := NewDirectory([]models.Project{project}, []models.Client{{ID: "c1", Name: "Acme"}})

	eligible := EligibleEntries([]models.TimeEntry{entry}, nil)
	require.Len(t, eligible, 1)
	assert.Equal(t, "t1", eligible[0].ID)

	groups := GroupByClient(eligible, dir)
	require.Len(t, groups, 1)
	require.Len(t, groups["c1"], 1)

	summary := ComputeSummary([]string{"t1"}, groups["c1"], dir, DefaultTaxRate)
	assert.True(t, summary.TotalHours.Equal(decimal.NewFromFloat(1.5)))
	assert.True(t, summary.TotalAmount.Equal(decimal.NewFromInt(150)))
	assert.True(t, summary.Tax.Equal(decimal.NewFromInt(15)))
	assert.True(t, summary.GrandTotal.Equal(decimal.NewFromInt(165)))

	// Once the entry sits on an invoice it is no longer eligible.
	created := models.Invoice{ID: "inv1", TimeEntryIDs: []string{"t1"}}
	assert.Empty(t, EligibleEntries([]models.TimeEntry{entry}, []models.Invoice{created}))
}
