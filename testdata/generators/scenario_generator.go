// Command scenario_generator creates sample data directories for the
// navvalidate CLI: two administrator sources per scenario, laid out as
// <output-dir>/<scenario>/<source>/<date>/<dataset>.csv in the standard
// column profile.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
)

// ScenarioGenerator creates specific validation scenarios
type ScenarioGenerator struct {
	Seed      int64
	OutputDir string
	Fund      string
	SourceA   string
	SourceB   string
	Date      string
}

func main() {
	var (
		outputDir = flag.String("output-dir", "generated_scenarios", "Output directory for scenario data")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "Random seed for reproducible generation")
		scenario  = flag.String("scenario", "all", "Scenario to generate: all, clean, price-moves, missing-data, large-fund")
		fund      = flag.String("fund", "Fund Alpha", "Fund name written to every record")
	)
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	generator := &ScenarioGenerator{
		Seed:      *seed,
		OutputDir: *outputDir,
		Fund:      *fund,
		SourceA:   "AdminOne",
		SourceB:   "AdminTwo",
		Date:      "2024-03-31",
	}

	switch *scenario {
	case "clean":
		generator.GenerateCleanScenario()
	case "price-moves":
		generator.GeneratePriceMoveScenario()
	case "missing-data":
		generator.GenerateMissingDataScenario()
	case "large-fund":
		generator.GenerateLargeFundScenario()
	case "all":
		generator.GenerateAllScenarios()
	default:
		log.Fatalf("Unknown scenario: %s", *scenario)
	}

	fmt.Printf("Generated scenarios in %s\n", *outputDir)
	fmt.Printf("Seed used: %d\n", *seed)
	fmt.Printf("Run them with, for example:\n")
	fmt.Printf("  navvalidate validate --fund %q --source-a %s --source-b %s --date-a %s --date-b %s --data-dir %s/clean\n",
		*fund, generator.SourceA, generator.SourceB, generator.Date, generator.Date, *outputDir)
}

// GenerateAllScenarios generates all predefined scenarios
func (sg *ScenarioGenerator) GenerateAllScenarios() {
	fmt.Println("Generating all scenarios...")
	sg.GenerateCleanScenario()
	sg.GeneratePriceMoveScenario()
	sg.GenerateMissingDataScenario()
	sg.GenerateLargeFundScenario()
}

// GenerateCleanScenario writes identical datasets on both sides so
// every comparison check passes.
func (sg *ScenarioGenerator) GenerateCleanScenario() {
	fmt.Println("Generating clean scenario...")

	positions := sg.basePositions()
	trialBalance := sg.baseTrialBalance()
	capital := sg.baseCapital()
	expenses := sg.baseExpenses()

	for _, source := range []string{sg.SourceA, sg.SourceB} {
		sg.writeSlice("clean", source, trialBalance, positions, capital, expenses)
	}
}

// GeneratePriceMoveScenario perturbs the second source so the pricing,
// large trade and market value checks produce exceptions.
func (sg *ScenarioGenerator) GeneratePriceMoveScenario() {
	rng := rand.New(rand.NewSource(sg.Seed))

	fmt.Println("Generating price move scenario...")

	positionsA := sg.basePositions()
	sg.writeSlice("price-moves", sg.SourceA, sg.baseTrialBalance(), positionsA, sg.baseCapital(), sg.baseExpenses())

	// Rebuild side B with perturbations: a >5% price move on the first
	// two securities, a missing market value, and a doubled quantity.
	positionsB := sg.basePositions()
	for i, row := range positionsB[1:] {
		switch i {
		case 0, 1:
			mv := mustDecimal(row[4])
			bump := decimal.NewFromFloat(1.08 + rng.Float64()*0.10)
			positionsB[i+1][4] = mv.Mul(bump).StringFixed(2)
		case 2:
			positionsB[i+1][4] = ""
		case 3:
			qty := mustDecimal(row[3])
			positionsB[i+1][3] = qty.Mul(decimal.NewFromInt(2)).String()
		}
	}

	expensesB := sg.baseExpenses()
	for i, row := range expensesB[1:] {
		if row[1] == "Legal Fees" {
			amount := mustDecimal(row[3])
			expensesB[i+1][3] = amount.Mul(decimal.NewFromFloat(1.60)).StringFixed(2)
		}
	}

	sg.writeSlice("price-moves", sg.SourceB, sg.baseTrialBalance(), positionsB, sg.baseCapital(), expensesB)
}

// GenerateMissingDataScenario leaves the expense file out of the second
// source, so the expense checks report missing data while the rest of
// the suite still runs.
func (sg *ScenarioGenerator) GenerateMissingDataScenario() {
	fmt.Println("Generating missing data scenario...")

	sg.writeSlice("missing-data", sg.SourceA, sg.baseTrialBalance(), sg.basePositions(), sg.baseCapital(), sg.baseExpenses())
	sg.writeSlice("missing-data", sg.SourceB, sg.baseTrialBalance(), sg.basePositions(), sg.baseCapital(), nil)
}

// GenerateLargeFundScenario writes a position book big enough to
// exercise the streaming parser paths.
func (sg *ScenarioGenerator) GenerateLargeFundScenario() {
	rng := rand.New(rand.NewSource(sg.Seed))

	fmt.Println("Generating large fund scenario...")

	header := []string{"fund", "productName", "assetClass", "quantity", "marketValue", "fxRate"}
	assetClasses := []string{"Equity", "Bond", "Future", "Option", "Swap"}

	build := func(perturb bool) [][]string {
		rows := [][]string{header}
		for i := 0; i < 5000; i++ {
			quantity := decimal.NewFromInt(int64(rng.Intn(10000) + 1))
			price := decimal.NewFromFloat(rng.Float64()*500 + 1)
			if perturb && i%97 == 0 {
				price = price.Mul(decimal.NewFromFloat(1.10))
			}
			rows = append(rows, []string{
				sg.Fund,
				fmt.Sprintf("SEC%05d", i),
				assetClasses[i%len(assetClasses)],
				quantity.String(),
				quantity.Mul(price).StringFixed(2),
				"1",
			})
		}
		return rows
	}

	// Same RNG seed on both sides keeps the books aligned except for
	// the perturbed rows.
	rng = rand.New(rand.NewSource(sg.Seed))
	positionsA := build(false)
	rng = rand.New(rand.NewSource(sg.Seed))
	positionsB := build(true)

	sg.writeSlice("large-fund", sg.SourceA, sg.baseTrialBalance(), positionsA, sg.baseCapital(), sg.baseExpenses())
	sg.writeSlice("large-fund", sg.SourceB, sg.baseTrialBalance(), positionsB, sg.baseCapital(), sg.baseExpenses())
}

// Base datasets in the standard column profile.

func (sg *ScenarioGenerator) baseTrialBalance() [][]string {
	return [][]string{
		{"fund", "accountLevel1", "accountLevel2", "accountName", "endingBalance"},
		{sg.Fund, "Assets", "MV of Investments", "Investments at fair value", "12500000.00"},
		{sg.Fund, "Assets", "Cash and cash equivalents", "Cash USD", "1500000.00"},
		{sg.Fund, "Assets", "Account Receivable", "Dividends receivable", "85000.00"},
		{sg.Fund, "Liabilities", "Account Payable", "Management fee payable", "-45000.00"},
		{sg.Fund, "Liabilities", "Other Liabilities", "Accrued expenses", "-30000.00"},
	}
}

func (sg *ScenarioGenerator) basePositions() [][]string {
	return [][]string{
		{"fund", "productName", "assetClass", "quantity", "marketValue", "fxRate"},
		{sg.Fund, "AAPL", "Equity", "10000", "1750000.00", "1"},
		{sg.Fund, "MSFT", "Equity", "8000", "3360000.00", "1"},
		{sg.Fund, "Bund Future Jun24", "Future", "-150", "-1200000.00", "1.0842"},
		{sg.Fund, "US Treasury 2.5% 2034", "Bond", "5000000", "4650000.00", "1"},
		{sg.Fund, "NVDA", "Equity", "4500", "3940000.00", "1"},
	}
}

func (sg *ScenarioGenerator) baseCapital() [][]string {
	return [][]string{
		{"fund", "subType", "amount"},
		{sg.Fund, "Subscriptions", "500000.00"},
		{sg.Fund, "Redemptions", "-250000.00"},
	}
}

func (sg *ScenarioGenerator) baseExpenses() [][]string {
	return [][]string{
		{"fund", "category", "kind", "amount"},
		{sg.Fund, "Legal Fees", "Expense", "12000.00"},
		{sg.Fund, "Admin Fees", "Expense", "18000.00"},
		{sg.Fund, "Accounting Expense", "Expense", "9500.00"},
		{sg.Fund, "Management Fees", "Expense", "45000.00"},
		{sg.Fund, "Dividend Income", "Revenue", "62000.00"},
	}
}

// writeSlice writes one source/date slice of a scenario. A nil dataset
// is skipped, leaving that file missing on purpose.
func (sg *ScenarioGenerator) writeSlice(scenario, source string, trialBalance, positions, capital, expenses [][]string) {
	dir := filepath.Join(sg.OutputDir, scenario, source, sg.Date)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatalf("Failed to create %s: %v", dir, err)
	}

	files := map[string][][]string{
		"trial_balance.csv":   trialBalance,
		"positions.csv":       positions,
		"capital.csv":         capital,
		"expense_revenue.csv": expenses,
	}
	for name, data := range files {
		if data == nil {
			continue
		}
		sg.writeCSV(filepath.Join(dir, name), data)
	}
}

func (sg *ScenarioGenerator) writeCSV(path string, data [][]string) {
	file, err := os.Create(path)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.WriteAll(data); err != nil {
		log.Fatalf("Failed to write %s: %v", path, err)
	}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}
