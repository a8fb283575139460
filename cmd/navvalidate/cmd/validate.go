package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"nav-validation-service/cmd/navvalidate/config"
	"nav-validation-service/internal/cache"
	"nav-validation-service/internal/models"
	"nav-validation-service/internal/parsers"
	"nav-validation-service/internal/reporter"
	"nav-validation-service/internal/runner"
	"nav-validation-service/pkg/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the validate command
var (
	fundName       string
	sourceA        string
	sourceB        string
	dateA          string
	dateB          string
	dataDir        string
	clientID       string
	outputFormat   string
	outputFile     string
	includePassed  bool
	maxExceptions  int
	profileFlags   []string
	defaultProfile string
	noCache        bool
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the validation suite for one fund comparison",
	Long: `Validate loads the dataset files of two administrator/date slices,
merges them on their business keys, runs every active comparison and
ratio check for the fund, and renders the exception report.

The data directory is laid out as <data-dir>/<source>/<date>/ with one
CSV file per dataset (trial_balance.csv, positions.csv, capital.csv,
expense_revenue.csv). A dataset file a source never delivered is
reported as missing data for the checks that need it; it does not abort
the run.

Examples:
  # Compare two administrators for the same period
  navvalidate validate --fund "Fund Alpha" --source-a AdminOne --source-b AdminTwo \
    --date-a 2024-03-31 --date-b 2024-03-31 --data-dir ./data

  # Period over period for a single administrator
  navvalidate validate --fund "Fund Alpha" --source-a AdminOne --source-b AdminOne \
    --date-a 2024-03-31 --date-b 2024-02-29

  # JSON report to a file, semicolon-delimited source layout
  navvalidate validate --fund "Fund Alpha" --source-a AdminOne --source-b AdminTwo \
    --date-a 2024-03-31 --date-b 2024-03-31 \
    --profile AdminTwo=ledger_export --output json --output-file report.json`,

	PreRunE: validateValidateFlags,
	RunE:    runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	// Required flags
	validateCmd.Flags().StringVar(&fundName, "fund", "", "fund to validate (required)")
	validateCmd.Flags().StringVar(&sourceA, "source-a", "", "first administrator source (required)")
	validateCmd.Flags().StringVar(&sourceB, "source-b", "", "second administrator source (required)")
	validateCmd.Flags().StringVar(&dateA, "date-a", "", "first valuation date, YYYY-MM-DD (required)")
	validateCmd.Flags().StringVar(&dateB, "date-b", "", "second valuation date, YYYY-MM-DD (required)")

	// Data access flags
	validateCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "root directory of the dataset files")
	validateCmd.Flags().StringVar(&clientID, "client", "default", "client whose threshold configuration applies")
	validateCmd.Flags().StringSliceVar(&profileFlags, "profile", []string{}, "per-source column profile, source=profile_name")
	validateCmd.Flags().StringVar(&defaultProfile, "default-profile", "standard", "column profile for sources without an explicit assignment")
	validateCmd.Flags().BoolVar(&noCache, "no-cache", false, "recompute even when a fresh cached run exists")

	// Output flags
	validateCmd.Flags().StringVarP(&outputFormat, "output", "f", "console", "output format: console, json, csv")
	validateCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	validateCmd.Flags().BoolVar(&includePassed, "include-passed", true, "include passed checks in the report")
	validateCmd.Flags().IntVar(&maxExceptions, "max-exceptions", 10, "maximum exception rows shown per check")

	validateCmd.MarkFlagRequired("fund")
	validateCmd.MarkFlagRequired("source-a")
	validateCmd.MarkFlagRequired("source-b")
	validateCmd.MarkFlagRequired("date-a")
	validateCmd.MarkFlagRequired("date-b")

	// Bind flags to viper
	viper.BindPFlag("fund", validateCmd.Flags().Lookup("fund"))
	viper.BindPFlag("source-a", validateCmd.Flags().Lookup("source-a"))
	viper.BindPFlag("source-b", validateCmd.Flags().Lookup("source-b"))
	viper.BindPFlag("date-a", validateCmd.Flags().Lookup("date-a"))
	viper.BindPFlag("date-b", validateCmd.Flags().Lookup("date-b"))
	viper.BindPFlag("data-dir", validateCmd.Flags().Lookup("data-dir"))
	viper.BindPFlag("client", validateCmd.Flags().Lookup("client"))
	viper.BindPFlag("output", validateCmd.Flags().Lookup("output"))
	viper.BindPFlag("output-file", validateCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("default-profile", validateCmd.Flags().Lookup("default-profile"))
}

func validateValidateFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	fundName = viper.GetString("fund")
	sourceA = viper.GetString("source-a")
	sourceB = viper.GetString("source-b")
	dateA = viper.GetString("date-a")
	dateB = viper.GetString("date-b")
	dataDir = viper.GetString("data-dir")
	clientID = viper.GetString("client")
	outputFormat = viper.GetString("output")
	outputFile = viper.GetString("output-file")
	defaultProfile = viper.GetString("default-profile")

	if fundName == "" {
		return fmt.Errorf("fund is required")
	}
	if sourceA == "" || sourceB == "" {
		return fmt.Errorf("both source-a and source-b are required")
	}
	if dateA == "" || dateB == "" {
		return fmt.Errorf("both date-a and date-b are required")
	}

	// Descriptor construction validates source names and date formats
	if _, err := models.NewSourceDescriptor(sourceA, dateA); err != nil {
		return fmt.Errorf("invalid source-a/date-a: %w", err)
	}
	if _, err := models.NewSourceDescriptor(sourceB, dateB); err != nil {
		return fmt.Errorf("invalid source-b/date-b: %w", err)
	}

	validFormats := map[string]bool{"console": true, "json": true, "csv": true}
	if !validFormats[outputFormat] {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", outputFormat)
	}

	if parsers.GetProfile(defaultProfile) == nil {
		return fmt.Errorf("unknown default profile '%s'", defaultProfile)
	}
	if _, err := config.ResolveProfiles(profileFlags); err != nil {
		return err
	}

	info, err := os.Stat(dataDir)
	if err != nil {
		return fmt.Errorf("data directory is not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory is not a directory: %s", dataDir)
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Starting validation run...\n")
		fmt.Fprintf(os.Stderr, "Fund: %s\n", fundName)
		fmt.Fprintf(os.Stderr, "Comparing: %s@%s vs %s@%s\n", sourceA, dateA, sourceB, dateB)
		fmt.Fprintf(os.Stderr, "Data directory: %s\n", dataDir)
	}

	descA, err := models.NewSourceDescriptor(sourceA, dateA)
	if err != nil {
		return err
	}
	descB, err := models.NewSourceDescriptor(sourceB, dateB)
	if err != nil {
		return err
	}

	profiles, err := config.ResolveProfiles(profileFlags)
	if err != nil {
		return err
	}

	provider, err := parsers.NewFileProvider(dataDir, parsers.GetProfile(defaultProfile))
	if err != nil {
		return err
	}
	for source, profile := range profiles {
		if err := provider.SetProfile(source, profile); err != nil {
			return err
		}
	}

	resolver, err := config.BuildResolver(clientID, fundName, thresholdOverrides())
	if err != nil {
		return fmt.Errorf("failed to build threshold configuration: %w", err)
	}

	var resultCache *cache.ResultCache
	if !noCache {
		resultCache = cache.New(0, nil, provider.ModTime)
	}

	run, err := runner.New(runner.Config{
		Provider: provider,
		Resolver: resolver,
		ClientID: clientID,
		Cache:    resultCache,
	})
	if err != nil {
		return err
	}

	result, err := run.RunValidations(ctx, fundName, descA, descB)
	if err != nil {
		return err
	}

	reportConfig := config.CreateReportConfig(outputFormat, includePassed, maxExceptions)
	generator, err := reporter.NewSafeReportGenerator(reportConfig, nil)
	if err != nil {
		return err
	}

	var output *os.File
	if outputFile != "" {
		output, err = os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()
	} else {
		output = os.Stdout
	}

	if err := generator.GenerateReportSafely(result, output); err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "\nValidation run %s complete.\n", result.RunID)
		fmt.Fprintf(os.Stderr, "%d checks: %d passed, %d failed, %d errors, %d exceptions.\n",
			result.Summary.TotalValidations, result.Summary.TotalPassed,
			result.Summary.TotalFailed, result.Summary.TotalErrors,
			result.Summary.TotalExceptions)
		if result.FromCache {
			fmt.Fprintf(os.Stderr, "Result served from cache.\n")
		}
	}

	if result.Summary.TotalFailed > 0 {
		cmd.SilenceUsage = true
		return errors.ValidationError(errors.CodeValidationFailed, "validations",
			result.Summary.TotalFailed, nil).
			WithContext("run_id", result.RunID).
			WithContext("failed", result.Summary.TotalFailed).
			WithContext("exceptions", result.Summary.TotalExceptions).
			WithSuggestion("Review the exception report above for the failing checks")
	}

	return nil
}

// thresholdOverrides reads per-rule threshold replacements from the
// config file's thresholds.overrides section, keyed by classifier name.
func thresholdOverrides() map[string]float64 {
	raw := viper.GetStringMap("thresholds.overrides")
	if len(raw) == 0 {
		return nil
	}
	overrides := make(map[string]float64, len(raw))
	for key := range raw {
		overrides[key] = viper.GetFloat64("thresholds.overrides." + key)
	}
	return overrides
}
