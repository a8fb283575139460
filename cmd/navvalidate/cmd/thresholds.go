package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"nav-validation-service/cmd/navvalidate/config"
	"nav-validation-service/internal/models"
	"nav-validation-service/internal/thresholds"

	"github.com/spf13/cobra"
)

var (
	thresholdsClient string
	thresholdsFund   string
)

// thresholdsCmd groups the threshold inspection subcommands
var thresholdsCmd = &cobra.Command{
	Use:   "thresholds",
	Short: "Inspect the validation threshold configuration",
}

// thresholdsListCmd represents the thresholds list command
var thresholdsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the active validation rules and their effective thresholds",
	Long: `List prints every validation rule active for a client/fund with its
effective threshold, after applying any overrides from the config
file's thresholds.overrides section.

Examples:
  navvalidate thresholds list
  navvalidate thresholds list --client client1 --fund "Fund Alpha"
  navvalidate thresholds list --config overrides.yaml`,
	RunE: runThresholdsList,
}

func init() {
	rootCmd.AddCommand(thresholdsCmd)
	thresholdsCmd.AddCommand(thresholdsListCmd)

	thresholdsListCmd.Flags().StringVar(&thresholdsClient, "client", "default", "client whose configuration applies")
	thresholdsListCmd.Flags().StringVar(&thresholdsFund, "fund", "", "fund whose configuration applies (defaults to the client-wide set)")
}

func runThresholdsList(cmd *cobra.Command, args []string) error {
	resolver, err := config.BuildResolver(thresholdsClient, thresholdsFund, thresholdOverrides())
	if err != nil {
		return fmt.Errorf("failed to build threshold configuration: %w", err)
	}

	dual := resolver.ActiveRules(thresholdsClient, thresholdsFund, models.DualSource)
	single := resolver.ActiveRules(thresholdsClient, thresholdsFund, models.PeriodOverPeriod)

	merged := dual
	for _, rule := range single {
		found := false
		for _, d := range dual {
			if d.ID == rule.ID {
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, rule)
		}
	}

	if len(merged) == 0 {
		fmt.Fprintf(os.Stdout, "No active validation rules for client '%s', fund '%s'.\n",
			thresholdsClient, thresholdsFund)
		return nil
	}

	fmt.Fprintf(os.Stdout, "Active validation rules for client '%s'", thresholdsClient)
	if thresholdsFund != "" {
		fmt.Fprintf(os.Stdout, ", fund '%s'", thresholdsFund)
	}
	fmt.Fprintf(os.Stdout, ":\n\n")

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKIND\tMODES\tTHRESHOLD\tTYPE")
	for _, rule := range merged {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			rule.ID, rule.Name, rule.Kind, modesLabel(rule.SourceType),
			rule.Threshold.String(), rule.ThresholdType)
	}
	return w.Flush()
}

func modesLabel(s thresholds.SourceType) string {
	switch s {
	case thresholds.SourceDual:
		return "dual"
	case thresholds.SourceSingle:
		return "period"
	default:
		return "both"
	}
}
