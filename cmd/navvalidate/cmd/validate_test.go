package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func setValidBaseFlags(t *testing.T) {
	t.Helper()
	viper.Set("fund", "Fund Alpha")
	viper.Set("source-a", "AdminOne")
	viper.Set("source-b", "AdminTwo")
	viper.Set("date-a", "2024-03-31")
	viper.Set("date-b", "2024-03-31")
	viper.Set("data-dir", t.TempDir())
	viper.Set("output", "console")
	viper.Set("default-profile", "standard")
	viper.Set("client", "default")
}

func TestValidateValidateFlags(t *testing.T) {
	tests := []struct {
		name          string
		setupFlags    func(t *testing.T)
		profiles      []string
		expectError   bool
		errorContains string
	}{
		{
			name:        "valid flags",
			setupFlags:  setValidBaseFlags,
			expectError: false,
		},
		{
			name: "missing fund",
			setupFlags: func(t *testing.T) {
				setValidBaseFlags(t)
				viper.Set("fund", "")
			},
			expectError:   true,
			errorContains: "fund is required",
		},
		{
			name: "missing source",
			setupFlags: func(t *testing.T) {
				setValidBaseFlags(t)
				viper.Set("source-b", "")
			},
			expectError:   true,
			errorContains: "source-a and source-b are required",
		},
		{
			name: "missing date",
			setupFlags: func(t *testing.T) {
				setValidBaseFlags(t)
				viper.Set("date-a", "")
			},
			expectError:   true,
			errorContains: "date-a and date-b are required",
		},
		{
			name: "invalid date format",
			setupFlags: func(t *testing.T) {
				setValidBaseFlags(t)
				viper.Set("date-b", "31/03/2024")
			},
			expectError:   true,
			errorContains: "invalid source-b/date-b",
		},
		{
			name: "invalid output format",
			setupFlags: func(t *testing.T) {
				setValidBaseFlags(t)
				viper.Set("output", "xml")
			},
			expectError:   true,
			errorContains: "invalid output format",
		},
		{
			name: "unknown default profile",
			setupFlags: func(t *testing.T) {
				setValidBaseFlags(t)
				viper.Set("default-profile", "nonexistent")
			},
			expectError:   true,
			errorContains: "unknown default profile",
		},
		{
			name:          "unknown profile assignment",
			setupFlags:    setValidBaseFlags,
			profiles:      []string{"AdminTwo=nonexistent"},
			expectError:   true,
			errorContains: "unknown profile",
		},
		{
			name:          "malformed profile assignment",
			setupFlags:    setValidBaseFlags,
			profiles:      []string{"just-a-name"},
			expectError:   true,
			errorContains: "invalid profile assignment",
		},
		{
			name: "missing data directory",
			setupFlags: func(t *testing.T) {
				setValidBaseFlags(t)
				viper.Set("data-dir", "/nonexistent/data/dir")
			},
			expectError:   true,
			errorContains: "data directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			profileFlags = tt.profiles
			tt.setupFlags(t)

			cmd := &cobra.Command{}
			err := validateValidateFlags(cmd, []string{})

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				} else if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("expected error to contain '%s', got: %v", tt.errorContains, err)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestValidateCommandHelp(t *testing.T) {
	cmd := validateCmd

	for _, name := range []string{"fund", "source-a", "source-b", "date-a", "date-b", "data-dir", "output", "profile"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("%s flag not found", name)
		}
	}

	var helpOutput bytes.Buffer
	cmd.SetOut(&helpOutput)
	cmd.Help()

	helpText := helpOutput.String()

	expectedSections := []string{
		"Usage:",
		"Examples:",
		"Flags:",
		"--fund",
		"--source-a",
		"--date-a",
	}

	for _, section := range expectedSections {
		if !strings.Contains(helpText, section) {
			t.Errorf("help text should contain '%s'", section)
		}
	}
}

func TestOutputFormatValidation(t *testing.T) {
	validFormats := map[string]bool{"console": true, "json": true, "csv": true}

	for _, format := range []string{"console", "json", "csv"} {
		if !validFormats[format] {
			t.Errorf("format '%s' should be valid", format)
		}
	}
	for _, format := range []string{"xml", "yaml", "invalid", ""} {
		if validFormats[format] {
			t.Errorf("format '%s' should be invalid", format)
		}
	}
}
