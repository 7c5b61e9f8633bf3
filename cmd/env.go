package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hardgate/internal/config"
)

// llmKeyVars are the variables of which at least one must be set.
var llmKeyVars = []string{"OPENAI_API_KEY", "OPENAI_BASE_URL", "ANTHROPIC_API_KEY", "GOOGLE_API_KEY"}

// secretVars are masked when printed.
var secretVars = map[string]bool{
	"OPENAI_API_KEY":    true,
	"ANTHROPIC_API_KEY": true,
	"GOOGLE_API_KEY":    true,
	"GITHUB_TOKEN":      true,
	"JIRA_API_TOKEN":    true,
	"CHROMADB_API_KEY":  true,
	"DATABASE_URL":      true,
}

// ConfigCheckResult holds the result of configuration validation
type ConfigCheckResult struct {
	Missing  []string          // Required variables that are missing
	Present  map[string]string // Variables that are set (secrets masked)
	Warnings []string          // Non-fatal warnings
}

// CheckRequiredConfig validates the assessment environment variables
func CheckRequiredConfig(getenv func(string) string) *ConfigCheckResult {
	result := &ConfigCheckResult{
		Missing:  []string{},
		Present:  make(map[string]string),
		Warnings: []string{},
	}

	for _, v := range config.EnvVars() {
		val := getenv(v)
		if val == "" {
			continue
		}
		if secretVars[v] {
			val = maskSecret(val)
		}
		result.Present[v] = val
	}

	hasLLM := false
	for _, v := range llmKeyVars {
		if getenv(v) != "" {
			hasLLM = true
		}
	}
	if !hasLLM {
		result.Missing = append(result.Missing, strings.Join(llmKeyVars, " | "))
	}

	jira := 0
	for _, v := range []string{"JIRA_URL", "JIRA_USERNAME", "JIRA_API_TOKEN"} {
		if getenv(v) != "" {
			jira++
		}
	}
	if jira > 0 && jira < 3 {
		result.Warnings = append(result.Warnings, "Jira is partly configured; JIRA_URL, JIRA_USERNAME and JIRA_API_TOKEN are all needed, stories will be skipped")
	}

	if getenv("GITHUB_TOKEN") == "" {
		result.Warnings = append(result.Warnings, "GITHUB_TOKEN not set; only public repositories can be cloned")
	}
	if getenv("USE_LOCAL_EMBEDDINGS") == "" && getenv("USE_ENDPOINT_EMBEDDINGS") == "" && getenv("OPENAI_API_KEY") == "" {
		result.Warnings = append(result.Warnings, "no embedding backend configured; the report index will fall back to the embedding endpoint")
	}

	return result
}

// PrintConfigCheck prints the configuration check results
func PrintConfigCheck(w io.Writer, result *ConfigCheckResult) {
	fmt.Fprintln(w, "=== Configuration Check ===")
	fmt.Fprintln(w, "")

	if len(result.Missing) > 0 {
		fmt.Fprintln(w, "❌ Missing required variables:")
		for _, v := range result.Missing {
			fmt.Fprintf(w, "   - %s\n", v)
		}
		fmt.Fprintln(w, "")
	}

	if len(result.Present) > 0 {
		fmt.Fprintln(w, "✓ Configured variables:")
		for _, k := range config.EnvVars() {
			if v, ok := result.Present[k]; ok {
				fmt.Fprintf(w, "   - %s = %s\n", k, v)
			}
		}
		fmt.Fprintln(w, "")
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "⚠ Warning: %s\n", warning)
	}

	if len(result.Missing) == 0 {
		fmt.Fprintln(w, "✓ All required configuration is present")
	}

	fmt.Fprintln(w, "============================")
}

// EnvCommand returns the env command
func EnvCommand() *cli.Command {
	return &cli.Command{
		Name:  "env",
		Usage: "Check the environment variables the assessment uses",
		Action: func(c *cli.Context) error {
			result := CheckRequiredConfig(os.Getenv)
			PrintConfigCheck(c.App.Writer, result)
			if len(result.Missing) > 0 {
				return &config.Error{Msg: "required environment variables are missing"}
			}
			return nil
		},
	}
}

// maskSecret masks a secret value for display, showing only first and last 2 chars
func maskSecret(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:2] + "****" + value[len(value)-2:]
}

// LoadEnvFile loads environment variables from a file. Variables that are
// already set keep their value.
func LoadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 && ((value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'')) {
			value = value[1 : len(value)-1]
		}

		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set env var %s: %w", key, err)
		}
	}

	return scanner.Err()
}
