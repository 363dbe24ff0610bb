package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "opsctl",
	Short: "FieldOps security CLI",
	Long:  "A CLI for the FieldOps security and audit API.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loadConfig()
		// Env var overrides are applied in newClient()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table", "Output format: table, json, raw")
	rootCmd.PersistentFlags().StringVar(&outputField, "field", "", "Print only this field (use with -format=raw)")

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(trailCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(violationsCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(policyCmd())
	rootCmd.AddCommand(rolesCmd())
}

// --- login ---

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <token>",
		Short: "Save an API token to the CLI config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Token = args[0]
			if err := saveConfig(); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Token saved to config.")
			return nil
		},
	}
}

// --- health ---

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/api/health", nil)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
}

// --- audit ---

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "audit", Short: "Query and export audit logs"}

	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Query audit logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			for flag, param := range map[string]string{
				"entity-type":  "entityType",
				"entity-id":    "entityId",
				"action":       "action",
				"performed-by": "performedBy",
				"risk-level":   "riskLevel",
				"from":         "dateFrom",
				"to":           "dateTo",
			} {
				if v, _ := cmd.Flags().GetString(flag); v != "" {
					q.Set(param, v)
				}
			}
			if n, _ := cmd.Flags().GetInt("limit"); n > 0 {
				q.Set("limit", strconv.Itoa(n))
			}
			if n, _ := cmd.Flags().GetInt("offset"); n > 0 {
				q.Set("offset", strconv.Itoa(n))
			}

			client := newClient()
			result, err := client.get("/api/audit-logs", q)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
	queryCmd.Flags().String("entity-type", "", "Filter by entity type")
	queryCmd.Flags().String("entity-id", "", "Filter by entity ID")
	queryCmd.Flags().String("action", "", "Filter by action")
	queryCmd.Flags().String("performed-by", "", "Filter by actor")
	queryCmd.Flags().String("risk-level", "", "Filter by severity: low, medium, high, critical")
	queryCmd.Flags().String("from", "", "Start of range (RFC3339)")
	queryCmd.Flags().String("to", "", "End of range (RFC3339)")
	queryCmd.Flags().Int("limit", 0, "Max results (1-1000)")
	queryCmd.Flags().Int("offset", 0, "Result offset")

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export audit logs to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("export-format")
			out, _ := cmd.Flags().GetString("out")
			body := map[string]any{"format": format}
			for flag, field := range map[string]string{
				"entity-type":  "entityType",
				"performed-by": "performedBy",
				"from":         "dateFrom",
				"to":           "dateTo",
			} {
				if v, _ := cmd.Flags().GetString(flag); v != "" {
					body[field] = v
				}
			}

			client := newClient()
			data, err := client.postRaw("/api/audit-logs/export", body)
			if err != nil {
				printError(err.Error())
				return nil
			}
			if out == "" {
				fmt.Print(string(data))
				return nil
			}
			if err := os.WriteFile(out, data, 0600); err != nil {
				printError(err.Error())
				return nil
			}
			printSuccess("Exported to " + out)
			return nil
		},
	}
	exportCmd.Flags().String("export-format", "csv", "Export format: json, csv")
	exportCmd.Flags().String("out", "", "Output file (default: stdout)")
	exportCmd.Flags().String("entity-type", "", "Filter by entity type")
	exportCmd.Flags().String("performed-by", "", "Filter by actor")
	exportCmd.Flags().String("from", "", "Start of range (RFC3339)")
	exportCmd.Flags().String("to", "", "End of range (RFC3339)")

	cmd.AddCommand(queryCmd, exportCmd)
	return cmd
}

// --- trail ---

func trailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trail",
		Short: "Show the recent security audit trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if n, _ := cmd.Flags().GetInt("hours"); n > 0 {
				q.Set("hours", strconv.Itoa(n))
			}
			if v, _ := cmd.Flags().GetString("user"); v != "" {
				q.Set("userId", v)
			}
			client := newClient()
			result, err := client.get("/api/security/audit-trail", q)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
	cmd.Flags().Int("hours", 24, "Lookback window in hours (1-168)")
	cmd.Flags().String("user", "", "Filter by principal ID")
	return cmd
}

// --- report ---

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a compliance report",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			format, _ := cmd.Flags().GetString("report-format")
			out, _ := cmd.Flags().GetString("out")
			if from == "" || to == "" {
				printError("--from and --to are required (RFC3339)")
				return nil
			}
			body := map[string]any{"dateFrom": from, "dateTo": to, "format": format}

			client := newClient()
			if format == "csv" {
				data, err := client.postRaw("/api/compliance/report", body)
				if err != nil {
					printError(err.Error())
					return nil
				}
				if out == "" {
					fmt.Print(string(data))
					return nil
				}
				if err := os.WriteFile(out, data, 0600); err != nil {
					printError(err.Error())
					return nil
				}
				printSuccess("Report written to " + out)
				return nil
			}
			result, err := client.post("/api/compliance/report", body)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
	cmd.Flags().String("from", "", "Start of range (RFC3339)")
	cmd.Flags().String("to", "", "End of range (RFC3339)")
	cmd.Flags().String("report-format", "json", "Report format: json, csv")
	cmd.Flags().String("out", "", "Output file for csv (default: stdout)")
	return cmd
}

// --- check ---

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <resource> <action>",
		Short: "Check a permission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"resource": args[0], "action": args[1]}
			if v, _ := cmd.Flags().GetString("user"); v != "" {
				body["userId"] = v
			}
			client := newClient()
			result, err := client.post("/api/permissions/check", body)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
	cmd.Flags().String("user", "", "Principal to check (default: caller)")
	return cmd
}

// --- violations ---

func violationsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "violations", Short: "Inspect and resolve security violations"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded violations",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if cmd.Flags().Changed("resolved") {
				v, _ := cmd.Flags().GetBool("resolved")
				q.Set("resolved", strconv.FormatBool(v))
			}
			if n, _ := cmd.Flags().GetInt("limit"); n > 0 {
				q.Set("limit", strconv.Itoa(n))
			}
			client := newClient()
			result, err := client.get("/api/security/violations", q)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
	listCmd.Flags().Bool("resolved", false, "Filter by resolution state")
	listCmd.Flags().Int("limit", 0, "Max results (1-1000)")

	resolveCmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark a violation resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.post("/api/security/violations/"+args[0]+"/resolve", nil)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}

	cmd.AddCommand(listCmd, resolveCmd)
	return cmd
}

// --- stats ---

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show violation statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/api/security/statistics", nil)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
}

// --- policy ---

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "policy", Short: "Manage security policies"}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/api/security/policies", nil)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}

	enableCmd := &cobra.Command{
		Use:   "enable <name>",
		Short: "Enable a policy",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return togglePolicy(args[0], "enable") },
	}
	disableCmd := &cobra.Command{
		Use:   "disable <name>",
		Short: "Disable a policy",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, args []string) error { return togglePolicy(args[0], "disable") },
	}

	cmd.AddCommand(listCmd, enableCmd, disableCmd)
	return cmd
}

func togglePolicy(name, verb string) error {
	client := newClient()
	result, err := client.post("/api/security/policies/"+name+"/"+verb, nil)
	if err != nil {
		printError(err.Error())
		return nil
	}
	printResult(result)
	return nil
}

// --- roles ---

func rolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "Show the role hierarchy",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			result, err := client.get("/api/roles/hierarchy", nil)
			if err != nil {
				printError(err.Error())
				return nil
			}
			printResult(result)
			return nil
		},
	}
}
