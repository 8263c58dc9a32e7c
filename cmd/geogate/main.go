package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zen-systems/geogate/pkg/als"
	"github.com/zen-systems/geogate/pkg/config"
	"github.com/zen-systems/geogate/pkg/orchestrator"
	"github.com/zen-systems/geogate/pkg/resolver"
	"github.com/zen-systems/geogate/pkg/schema"
	"github.com/zen-systems/geogate/pkg/telemetry"
)

var (
	gatewayFile string
	debugFlag   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "geogate",
		Short: "Multi-vendor LLM gateway with grounding and geographic vantage control",
		Long: `Geogate routes prompts to LLM vendors with enforced grounding,
	deterministic ambient-locale context, proxied geographic vantage, and a
	resilience stack (circuit breaker, token budgets, tool negotiation).`,
	}

	rootCmd.PersistentFlags().StringVar(&gatewayFile, "config", "", "path to gateway config file")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "log pipeline progress to stderr")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(countriesCmd())
	rootCmd.AddCommand(validateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if gatewayFile != "" {
		return config.LoadWithGatewayFile(gatewayFile)
	}
	return config.Load()
}

func askCmd() *cobra.Command {
	var vendorFlag string
	var modelFlag string
	var groundedFlag bool
	var modeFlag string
	var vantageFlag string
	var countryFlag string
	var maxTokensFlag int
	var jsonFlag bool
	var schemaFile string

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send a prompt through the gateway",
		Long: `Sends the prompt to the resolved vendor/model with the requested
	grounding mode and vantage policy.

	Use --grounded for search-backed answers; --mode REQUIRED fails closed
	unless the response carries tool use and qualifying citations.
	Use --vantage with --country to control the geographic vantage:
	ALS_ONLY injects an ambient locale block, PROXY_ONLY routes egress
	through a country proxy, ALS_PLUS_PROXY does both.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := args[0]

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			emitter, closeEmitter, err := buildEmitter(cfg)
			if err != nil {
				return err
			}
			defer closeEmitter()

			var logger func(format string, args ...any)
			if debugFlag {
				logger = func(format string, args ...any) {
					log.Printf(format, args...)
				}
			}

			orch, err := orchestrator.NewFromConfig(cfg, emitter, logger)
			if err != nil {
				return err
			}

			req := &schema.Request{
				Vendor:          vendorFlag,
				Model:           modelFlag,
				Messages:        []schema.Message{{Role: schema.RoleUser, Content: prompt}},
				Grounded:        groundedFlag,
				GroundingMode:   schema.GroundingMode(strings.ToUpper(modeFlag)),
				Vantage:         schema.VantagePolicy(strings.ToUpper(vantageFlag)),
				Country:         countryFlag,
				MaxOutputTokens: maxTokensFlag,
			}
			if schemaFile != "" {
				data, err := os.ReadFile(schemaFile)
				if err != nil {
					return fmt.Errorf("failed to read schema file: %w", err)
				}
				var outputSchema map[string]any
				if err := json.Unmarshal(data, &outputSchema); err != nil {
					return fmt.Errorf("schema file is not valid JSON: %w", err)
				}
				req.StrictJSON = true
				req.OutputSchema = outputSchema
			}

			resp, err := orch.Complete(context.Background(), req)
			if err != nil {
				return err
			}

			if jsonFlag {
				return printJSONResponse(resp)
			}

			fmt.Println(resp.Content)
			if len(resp.Citations) > 0 {
				fmt.Fprintln(os.Stderr)
				fmt.Fprintf(os.Stderr, "Sources (authority %d/100):\n", resp.Authority.Value)
				for _, c := range resp.Citations {
					url := c.URL
					if url == "" {
						url = c.RawURL
					}
					fmt.Fprintf(os.Stderr, "  [%s] %s\n", c.SourceType, url)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&vendorFlag, "vendor", "", "override vendor (openai, google, anthropic)")
	cmd.Flags().StringVar(&modelFlag, "model", "", "model name or alias")
	cmd.Flags().BoolVar(&groundedFlag, "grounded", false, "attach web search capability")
	cmd.Flags().StringVar(&modeFlag, "mode", "", "grounding mode (AUTO, REQUIRED)")
	cmd.Flags().StringVar(&vantageFlag, "vantage", "", "vantage policy (ALS_ONLY, PROXY_ONLY, ALS_PLUS_PROXY)")
	cmd.Flags().StringVar(&countryFlag, "country", "", "ISO country code for the vantage")
	cmd.Flags().IntVar(&maxTokensFlag, "max-tokens", 0, "max output tokens")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the full response as JSON")
	cmd.Flags().StringVar(&schemaFile, "schema", "", "JSON schema file for constrained output")

	return cmd
}

// buildEmitter wires the JSONL run-record writer under the config dir plus
// the in-process metric counters; every record reaches both sinks.
func buildEmitter(cfg *config.Config) (telemetry.Emitter, func(), error) {
	dir := ""
	if cfg.Gateway != nil {
		dir = cfg.Gateway.Telemetry.Dir
	}
	if dir == "" {
		dir = filepath.Join(cfg.ConfigDir, "runs")
	}
	writer, err := telemetry.NewWriter(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open run log: %w", err)
	}
	emitter := telemetry.MultiEmitter{writer, telemetry.NewMetrics()}
	return emitter, func() { _ = writer.Close() }, nil
}

func printJSONResponse(resp *orchestrator.Response) error {
	out := map[string]any{
		"content":   resp.Content,
		"citations": resp.Citations,
		"authority": resp.Authority,
		"grounding": resp.Grounding,
		"telemetry": resp.Telemetry,
	}
	if resp.Attestation != nil {
		out["attestation"] = resp.Attestation
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func modelsCmd() *cobra.Command {
	var resolveFlag bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List vendors, allowed models, and aliases",
		Long: `Lists each vendor's allowlisted models and whether its API key is
	configured.

	Use --resolve to show aliases and what they resolve to.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			gw := cfg.Gateway

			if resolveFlag {
				return showAliases(gw)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VENDOR\tMODELS\tSTATUS")

			var vendors []string
			for vendor := range gw.Models.Allowed {
				vendors = append(vendors, vendor)
			}
			sort.Strings(vendors)

			for _, vendor := range vendors {
				models := strings.Join(gw.Models.Allowed[vendor], ", ")
				status := "no key"
				if cfg.HasVendor(vendor) {
					status = "ready"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", vendor, models, status)
			}

			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&resolveFlag, "resolve", false, "show aliases and what they resolve to")

	return cmd
}

func showAliases(gw *config.GatewayConfig) error {
	if len(gw.Models.Aliases) == 0 {
		fmt.Println("No model aliases configured.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ALIAS\tMODEL\tVENDOR")

	var names []string
	for name := range gw.Models.Aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		model := gw.Models.Aliases[name]
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, model, resolver.InferVendor(model))
	}

	return w.Flush()
}

func countriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "countries",
		Short: "List countries with ambient-locale templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "COUNTRY\tALS\tPROXY")

			proxied := map[string]bool{}
			if cfg.Gateway != nil {
				for country := range cfg.Gateway.Proxy.Endpoints {
					proxied[country] = true
				}
			}
			for _, country := range als.DefaultBuilder().Countries() {
				proxy := "-"
				if proxied[country] {
					proxy = "yes"
				}
				fmt.Fprintf(w, "%s\tyes\t%s\n", country, proxy)
			}
			return w.Flush()
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [gateway.yaml]",
		Short: "Validate a gateway config file",
		Long:  "Validates gateway YAML without starting the gateway.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, err := config.LoadGatewayConfig(args[0])
			if err != nil {
				return err
			}
			if errs := validateGateway(gw); len(errs) > 0 {
				fmt.Fprintf(os.Stderr, "Found %d validation errors:\n", len(errs))
				for _, e := range errs {
					fmt.Fprintf(os.Stderr, "  - %s\n", e)
				}
				return fmt.Errorf("validation failed")
			}
			fmt.Println("Gateway config is valid.")
			return nil
		},
	}
}

// validateGateway checks cross-references the YAML schema cannot express.
func validateGateway(gw *config.GatewayConfig) []string {
	var errs []string
	if len(gw.Models.Allowed) == 0 {
		errs = append(errs, "models.allowed is empty: no vendor can serve requests")
	}
	known := map[string]bool{"openai": true, "google": true, "anthropic": true}
	for vendor := range gw.Models.Allowed {
		if !known[vendor] {
			errs = append(errs, fmt.Sprintf("models.allowed: unknown vendor %q", vendor))
		}
	}
	allModels := map[string]bool{}
	for _, models := range gw.Models.Allowed {
		for _, m := range models {
			allModels[m] = true
		}
	}
	for alias, model := range gw.Models.Aliases {
		if !allModels[model] {
			errs = append(errs, fmt.Sprintf("alias %q resolves to %q, which no vendor allowlists", alias, model))
		}
	}
	for _, vendor := range gw.Grounding.RelaxUnlinked {
		if !known[vendor] {
			errs = append(errs, fmt.Sprintf("grounding.relax_unlinked: unknown vendor %q", vendor))
		}
	}
	for country, endpoint := range gw.Proxy.Endpoints {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			errs = append(errs, fmt.Sprintf("proxy.endpoints[%s]: %q is not an http(s) URL", country, endpoint))
		}
	}
	sort.Strings(errs)
	return errs
}
