// Command mailgroom-rules inspects and validates rule set files and
// lists the built-in rule templates.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ebuckley/mailgroom/internal/rules"
	"github.com/ebuckley/mailgroom/internal/runtime"
)

type rulesConfig struct {
	rulesPath    string
	templates    bool
	fromTemplate string
	importPath   string
	exportPath   string
	out          string
}

func main() {
	cfg := parseFlags()
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("mailgroom-rules failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() rulesConfig {
	rulesPath := flag.String("rules", "rules.json", "path to the rule set file")
	templates := flag.Bool("templates", false, "list built-in templates instead of the rule set")
	fromTemplate := flag.String("from-template", "", "add a rule from the named template to the rule set")
	importPath := flag.String("import", "", "merge rules from another rule set file")
	exportPath := flag.String("export", "", "write the rule set document to this path")
	out := flag.String("out", "", "write the updated rule set here (defaults to -rules)")
	flag.Parse()

	return rulesConfig{
		rulesPath:    *rulesPath,
		templates:    *templates,
		fromTemplate: *fromTemplate,
		importPath:   *importPath,
		exportPath:   *exportPath,
		out:          *out,
	}
}

func run(cfg rulesConfig) error {
	if cfg.templates {
		printTemplates()
		return nil
	}

	logger := runtime.DefaultLogger()
	store, err := rules.Load(cfg.rulesPath, logger)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	if cfg.fromTemplate != "" {
		tpl, err := rules.TemplateByID(cfg.fromTemplate)
		if err != nil {
			return err
		}
		r := tpl.Rule()
		r.ID = store.GenerateID(r.Name)
		if err := store.Add(r); err != nil {
			return fmt.Errorf("add rule: %w", err)
		}
		if err := store.Save(cfg.outPath()); err != nil {
			return fmt.Errorf("save rules: %w", err)
		}
		fmt.Printf("added rule %s from template %s\n", r.ID, tpl.ID)
		return nil
	}

	if cfg.importPath != "" {
		data, err := os.ReadFile(cfg.importPath)
		if err != nil {
			return fmt.Errorf("read import file: %w", err)
		}
		added, err := store.Import(data)
		if err != nil {
			return fmt.Errorf("import rules: %w", err)
		}
		if err := store.Save(cfg.outPath()); err != nil {
			return fmt.Errorf("save rules: %w", err)
		}
		fmt.Printf("imported %d rules from %s\n", added, cfg.importPath)
		return nil
	}

	if cfg.exportPath != "" {
		data, err := store.Export()
		if err != nil {
			return fmt.Errorf("export rules: %w", err)
		}
		if err := os.WriteFile(cfg.exportPath, data, 0o600); err != nil {
			return fmt.Errorf("write export file: %w", err)
		}
		fmt.Printf("exported %d rules to %s\n", len(store.Rules()), cfg.exportPath)
		return nil
	}

	printRules(store)
	return nil
}

func (c rulesConfig) outPath() string {
	if c.out != "" {
		return c.out
	}
	return c.rulesPath
}

func printRules(store *rules.Store) {
	all := store.Rules()
	fmt.Printf("%d rules (all valid)\n", len(all))
	for _, r := range all {
		state := "disabled"
		if r.Enabled {
			state = "enabled"
		}
		fmt.Printf("  %-28s %-8s priority %3d  %s  %s\n",
			r.ID, state, r.Priority, r.Action.Type, r.Name)
	}
}

func printTemplates() {
	fmt.Println("built-in templates:")
	for _, t := range rules.Templates() {
		fmt.Printf("  %-26s [%s/%s] %s\n", t.ID, t.Category, t.RiskLevel, t.Description)
	}
}
