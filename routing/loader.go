package routing

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/c360/eventrouter/errors"
)

// SeedFile is the YAML document shape for declarative rule definitions
// loaded at startup.
type SeedFile struct {
	Rules []Draft `yaml:"rules"`
}

// LoadSeedFile parses a YAML rule definition file
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "SeedFile", "LoadSeedFile", "read "+path)
	}
	return ParseSeedRules(data)
}

// ParseSeedRules parses YAML rule definitions
func ParseSeedRules(data []byte) (*SeedFile, error) {
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.WrapInvalid(err, "SeedFile", "ParseSeedRules", "parse rule definitions")
	}
	return &file, nil
}

// SeedResult summarizes one seeding pass
type SeedResult struct {
	Created  int
	Skipped  int
	Rejected []MutationResult
}

// Seed installs the file's rules through the engine's normal mutation
// path as the system actor, so seeded rules are validated, persisted,
// activated, and audited like any other. Rules whose ids already exist
// are skipped; rejected drafts are collected, not fatal.
func (e *Engine) Seed(ctx context.Context, file *SeedFile) (*SeedResult, error) {
	result := &SeedResult{}

	for _, draft := range file.Rules {
		if _, exists := e.store.Get(draft.RuleID); exists {
			result.Skipped++
			continue
		}

		mutation, err := e.AddRule(ctx, SystemActor, draft)
		if err != nil {
			return result, errors.Wrap(err, "Engine", "Seed", fmt.Sprintf("install seed rule %s", draft.RuleID))
		}
		if mutation.Status != StatusCreated {
			result.Rejected = append(result.Rejected, *mutation)
			e.logger.Warn("Seed rule rejected", "rule", draft.RuleID, "detail", issuesDetail(mutation.Issues))
			continue
		}
		result.Created++
	}

	e.logger.Info("Seed rules processed",
		"created", result.Created, "skipped", result.Skipped, "rejected", len(result.Rejected))
	return result, nil
}
