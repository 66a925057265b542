// Package core contains the business logic for Agent Task Flow: the
// markdown document model, the task lifecycle state machines, and the
// validation rules that gate lifecycle operations.
package core

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/valter-silva-au/agent-task-flow/pkg/models"
)

// Well-known document section names used by lifecycle gates.
const (
	SectionSummary     = "Summary"
	SectionScope       = "Scope"
	SectionPlan        = "Plan"
	SectionRisks       = "Risks"
	SectionVerifySteps = "Verify Steps"
	SectionRollback    = "Rollback"
)

// defaultConfig returns a Config populated with workable defaults.
func defaultConfig() *models.Config {
	return &models.Config{
		WorkflowMode: models.WorkflowBranch,
		RequiredSections: []string{
			SectionSummary,
			SectionScope,
			SectionPlan,
			SectionRisks,
			SectionVerifySteps,
			VerificationSection,
			SectionRollback,
		},
		VerifyRequiredTags:  []string{"code"},
		RequirePlanApproval: false,
		StartComment:        models.CommentPolicy{Prefix: "Start:", MinLength: 12},
		FinishComment:       models.CommentPolicy{Prefix: "Verified:", MinLength: 12},
		StatusCommit:        models.StatusCommitOff,
		IndexPath:           ".atf/index.json",
		ArtifactDir:         ".atf/pr",
		CommitAllowlist:     []string{".atf/", "tasks/"},
	}
}

// LoadConfig reads .atfconfig from the base path via viper, overlaying
// defaults. Missing file means defaults; invalid values fail here rather
// than at call time.
func LoadConfig(basePath string) (*models.Config, error) {
	cfg := defaultConfig()

	v := viper.New()
	v.SetConfigName(".atfconfig")
	v.SetConfigType("yaml")
	v.AddConfigPath(basePath)

	v.SetDefault("workflow.mode", string(cfg.WorkflowMode))
	v.SetDefault("doc.required_sections", cfg.RequiredSections)
	v.SetDefault("verify.required_tags", cfg.VerifyRequiredTags)
	v.SetDefault("plan.require_approval", cfg.RequirePlanApproval)
	v.SetDefault("comment.start_prefix", cfg.StartComment.Prefix)
	v.SetDefault("comment.finish_prefix", cfg.FinishComment.Prefix)
	v.SetDefault("comment.min_length", cfg.StartComment.MinLength)
	v.SetDefault("status_commit.policy", string(cfg.StatusCommit))
	v.SetDefault("index.path", cfg.IndexPath)
	v.SetDefault("pr.artifact_dir", cfg.ArtifactDir)
	v.SetDefault("commit.allowlist", cfg.CommitAllowlist)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, IOErr("reading .atfconfig", err)
		}
	}

	cfg.WorkflowMode = models.WorkflowMode(v.GetString("workflow.mode"))
	cfg.RequiredSections = v.GetStringSlice("doc.required_sections")
	cfg.VerifyRequiredTags = v.GetStringSlice("verify.required_tags")
	cfg.RequirePlanApproval = v.GetBool("plan.require_approval")
	minLen := v.GetInt("comment.min_length")
	cfg.StartComment = models.CommentPolicy{Prefix: v.GetString("comment.start_prefix"), MinLength: minLen}
	cfg.FinishComment = models.CommentPolicy{Prefix: v.GetString("comment.finish_prefix"), MinLength: minLen}
	cfg.StatusCommit = models.StatusCommitPolicy(v.GetString("status_commit.policy"))
	cfg.IndexPath = v.GetString("index.path")
	cfg.ArtifactDir = v.GetString("pr.artifact_dir")
	cfg.CommitAllowlist = v.GetStringSlice("commit.allowlist")

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateConfig checks the configuration for invalid values and returns a
// validation error naming every problem found.
func ValidateConfig(cfg *models.Config) error {
	if cfg == nil {
		return Validationf("configuration is nil")
	}

	var errs []string

	switch cfg.WorkflowMode {
	case models.WorkflowBranch, models.WorkflowTrunk:
	default:
		errs = append(errs, fmt.Sprintf("workflow.mode %q is invalid, must be branch or trunk", cfg.WorkflowMode))
	}

	switch cfg.StatusCommit {
	case models.StatusCommitOff, models.StatusCommitWarn, models.StatusCommitConfirm:
	default:
		errs = append(errs, fmt.Sprintf("status_commit.policy %q is invalid, must be one of: off, warn, confirm", cfg.StatusCommit))
	}

	if len(cfg.RequiredSections) == 0 {
		errs = append(errs, "doc.required_sections must not be empty")
	}
	seen := make(map[string]bool)
	for _, name := range cfg.RequiredSections {
		key := NormalizeSectionName(name)
		if key == "" {
			errs = append(errs, "doc.required_sections contains a blank name")
			continue
		}
		if seen[key] {
			errs = append(errs, fmt.Sprintf("doc.required_sections repeats %q", name))
		}
		seen[key] = true
	}

	if cfg.StartComment.MinLength < 0 || cfg.FinishComment.MinLength < 0 {
		errs = append(errs, "comment.min_length must be non-negative")
	}

	if cfg.IndexPath == "" {
		errs = append(errs, "index.path must not be empty")
	}
	if cfg.ArtifactDir == "" {
		errs = append(errs, "pr.artifact_dir must not be empty")
	}

	if len(errs) > 0 {
		return Validationf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
