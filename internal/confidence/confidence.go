// Package confidence estimates how much an answer should be trusted. The
// score is a weighted sum of four factors, each in [0,1], so the overall
// score is bounded without clamping. Scoring is pure: same inputs, same
// report.
package confidence

import (
	"strings"

	"github.com/dthille/corpusqa/internal/config"
	"github.com/dthille/corpusqa/pkg/types"
)

// interrogativeTerms mark a query as a specific question rather than a vague
// prompt. More of them in the query means retrieval had more to anchor on.
var interrogativeTerms = []string{"how", "what", "why", "when", "where", "which", "who"}

// defaultDomainTerms is used when no domain vocabulary is configured.
var defaultDomainTerms = []string{"gitlab", "git", "ci/cd", "pipeline", "merge request", "issue", "epic"}

// Scorer computes confidence reports for answers.
type Scorer struct {
	cfg         config.ConfidenceConfig
	domainTerms []string
}

// NewScorer creates a scorer from configuration.
func NewScorer(cfg config.ConfidenceConfig) *Scorer {
	terms := make([]string, 0, len(cfg.DomainTerms))
	for _, t := range cfg.DomainTerms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		terms = defaultDomainTerms
	}
	return &Scorer{cfg: cfg, domainTerms: terms}
}

// Score builds the confidence report for an answer. queryText is the raw
// query as the user asked it; normalization strips the interrogative words
// the specificity factor depends on.
func (s *Scorer) Score(answerText string, results []types.SearchResult, queryText string) types.ConfidenceReport {
	query := strings.ToLower(queryText)

	factors := []types.ConfidenceFactor{
		{Name: "source_quality", Weight: s.cfg.SourceQualityWeight, Score: s.sourceQuality(results)},
		{Name: "completeness", Weight: s.cfg.CompletenessWeight, Score: s.completeness(answerText)},
		{Name: "specificity", Weight: s.cfg.SpecificityWeight, Score: specificity(query)},
		{Name: "domain_relevance", Weight: s.cfg.DomainRelevanceWeight, Score: s.domainRelevance(query)},
	}

	var overall float64
	for _, f := range factors {
		overall += f.Weight * f.Score
	}

	return types.ConfidenceReport{
		Overall: overall,
		Level:   s.level(overall),
		Factors: factors,
	}
}

// sourceQuality saturates: beyond SaturationSources, more citations do not
// raise confidence.
func (s *Scorer) sourceQuality(results []types.SearchResult) float64 {
	if len(results) == 0 || s.cfg.SaturationSources <= 0 {
		return 0
	}
	return capped(float64(len(results)) / float64(s.cfg.SaturationSources))
}

// completeness treats longer answers as more detailed, saturating at
// SaturationWords.
func (s *Scorer) completeness(answerText string) float64 {
	if s.cfg.SaturationWords <= 0 {
		return 0
	}
	words := len(strings.Fields(answerText))
	return capped(float64(words) / float64(s.cfg.SaturationWords))
}

func specificity(query string) float64 {
	var matched int
	for _, term := range interrogativeTerms {
		if containsWord(query, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(interrogativeTerms))
}

func (s *Scorer) domainRelevance(query string) float64 {
	var matched int
	for _, term := range s.domainTerms {
		if strings.Contains(query, term) {
			matched++
		}
	}
	return float64(matched) / float64(len(s.domainTerms))
}

func (s *Scorer) level(overall float64) types.ConfidenceLevel {
	switch {
	case overall >= s.cfg.HighThreshold:
		return types.ConfidenceHigh
	case overall >= s.cfg.MediumThreshold:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}

func capped(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

// containsWord matches term as a whole word so "who" does not fire on
// "whole".
func containsWord(text, term string) bool {
	for _, f := range strings.Fields(text) {
		f = strings.Trim(f, ".,;:!?\"'()")
		if f == term {
			return true
		}
	}
	return false
}
