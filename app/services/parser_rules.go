package services

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"github.com/amirphl/momo-reconciler/models"
	"github.com/amirphl/momo-reconciler/utils"
	"gopkg.in/yaml.v3"
)

//go:embed parser_rules.yaml
var defaultParserRules []byte

type ruleCatalog struct {
	Version   string         `yaml:"version"`
	Templates []ruleTemplate `yaml:"templates"`
}

type ruleTemplate struct {
	Name       string  `yaml:"name"`
	Operator   string  `yaml:"operator"`
	Confidence float64 `yaml:"confidence"`
	Pattern    string  `yaml:"pattern"`
	RefPattern string  `yaml:"ref_pattern"`

	re    *regexp.Regexp
	refRe *regexp.Regexp
}

// RulesExtractor matches SMS text against telecom templates
type RulesExtractor struct {
	version   string
	templates []ruleTemplate
}

// NewRulesExtractor loads the embedded template catalog
func NewRulesExtractor() (*RulesExtractor, error) {
	return NewRulesExtractorFromYAML(defaultParserRules)
}

// NewRulesExtractorFromYAML loads a template catalog; every pattern must compile and name an amount group
func NewRulesExtractorFromYAML(data []byte) (*RulesExtractor, error) {
	var catalog ruleCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to decode parser rules: %w", err)
	}
	if len(catalog.Templates) == 0 {
		return nil, fmt.Errorf("parser rules define no templates")
	}

	for i := range catalog.Templates {
		t := &catalog.Templates[i]
		re, err := regexp.Compile(t.Pattern)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", t.Name, err)
		}
		if re.SubexpIndex("amount") < 0 {
			return nil, fmt.Errorf("template %q has no amount group", t.Name)
		}
		t.re = re
		if t.RefPattern != "" {
			refRe, err := regexp.Compile(t.RefPattern)
			if err != nil {
				return nil, fmt.Errorf("template %q ref pattern: %w", t.Name, err)
			}
			t.refRe = refRe
		}
	}

	version := catalog.Version
	if version == "" {
		version = "rules:v1"
	}

	return &RulesExtractor{version: version, templates: catalog.Templates}, nil
}

func (r *RulesExtractor) Name() string {
	return string(models.ParseStrategyRules)
}

func (r *RulesExtractor) Version() string {
	return r.version
}

func (r *RulesExtractor) Extract(_ context.Context, text string) (*Extraction, error) {
	for _, t := range r.templates {
		m := t.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		amount, ok := utils.ParseAmount(group(t.re, m, "amount"))
		if !ok {
			continue
		}

		ref := group(t.re, m, "ref")
		if ref == "" && t.refRe != nil {
			if rm := t.refRe.FindStringSubmatch(text); rm != nil {
				ref = group(t.refRe, rm, "ref")
			}
		}

		fields := map[string]any{"template": t.Name}
		if t.Operator != "" {
			fields["operator"] = t.Operator
		}
		payer := strings.TrimSpace(group(t.re, m, "payer"))
		if payer != "" {
			fields["payer"] = payer
		}

		return &Extraction{
			Amount:     amount,
			Currency:   group(t.re, m, "currency"),
			Ref:        ref,
			Confidence: t.Confidence,
			Version:    r.version,
			RawFields:  fields,
		}, nil
	}

	return nil, ErrNoPaymentFound
}

func group(re *regexp.Regexp, m []string, name string) string {
	i := re.SubexpIndex(name)
	if i < 0 || i >= len(m) {
		return ""
	}
	return strings.TrimSpace(m[i])
}
