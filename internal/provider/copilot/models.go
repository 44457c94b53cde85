// Package copilot implements the GitHub Copilot provider adapter.
package copilot

import (
	"regexp"
	"sort"
	"strings"
)

// Model catalog snapshot, 2026-08. Copilot renames models on its own
// schedule; unknown names still go upstream after a warning.
var knownModels = map[string]struct{}{
	"gpt-4o":               {},
	"gpt-4o-mini":          {},
	"gpt-4.1":              {},
	"gpt-5":                {},
	"gpt-5-mini":           {},
	"gpt-5-codex":          {},
	"o4-mini":              {},
	"claude-sonnet-4":      {},
	"claude-sonnet-4.5":    {},
	"claude-haiku-4.5":     {},
	"claude-opus-4.5":      {},
	"claude-opus-41":       {},
	"gemini-2.5-pro":       {},
	"gemini-3-pro-preview": {},
}

// KnownModels returns the catalog snapshot, sorted.
func KnownModels() []string {
	models := make([]string, 0, len(knownModels))
	for id := range knownModels {
		models = append(models, id)
	}
	sort.Strings(models)
	return models
}

// modelOverrides maps names that the mechanical rewrite rules cannot derive:
// retired Anthropic 3.x names, the opus-4-1 special case, and the o-series
// which Copilot routes to gpt-5-mini. Keys are lowercase.
var modelOverrides = map[string]string{
	"claude-opus-4-1":     "claude-opus-41",
	"claude-3-5-sonnet":   "claude-sonnet-4",
	"claude-3-7-sonnet":   "claude-sonnet-4",
	"claude-3-5-haiku":    "claude-haiku-4.5",
	"claude-3-opus":       "claude-opus-41",
	"o1":                  "gpt-5-mini",
	"o1-mini":             "gpt-5-mini",
	"o1-preview":          "gpt-5-mini",
	"o3":                  "gpt-5-mini",
	"o3-mini":             "gpt-5-mini",
	"chatgpt-4o-latest":   "gpt-4o",
	"gpt-4-turbo":         "gpt-4.1",
	"gpt-4-turbo-preview": "gpt-4.1",
}

// reasoningModels accept reasoning_effort and return encrypted reasoning
// content.
var reasoningModels = map[string]struct{}{
	"gpt-5":       {},
	"gpt-5-mini":  {},
	"gpt-5-codex": {},
	"o4-mini":     {},
}

var (
	dateSuffixRe    = regexp.MustCompile(`-\d{8}$`)
	claudeVersionRe = regexp.MustCompile(`^(claude-(?:sonnet|opus|haiku))-(\d+)-(\d+)$`)
	gptVersionRe    = regexp.MustCompile(`^gpt-(\d+)-(\d+)((?:-[a-z]+)*)$`)
)

// NormalizeModel rewrites a requested model name into Copilot's canonical
// form and reports whether a thinking variant was requested. The function is
// idempotent: feeding the canonical name back in returns it unchanged.
func NormalizeModel(name string) (string, bool) {
	if _, ok := knownModels[name]; ok {
		return name, false
	}

	lower := strings.ToLower(name)
	if mapped, ok := modelOverrides[lower]; ok {
		return mapped, false
	}

	lower = stripVersionSuffixes(lower)

	isThinking := false
	if strings.HasSuffix(lower, "-thinking") {
		isThinking = true
		// The thinking marker can follow another suffix
		// (claude-3-5-sonnet-latest-thinking), so strip again.
		lower = stripVersionSuffixes(strings.TrimSuffix(lower, "-thinking"))
	}

	if mapped, ok := modelOverrides[lower]; ok {
		return mapped, isThinking
	}

	if m := claudeVersionRe.FindStringSubmatch(lower); m != nil {
		lower = m[1] + "-" + m[2] + "." + m[3]
	}

	// gpt-5-mini and gpt-5-codex keep their hyphens; the version collapse
	// only applies when the segment after the major version is numeric.
	if lower != "gpt-5-mini" && lower != "gpt-5-codex" {
		if m := gptVersionRe.FindStringSubmatch(lower); m != nil {
			lower = "gpt-" + m[1] + "." + m[2] + m[3]
		}
	}

	return lower, isThinking
}

// stripVersionSuffixes removes trailing date stamps and release tags.
func stripVersionSuffixes(s string) string {
	s = dateSuffixRe.ReplaceAllString(s, "")
	s = strings.TrimSuffix(s, "-latest")
	s = strings.TrimSuffix(s, "-0")
	return s
}

// IsKnownModel reports whether the name is in the current Copilot catalog.
func IsKnownModel(name string) bool {
	_, ok := knownModels[name]
	return ok
}

// IsReasoningModel reports whether the canonical model accepts reasoning
// parameters.
func IsReasoningModel(name string) bool {
	_, ok := reasoningModels[name]
	return ok
}
