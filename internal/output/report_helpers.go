package output

import (
	"path/filepath"
	"sort"
	"strings"

	"codemedic/internal/checks"
)

var stageOrder = []checks.Stage{checks.StageSyntax, checks.StageCrossFile, checks.StageFuzz, checks.StageLogic}

type stageStats struct {
	Stage   checks.Stage
	Pass    int
	Fail    int
	Skipped int
	Error   int
	Repairs int
}

type repairRecord struct {
	Stage   checks.Stage
	File    string
	Attempt int
	Message string
}

// finalKey identifies the last evaluation of a file within a stage.
type finalKey struct {
	Stage checks.Stage
	File  string
}

// computeStageStats counts every evaluation, including those superseded by
// a later re-verification, so repeated failures stay visible.
func computeStageStats(results []checks.Result, repairs []repairRecord) []*stageStats {
	byStage := make(map[checks.Stage]*stageStats)
	get := func(st checks.Stage) *stageStats {
		if s, ok := byStage[st]; ok {
			return s
		}
		s := &stageStats{Stage: st}
		byStage[st] = s
		return s
	}
	for _, r := range results {
		s := get(r.Stage)
		switch r.Status {
		case checks.StatusPass:
			s.Pass++
		case checks.StatusFail:
			s.Fail++
		case checks.StatusSkipped:
			s.Skipped++
		case checks.StatusError:
			s.Error++
		}
	}
	for _, rep := range repairs {
		get(rep.Stage).Repairs++
	}

	var out []*stageStats
	for _, st := range stageOrder {
		if s, ok := byStage[st]; ok {
			out = append(out, s)
			delete(byStage, st)
		}
	}
	var rest []*stageStats
	for _, s := range byStage {
		rest = append(rest, s)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Stage < rest[j].Stage })
	return append(out, rest...)
}

// finalResults keeps the last result per (stage, file).
func finalResults(results []checks.Result) map[finalKey]checks.Result {
	out := make(map[finalKey]checks.Result)
	for _, r := range results {
		out[finalKey{Stage: r.Stage, File: r.File}] = r
	}
	return out
}

// unresolved returns final FAIL/ERROR results in stage then file order.
func unresolved(final map[finalKey]checks.Result) []checks.Result {
	var out []checks.Result
	for _, r := range final {
		if r.Status == checks.StatusFail || r.Status == checks.StatusError {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stage != out[j].Stage {
			return stageIndex(out[i].Stage) < stageIndex(out[j].Stage)
		}
		return out[i].File < out[j].File
	})
	return out
}

func stageIndex(st checks.Stage) int {
	for i, s := range stageOrder {
		if s == st {
			return i
		}
	}
	return len(stageOrder)
}

// oneLine collapses whitespace and truncates long text for table cells.
func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, "|", "\\|")
	if max > 3 && len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

func baseName(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Base(p)
}
