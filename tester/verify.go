package tester

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/notargets/mblkcomm/hier"
)

type PatchResult struct {
	Patch  hier.GlobalID
	Block  hier.BlockID
	Passed bool
}

// Report is the outcome of one verification pass.
type Report struct {
	RunID   uuid.UUID
	Name    string
	Results []PatchResult
	Passed  bool
}

func (r *Report) Failures() (failed []PatchResult) {
	for _, pr := range r.Results {
		if !pr.Passed {
			failed = append(failed, pr)
		}
	}
	return
}

func (r *Report) String() string {
	var sb strings.Builder
	status := "PASSED"
	if !r.Passed {
		status = "FAILED"
	}
	fmt.Fprintf(&sb, "%s run %s: %s, %d patches", r.Name, r.RunID, status, len(r.Results))
	for _, pr := range r.Failures() {
		fmt.Fprintf(&sb, "\n\tpatch %v block %d failed", pr.Patch, pr.Block)
	}
	return sb.String()
}

// Verify asks the strategy to check every patch on every level. A mismatch
// makes the report fail; only strategy errors are returned as errors.
func (mbt *MultiblockTester) Verify(ctx context.Context) (report *Report, err error) {
	ph := mbt.hierarchy
	if ph == nil {
		return nil, fmt.Errorf("%s: hierarchy not built", mbt.Name)
	}
	var (
		patches []*hier.Patch
		index   = make(map[*hier.Patch]int)
	)
	for ln := 0; ln < ph.NumberLevels(); ln++ {
		for _, p := range ph.Level(ln).Patches {
			index[p] = len(patches)
			patches = append(patches, p)
		}
	}
	report = &Report{
		RunID:   mbt.RunID,
		Name:    mbt.Name,
		Results: make([]PatchResult, len(patches)),
		Passed:  true,
	}
	if err = mbt.forEachPatch(ctx, patches, func(p *hier.Patch) error {
		ok, err := mbt.strategy.VerifyResults(p, ph, p.ID.Level, p.Block)
		if err != nil {
			return fmt.Errorf("verify patch %v: %w", p.ID, err)
		}
		report.Results[index[p]] = PatchResult{Patch: p.ID, Block: p.Block, Passed: ok}
		return nil
	}); err != nil {
		return nil, err
	}
	for _, pr := range report.Results {
		report.Passed = report.Passed && pr.Passed
	}
	mbt.Logger.Info("verification complete", "run", mbt.RunID, "patches", len(patches),
		"failed", len(report.Failures()), "passed", report.Passed)
	return
}

// Run builds the hierarchy, performs the fill pass and verifies the result.
func (mbt *MultiblockTester) Run(ctx context.Context) (report *Report, err error) {
	if err = mbt.BuildHierarchy(ctx); err != nil {
		return
	}
	if err = mbt.PerformTests(ctx); err != nil {
		return
	}
	return mbt.Verify(ctx)
}
