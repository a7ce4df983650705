package analysis

import (
	"context"
	"errors"
	"sync"
	"time"

	"solarscan/internal/types"
)

// Bounds on the number of addresses in one comparison.
const (
	MinCompareAddresses = 2
	MaxCompareAddresses = 5
)

// compareGrace lets a comparison observe the budget timer firing on its
// slowest entry instead of racing it.
const compareGrace = 500 * time.Millisecond

// CompareInput is a batch of addresses analysed under one building type.
type CompareInput struct {
	Addresses    []string
	BuildingType types.BuildingType
}

// CompareEntry is the outcome for one address. Analysis is set when a request
// was created or reused; Error when submission itself was rejected.
type CompareEntry struct {
	Address  string                 `json:"address"`
	Analysis *types.AnalysisRequest `json:"analysis,omitempty"`
	Error    *types.Failure         `json:"error,omitempty"`
}

// CompareResult preserves input order. BestIndex points at the completed entry
// with the highest annual savings, or is nil when none completed.
type CompareResult struct {
	Entries   []CompareEntry `json:"entries"`
	BestIndex *int           `json:"best_index"`
}

// CompareMany submits every address and waits for each to finish or exhaust its
// budget. A failure of one entry never fails the batch.
func (o *Orchestrator) CompareMany(ctx context.Context, in CompareInput) (CompareResult, error) {
	n := len(in.Addresses)
	if n < MinCompareAddresses || n > MaxCompareAddresses {
		return CompareResult{}, types.NewAppErrorWithDetails(types.ErrCodeValidationCompareCount,
			"between 2 and 5 addresses are required", nil, map[string]any{"count": n})
	}
	bt := in.BuildingType
	if bt == "" {
		bt = types.BuildingHouse
	}
	if !bt.IsValid() {
		return CompareResult{}, types.NewAppErrorWithDetails(types.ErrCodeValidationBuildingType,
			"building_type must be one of: house, apartment", nil,
			map[string]any{"building_type": string(bt)})
	}

	waitCtx, cancel := context.WithTimeout(ctx, o.cfg.Budget+compareGrace)
	defer cancel()

	entries := make([]CompareEntry, n)
	var wg sync.WaitGroup
	for i, addr := range in.Addresses {
		entries[i].Address = addr
		receipt, err := o.Submit(ctx, SubmitInput{Address: addr, BuildingType: bt})
		if err != nil {
			entries[i].Error = failureOf(err)
			continue
		}
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			snap, err := o.store.Wait(waitCtx, id)
			if err != nil && snap.ID == "" {
				entries[i].Error = failureOf(err)
				return
			}
			entries[i].Analysis = &snap
		}(i, receipt.RequestID)
	}
	wg.Wait()

	return CompareResult{Entries: entries, BestIndex: bestIndex(entries)}, nil
}

func bestIndex(entries []CompareEntry) *int {
	best := -1
	var top int64
	for i, e := range entries {
		if e.Analysis == nil || e.Analysis.Status != types.StatusCompleted || e.Analysis.Result == nil {
			continue
		}
		if s := e.Analysis.Result.Economics.AnnualSavings; best < 0 || s > top {
			best, top = i, s
		}
	}
	if best < 0 {
		return nil
	}
	return &best
}

func failureOf(err error) *types.Failure {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return &types.Failure{Code: appErr.Code, Message: appErr.Message, Class: types.FailurePipeline}
	}
	return &types.Failure{Code: types.ErrCodeInternalUnexpected, Message: internalFaultMessage, Class: types.FailureInternal}
}
