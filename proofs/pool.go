package proofs

import (
	"runtime"
	"sync"

	"animica.dev/core/consensus"
)

// Result is one envelope's verification outcome, returned as an owned
// record to the serial admission task.
type Result struct {
	Metrics consensus.ProofMetrics
	Aux     map[string]uint64
	Err     error
}

// VerifyAll dispatches envelope verification across a bounded worker
// pool and returns results in envelope order. Each envelope gets its
// own work budget; no mutable state is shared between workers.
func VerifyAll(ctx *Context, envs []consensus.Envelope, workers int) []Result {
	results := make([]Result, len(envs))
	if len(envs) == 0 {
		return results
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(envs) {
		workers = len(envs)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				local := *ctx
				local.Budget = NewBudget(ctx.Policy.VerifyBudgetOps)
				m, aux, err := Verify(&local, &envs[i])
				results[i] = Result{Metrics: m, Aux: aux, Err: err}
			}
		}()
	}
	for i := range envs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}
