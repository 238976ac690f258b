package main

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"p2pcalc/commontypes"
	"p2pcalc/modules"
)

func (a *app) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		a.writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	query := r.URL.Query().Get("q")
	store, _ := a.session(r)

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var allResults []commontypes.Result
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, mod := range a.modules {
		wg.Add(1)
		go func(m modules.Module) {
			defer wg.Done()

			results, err := m.ProcessQuery(ctx, query, store)
			if err != nil {
				a.log.Warnf("Module '%s' failed for query '%s': %v", m.Name(), query, err)
				return
			}

			mu.Lock()
			for _, res := range results {
				if res.IcoPath == "" {
					res.IcoPath = m.DefaultIconPath()
				}
				if res.IcoPath == "" {
					res.IcoPath = defaultModuleIcon
				}
				allResults = append(allResults, res)
			}
			mu.Unlock()
		}(mod)
	}

	waitChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitChan)
	}()

	select {
	case <-waitChan:
	case <-ctx.Done():
		a.log.Warnf("Request processing timed out or was canceled for query: '%s', error: %v", query, ctx.Err())
	}

	// Modules that missed the deadline may still append.
	mu.Lock()
	results := append([]commontypes.Result(nil), allResults...)
	mu.Unlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) == 0 && query != "" {
		results = append(results, commontypes.Result{
			Title:    "No results found",
			SubTitle: "Please try a different query.",
			IcoPath:  noResultsIconPath,
			Action: commontypes.Action{
				Method:     commontypes.MethodChangeQuery,
				Parameters: []any{query, false},
			},
		})
	} else if len(results) == 0 {
		results = []commontypes.Result{}
	}

	a.writeJSON(w, http.StatusOK, results)
}
