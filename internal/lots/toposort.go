package lots

import (
	"fmt"
	"sort"

	"ledgerforge/internal/models"
)

// topoSort orders transaction ids via Kahn's algorithm, using
// LinkTransfer links (source -> target) as edges. Ties among
// simultaneously-ready nodes break on (datetime ASC, id ASC). A
// remaining cycle is a hard error naming one offending path, since a
// true transfer cycle (A funds B funds A) is invalid data.
func topoSort(txs []models.Transaction, links []models.TransactionLink) ([]string, error) {
	byID := make(map[string]*models.Transaction, len(txs))
	for i := range txs {
		byID[txs[i].ID] = &txs[i]
	}

	inDegree := make(map[string]int, len(txs))
	edges := make(map[string][]string) // source -> targets
	for _, tx := range txs {
		inDegree[tx.ID] = 0
	}
	for _, l := range links {
		if l.LinkType != models.LinkTransfer || !l.EligibleForPropagation() {
			continue
		}
		if _, ok := byID[l.SourceTransactionID]; !ok {
			continue
		}
		if _, ok := byID[l.TargetTransactionID]; !ok {
			continue
		}
		edges[l.SourceTransactionID] = append(edges[l.SourceTransactionID], l.TargetTransactionID)
		inDegree[l.TargetTransactionID]++
	}

	ready := make([]string, 0, len(txs))
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sortByTieBreak(ready, byID)

	var order []string
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var newlyReady []string
		for _, next := range edges[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				newlyReady = append(newlyReady, next)
			}
		}
		if len(newlyReady) > 0 {
			sortByTieBreak(newlyReady, byID)
			ready = mergeSorted(ready, newlyReady, byID)
		}
	}

	if len(order) != len(txs) {
		return nil, fmt.Errorf("lots: transfer-link cycle detected involving %s", cyclePath(inDegree, edges))
	}
	return order, nil
}

func sortByTieBreak(ids []string, byID map[string]*models.Transaction) {
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := byID[ids[i]], byID[ids[j]]
		if !ti.Datetime.Equal(tj.Datetime) {
			return ti.Datetime.Before(tj.Datetime)
		}
		return ti.ID < tj.ID
	})
}

func mergeSorted(a, b []string, byID map[string]*models.Transaction) []string {
	out := append(append([]string(nil), a...), b...)
	sortByTieBreak(out, byID)
	return out
}

func cyclePath(inDegree map[string]int, edges map[string][]string) string {
	var stuck []string
	for id, deg := range inDegree {
		if deg > 0 {
			stuck = append(stuck, id)
		}
	}
	sort.Strings(stuck)
	if len(stuck) == 0 {
		return "(unknown)"
	}

	start := stuck[0]
	visited := map[string]bool{start: true}
	path := []string{start}
	current := start
	for i := 0; i < len(stuck)+1; i++ {
		next := ""
		for _, candidate := range edges[current] {
			if inDegree[candidate] > 0 {
				next = candidate
				break
			}
		}
		if next == "" {
			break
		}
		if visited[next] {
			path = append(path, next)
			break
		}
		visited[next] = true
		path = append(path, next)
		current = next
	}

	out := ""
	for i, id := range path {
		if i > 0 {
			out += " -> "
		}
		out += id
	}
	return out
}
