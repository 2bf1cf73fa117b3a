package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kanselarij/public-export-service/app/sparql"
)

// newsItem is one publishable unit read back from an export graph, with
// the agenda item number it originated from and its responsible
// mandatees.
type newsItem struct {
	URI       string
	Number    int
	Mandatees []mandateeRef
}

type mandateeRef struct {
	URI     string
	Title   string
	Rank    int
	HasRank bool
}

type assignment struct {
	URI      string
	Priority int
}

// resolvePriorities reads the news items of an export graph, computes
// their final ordering and writes the result back. An empty graph is a
// no-op, never an error.
func (p *Pipeline) resolvePriorities(ctx context.Context, graph, category string) error {
	query, err := p.catalog.Render("news-items-for-priority", map[string]string{
		"graph": sparql.EscapeURI(graph),
	})
	if err != nil {
		return err
	}

	rows, err := p.working.Select(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to read news items for priority calculation: %w", err)
	}

	items := collectNewsItems(rows)
	if len(items) == 0 {
		return nil
	}

	var assignments []assignment
	switch category {
	case CategoryMededeling:
		assignments = resolveMededelingen(items)
	default:
		assignments = resolveNieuws(items)
	}

	for _, a := range assignments {
		query, err := p.catalog.Render("insert-news-item-priority", map[string]string{
			"graph":    sparql.EscapeURI(graph),
			"newsItem": sparql.EscapeURI(a.URI),
			"priority": sparql.EscapeInt(a.Priority),
		})
		if err != nil {
			return err
		}
		if err := p.working.Update(ctx, query); err != nil {
			return fmt.Errorf("failed to write priority of <%s>: %w", a.URI, err)
		}
	}

	slog.Debug("Priorities resolved", "graph", graph, "category", category, "items", len(items))

	return nil
}

// collectNewsItems aggregates the one-row-per-mandatee result shape into
// one record per news item with a deduplicated mandatee list.
func collectNewsItems(rows []sparql.Row) []newsItem {
	byURI := make(map[string]*newsItem)
	var order []string

	for _, row := range rows {
		uri, ok := row.Value("newsItem")
		if !ok {
			continue
		}
		number, ok := row.Int("number")
		if !ok {
			continue
		}

		item, exists := byURI[uri]
		if !exists {
			item = &newsItem{URI: uri, Number: number}
			byURI[uri] = item
			order = append(order, uri)
		}

		if mandatee, ok := row.Value("mandatee"); ok {
			duplicate := false
			for _, m := range item.Mandatees {
				if m.URI == mandatee {
					duplicate = true
					break
				}
			}
			if !duplicate {
				ref := mandateeRef{URI: mandatee}
				ref.Title, _ = row.Value("title")
				ref.Rank, ref.HasRank = row.Int("rank")
				item.Mandatees = append(item.Mandatees, ref)
			}
		}
	}

	items := make([]newsItem, 0, len(byURI))
	for _, uri := range order {
		items = append(items, *byURI[uri])
	}
	return items
}

// resolveNieuws orders substantive news items. Items cluster by the set
// of responsible mandatees; groups are ordered by protocol rank when
// every mandatee carries one, by lowest agenda item number otherwise.
// The result is a dense 0..N-1 ranking over all mandatee-bearing items.
// Items without any mandatee sort after every group, keeping their
// relative agenda order through a fixed offset.
func resolveNieuws(items []newsItem) []assignment {
	type group struct {
		key       string
		mandatees []mandateeRef
		items     []newsItem
	}

	groups := make(map[string]*group)
	var groupOrder []string
	var mandateeless []newsItem

	for _, item := range items {
		if len(item.Mandatees) == 0 {
			mandateeless = append(mandateeless, item)
			continue
		}

		key := groupKey(item.Mandatees)
		g, exists := groups[key]
		if !exists {
			g = &group{key: key, mandatees: item.Mandatees}
			groups[key] = g
			groupOrder = append(groupOrder, key)
		}
		g.items = append(g.items, item)
	}

	ranked := true
	for _, key := range groupOrder {
		for _, m := range groups[key].mandatees {
			if !m.HasRank {
				ranked = false
				break
			}
		}
	}

	sorted := make([]*group, 0, len(groupOrder))
	for _, key := range groupOrder {
		sorted = append(sorted, groups[key])
	}

	if ranked {
		// Compare groups by their ascending rank sequences; a strict
		// prefix sorts before its extensions.
		rankSeq := func(g *group) []int {
			seq := make([]int, 0, len(g.mandatees))
			for _, m := range g.mandatees {
				seq = append(seq, m.Rank)
			}
			sort.Ints(seq)
			return seq
		}
		sort.SliceStable(sorted, func(i, j int) bool {
			return compareIntSeqs(rankSeq(sorted[i]), rankSeq(sorted[j])) < 0
		})
	} else {
		minNumber := func(g *group) int {
			min := g.items[0].Number
			for _, item := range g.items[1:] {
				if item.Number < min {
					min = item.Number
				}
			}
			return min
		}
		sort.SliceStable(sorted, func(i, j int) bool {
			a, b := minNumber(sorted[i]), minNumber(sorted[j])
			if a != b {
				return a < b
			}
			return sorted[i].key < sorted[j].key
		})
	}

	var assignments []assignment
	priority := 0
	for _, g := range sorted {
		sort.SliceStable(g.items, func(i, j int) bool {
			if g.items[i].Number != g.items[j].Number {
				return g.items[i].Number < g.items[j].Number
			}
			return g.items[i].URI < g.items[j].URI
		})
		for _, item := range g.items {
			assignments = append(assignments, assignment{URI: item.URI, Priority: priority})
			priority++
		}
	}

	for _, item := range mandateeless {
		assignments = append(assignments, assignment{URI: item.URI, Priority: mandateelessOffset + item.Number})
	}

	return assignments
}

// resolveMededelingen appends announcements after every nieuws item while
// preserving their agenda order. No mandatee grouping applies.
func resolveMededelingen(items []newsItem) []assignment {
	assignments := make([]assignment, 0, len(items))
	for _, item := range items {
		assignments = append(assignments, assignment{URI: item.URI, Priority: announcementOffset + item.Number})
	}
	return assignments
}

func groupKey(mandatees []mandateeRef) string {
	uris := make([]string, 0, len(mandatees))
	for _, m := range mandatees {
		uris = append(uris, m.URI)
	}
	sort.Strings(uris)
	return strings.Join(uris, "|")
}

func compareIntSeqs(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] - b[i]
		}
	}
	return len(a) - len(b)
}
