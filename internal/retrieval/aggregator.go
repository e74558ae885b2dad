package retrieval

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/observability"
	"github.com/cew-ai/assistant/libs/rag-engine/internal/storage"
)

// Aggregator answers "how many X" questions from tabular chunks without the
// model. It triggers only when the question names a countable entity and a
// counting term.
type Aggregator struct {
	intents *Intents
	logger  *observability.Logger
}

// NewAggregator creates an aggregator over in, or the built-in tables when nil.
func NewAggregator(in *Intents, logger *observability.Logger) *Aggregator {
	if in == nil {
		in = DefaultIntents()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Aggregator{intents: in, logger: logger.WithComponent("aggregator")}
}

// GroupCount is the set of distinct counts seen for one group.
type GroupCount struct {
	Group  string
	Counts []int
}

// Aggregation is a deterministic count answer. Total is nil when groups
// disagree; Conflicts then names the ambiguous groups.
type Aggregation struct {
	Entity      string
	Total       *int
	Explicit    bool
	Calculation string
	Groups      []GroupCount
	Conflicts   []string
	Sources     []storage.Result

	labelEN string
	labelTR string
}

// TryAggregate returns an aggregation when the question is a counting
// question for a known entity and the candidates contain either an explicit
// total row or counts for at least two groups.
func (a *Aggregator) TryAggregate(qc QueryContext, candidates []storage.Result) (*Aggregation, bool) {
	normalized := qc.normalized
	if normalized == "" {
		normalized = normalizeText(qc.Question)
	}

	for _, c := range a.intents.countables {
		if !c.terms.Match(normalized) || !c.count.Match(normalized) {
			continue
		}
		if agg, ok := a.aggregate(c, candidates); ok {
			a.logger.Debug().
				Str("entity", c.rule.Name).
				Bool("explicit", agg.Explicit).
				Int("groups", len(agg.Groups)).
				Strs("conflicts", agg.Conflicts).
				Msg("Deterministic aggregation")
			return agg, true
		}
	}
	return nil, false
}

type countRow struct {
	result storage.Result
	group  string
	count  int
	total  bool
}

func (a *Aggregator) aggregate(c compiledCountable, candidates []storage.Result) (*Aggregation, bool) {
	var rows []countRow
	for _, r := range candidates {
		if row, ok := parseCountRow(c, r); ok {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil, false
	}

	agg := &Aggregation{
		Entity:  c.rule.Name,
		labelEN: orDefault(c.rule.LabelEN, c.rule.Name),
		labelTR: orDefault(c.rule.LabelTR, c.rule.Name),
	}

	for _, row := range rows {
		if row.total {
			total := row.count
			agg.Total = &total
			agg.Explicit = true
			agg.Sources = []storage.Result{row.result}
			return agg, true
		}
	}

	byGroup := make(map[string]*GroupCount)
	var order []string
	seenSource := make(map[string]bool)
	for _, row := range rows {
		if row.group == "" {
			continue
		}
		g, ok := byGroup[row.group]
		if !ok {
			g = &GroupCount{Group: row.group}
			byGroup[row.group] = g
			order = append(order, row.group)
		}
		if !containsInt(g.Counts, row.count) {
			g.Counts = append(g.Counts, row.count)
		}
		if !seenSource[row.result.ID] {
			seenSource[row.result.ID] = true
			agg.Sources = append(agg.Sources, row.result)
		}
	}
	if len(order) < 2 {
		return nil, false
	}

	sort.SliceStable(order, func(i, j int) bool { return naturalLess(order[i], order[j]) })

	sum := 0
	parts := make([]string, 0, len(order))
	for _, name := range order {
		g := byGroup[name]
		agg.Groups = append(agg.Groups, *g)
		if len(g.Counts) > 1 {
			agg.Conflicts = append(agg.Conflicts, name)
			continue
		}
		sum += g.Counts[0]
		parts = append(parts, strconv.Itoa(g.Counts[0]))
	}

	if len(agg.Conflicts) == 0 {
		agg.Total = &sum
		agg.Calculation = strings.Join(parts, " + ")
	}
	return agg, true
}

// parseCountRow extracts a count from a tabular result. The count is either
// a field named after the entity ("Inverter Count: 27") or a quantity field
// on a row that names the entity elsewhere ("Equipment: Inverter, Qty: 27").
func parseCountRow(c compiledCountable, r storage.Result) (countRow, bool) {
	origin := r.Origin
	if origin == nil {
		origin = storage.ParseOrigin(r.Text, r.Metadata.SectionType)
	}
	tab, ok := origin.(storage.Tabular)
	if !ok || len(tab.Fields) == 0 {
		return countRow{}, false
	}

	countIdx := -1
	for i, f := range tab.Fields {
		if c.terms.Match(normalizeText(f.Key)) {
			if _, ok := exactInt(f.Value); ok {
				countIdx = i
				break
			}
		}
	}
	if countIdx < 0 {
		namesEntity := false
		for _, f := range tab.Fields {
			if c.terms.Match(normalizeText(f.Value)) {
				namesEntity = true
				break
			}
		}
		if namesEntity {
			for i, f := range tab.Fields {
				if c.quantity.Match(normalizeText(f.Key)) {
					if _, ok := exactInt(f.Value); ok {
						countIdx = i
						break
					}
				}
			}
		}
	}
	if countIdx < 0 {
		return countRow{}, false
	}

	n, _ := exactInt(tab.Fields[countIdx].Value)
	row := countRow{result: r, count: n}

	groupIdx := -1
	for i, f := range tab.Fields {
		if i != countIdx && c.group.Match(normalizeText(f.Key)) && f.Value != "" {
			groupIdx = i
			break
		}
	}
	if groupIdx < 0 {
		for i, f := range tab.Fields {
			if i != countIdx && c.group.Match(normalizeText(f.Value)) {
				groupIdx = i
				break
			}
		}
	}

	// A per-group row whose count column is labelled "Total Inverters" is
	// still a group count. The count key only marks a grand total on rows
	// without a group.
	for i, f := range tab.Fields {
		labelled := c.total.Match(normalizeText(f.Value))
		if i != countIdx || groupIdx < 0 {
			labelled = labelled || c.total.Match(normalizeText(f.Key))
		}
		if labelled {
			row.total = true
			return row, true
		}
	}

	if groupIdx >= 0 {
		row.group = tab.Fields[groupIdx].Value
	}
	return row, true
}

// Answer renders the aggregation in lang.
func (a *Aggregation) Answer(lang Language) string {
	var b strings.Builder
	tr := lang == LanguageTurkish

	if a.Total != nil {
		if tr {
			fmt.Fprintf(&b, "Toplam %s sayısı %d", a.labelTR, *a.Total)
		} else {
			fmt.Fprintf(&b, "The total number of %s is %d", a.labelEN, *a.Total)
		}
		if a.Calculation != "" {
			fmt.Fprintf(&b, " (%s)", a.Calculation)
		}
		b.WriteString(".")
	} else if tr {
		fmt.Fprintf(&b, "Gruplara göre %s sayıları:", a.labelTR)
	} else {
		fmt.Fprintf(&b, "Number of %s per group:", a.labelEN)
	}

	if len(a.Groups) > 0 {
		if a.Total != nil {
			if tr {
				b.WriteString("\n\nDağılım:")
			} else {
				b.WriteString("\n\nBreakdown:")
			}
		}
		for _, g := range a.Groups {
			counts := make([]string, len(g.Counts))
			for i, n := range g.Counts {
				counts[i] = strconv.Itoa(n)
			}
			fmt.Fprintf(&b, "\n- %s: %s", g.Group, strings.Join(counts, " / "))
		}
	}

	if len(a.Conflicts) > 0 {
		names := strings.Join(a.Conflicts, ", ")
		if tr {
			fmt.Fprintf(&b, "\n\nNot: %s için çelişkili sayılar bulundu, bu nedenle kesin bir toplam verilemiyor.", names)
		} else {
			fmt.Fprintf(&b, "\n\nNote: conflicting counts were found for %s, so no reliable total can be given.", names)
		}
	}
	return b.String()
}

func exactInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// naturalLess compares strings treating digit runs as numbers, so
// "Substation 2" sorts before "Substation 10".
func naturalLess(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ra) && j < len(rb) {
		if unicode.IsDigit(ra[i]) && unicode.IsDigit(rb[j]) {
			si := i
			for i < len(ra) && unicode.IsDigit(ra[i]) {
				i++
			}
			sj := j
			for j < len(rb) && unicode.IsDigit(rb[j]) {
				j++
			}
			na, _ := strconv.Atoi(string(ra[si:i]))
			nb, _ := strconv.Atoi(string(rb[sj:j]))
			if na != nb {
				return na < nb
			}
			continue
		}
		ca, cb := unicode.ToLower(ra[i]), unicode.ToLower(rb[j])
		if ca != cb {
			return ca < cb
		}
		i++
		j++
	}
	return len(ra)-i < len(rb)-j
}
