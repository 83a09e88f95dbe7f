package indicator

import (
	"github.com/atlas-desktop/strategyforge/pkg/quote"
)

// Binding describes one indicator or formula to compute, keyed by the alias
// it will be stored under.
type Binding struct {
	Alias string

	// Indicator is a registry name (see Names()). Mutually exclusive with
	// Formula.
	Indicator string
	Params    map[string]float64

	// Input names the series the indicator reads: one of the price fields
	// (open/high/low/close/volume) or another binding's Alias, modeling
	// indicator-of-indicator. Ignored for indicators that NeedsOHLC, since
	// those always read straight from the bound timeframe. Empty defaults
	// to "close".
	Input string

	// Formula is an expression parsed by ParseFormula. Mutually exclusive
	// with Indicator.
	Formula string

	// TimeframeKey selects which frame in Resolve's frames map this binding
	// is computed over. Resolved by the caller (internal/stratctx), which
	// knows which timeframe is primary.
	TimeframeKey string
}

func isPriceField(name string) bool {
	switch name {
	case FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume:
		return true
	}
	return false
}

func (b Binding) dependencies() ([]string, error) {
	if b.Formula != "" {
		def, err := ParseFormula(b.Formula)
		if err != nil {
			return nil, err
		}
		var deps []string
		for _, d := range def.DataDependencies() {
			if !isPriceField(d) {
				deps = append(deps, d)
			}
		}
		return deps, nil
	}
	input := b.Input
	if input == "" {
		input = FieldClose
	}
	if isPriceField(input) {
		return nil, nil
	}
	return []string{input}, nil
}

// Resolve computes every binding's dense series in dependency order,
// returning a map from alias to series. frames maps a TimeframeKey to the
// frame it should be evaluated against.
func Resolve(bindings []Binding, frames map[string]*quote.QuoteFrame) (map[string][]float64, error) {
	byAlias := make(map[string]Binding, len(bindings))
	for _, b := range bindings {
		if _, dup := byAlias[b.Alias]; dup {
			return nil, newFeedError("Resolve", "duplicate alias %q", b.Alias)
		}
		byAlias[b.Alias] = b
	}

	deps := make(map[string][]string, len(bindings))
	for alias, b := range byAlias {
		d, err := b.dependencies()
		if err != nil {
			return nil, err
		}
		for _, dep := range d {
			if _, known := byAlias[dep]; !known {
				return nil, newFeedError("Resolve", "missing dependency %q required by %q", dep, alias)
			}
		}
		deps[alias] = d
	}

	order, err := topologicalOrder(deps)
	if err != nil {
		return nil, err
	}

	results := make(map[string][]float64, len(bindings))
	priceCache := make(map[string]map[string][]float64) // tf key -> field -> series

	for _, alias := range order {
		b := byAlias[alias]
		frame, ok := frames[b.TimeframeKey]
		if !ok {
			return nil, newFeedError("Resolve", "no frame bound for timeframe key %q (alias %q)", b.TimeframeKey, alias)
		}

		if b.Formula != "" {
			def, err := ParseFormula(b.Formula)
			if err != nil {
				return nil, err
			}
			series := map[string][]float64{}
			for _, dep := range def.DataDependencies() {
				if isPriceField(dep) {
					series[dep] = priceField(priceCache, b.TimeframeKey, frame, dep)
				} else {
					series[dep] = results[dep]
				}
			}
			out, err := def.Evaluate(series)
			if err != nil {
				return nil, err
			}
			results[alias] = out
			continue
		}

		spec, ok := Lookup(b.Indicator)
		if !ok {
			return nil, newFeedError("Resolve", "unknown indicator %q for alias %q", b.Indicator, alias)
		}

		if spec.NeedsOHLC {
			ohlc := OHLCSeries{
				Open:   priceField(priceCache, b.TimeframeKey, frame, FieldOpen),
				High:   priceField(priceCache, b.TimeframeKey, frame, FieldHigh),
				Low:    priceField(priceCache, b.TimeframeKey, frame, FieldLow),
				Close:  priceField(priceCache, b.TimeframeKey, frame, FieldClose),
				Volume: priceField(priceCache, b.TimeframeKey, frame, FieldVolume),
			}
			out, err := spec.OHLC(ohlc, b.Params)
			if err != nil {
				return nil, err
			}
			results[alias] = out
			continue
		}

		input := b.Input
		if input == "" {
			input = FieldClose
		}
		var inputSeries []float64
		if isPriceField(input) {
			inputSeries = priceField(priceCache, b.TimeframeKey, frame, input)
		} else {
			inputSeries = results[input]
		}
		out, err := spec.Series(inputSeries, b.Params)
		if err != nil {
			return nil, err
		}
		results[alias] = out
	}

	return results, nil
}

func priceField(cache map[string]map[string][]float64, tfKey string, frame *quote.QuoteFrame, field string) []float64 {
	fields, ok := cache[tfKey]
	if !ok {
		fields = map[string][]float64{}
		cache[tfKey] = fields
	}
	if s, ok := fields[field]; ok {
		return s
	}
	var s []float64
	switch field {
	case FieldOpen:
		s = frame.OpenFloat64()
	case FieldHigh:
		s = frame.HighFloat64()
	case FieldLow:
		s = frame.LowFloat64()
	case FieldClose:
		s = frame.CloseFloat64()
	case FieldVolume:
		s = frame.VolumeFloat64()
	}
	fields[field] = s
	return s
}

// topologicalOrder runs Kahn's algorithm over the alias dependency graph,
// returning a cycle FeedError if the graph is not a DAG.
func topologicalOrder(deps map[string][]string) ([]string, error) {
	indegree := make(map[string]int, len(deps))
	dependents := make(map[string][]string, len(deps))
	for alias := range deps {
		indegree[alias] = 0
	}
	for alias, ds := range deps {
		for _, d := range ds {
			indegree[alias]++
			dependents[d] = append(dependents[d], alias)
		}
	}

	var queue []string
	for alias, deg := range indegree {
		if deg == 0 {
			queue = append(queue, alias)
		}
	}

	var order []string
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, m := range dependents[n] {
			indegree[m]--
			if indegree[m] == 0 {
				queue = append(queue, m)
			}
		}
	}

	if len(order) != len(deps) {
		return nil, newFeedError("topologicalOrder", "circular indicator dependency")
	}
	return order, nil
}
