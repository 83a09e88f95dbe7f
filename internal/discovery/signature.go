package discovery

import (
	"fmt"
	"sort"
	"strings"

	"github.com/atlas-desktop/strategyforge/pkg/strategydef"
)

// StructuralSignature computes a canonical-sorted tuple for duplicate
// detection: indicator aliases, nested relations, condition triples (kind,
// operand A, operand B; condition IDs are not included), handler names, and
// timeframes.
// Two candidates with an equal signature are considered identical.
func StructuralSignature(def *strategydef.StrategyDefinition) string {
	var parts []string

	var indicators []string
	for _, b := range def.IndicatorBindings {
		indicators = append(indicators, fmt.Sprintf("ind(%s,%s,%s,%s)", b.Alias, b.Indicator, b.Input, b.Timeframe.String()))
	}
	sort.Strings(indicators)
	parts = append(parts, "I["+strings.Join(indicators, ";")+"]")

	var conditions []string
	for _, c := range def.ConditionBindings {
		conditions = append(conditions, fmt.Sprintf("cond(%s,%s,%s)", c.Kind, operandKey(c.A), operandKey(c.B)))
	}
	sort.Strings(conditions)
	parts = append(parts, "C["+strings.Join(conditions, ";")+"]")

	var handlers []string
	for _, h := range def.StopHandlers {
		handlers = append(handlers, "stop:"+h.HandlerName)
	}
	for _, h := range def.TakeHandlers {
		handlers = append(handlers, "take:"+h.HandlerName)
	}
	sort.Strings(handlers)
	parts = append(parts, "H["+strings.Join(handlers, ";")+"]")

	var timeframes []string
	for _, tf := range def.TimeframeRequirements() {
		timeframes = append(timeframes, tf.String())
	}
	sort.Strings(timeframes)
	parts = append(parts, "T["+strings.Join(timeframes, ";")+"]")

	return strings.Join(parts, "|")
}
