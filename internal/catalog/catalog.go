// Package catalog holds the static instrument table the Driver falls
// back to when a dispatcher does not supply explicit tick size or
// default take-profit/stop-loss values. It is frozen at init, the same
// static data is kept immutable after load.
package catalog

// Instrument describes one tradable root symbol's tick economics.
type Instrument struct {
	RootSymbol     string
	TickSize       float64
	DefaultTPTicks int
	DefaultSLTicks int
}

// table is populated once at package init and never mutated after.
var table = map[string]Instrument{
	"ES":  {RootSymbol: "ES", TickSize: 0.25, DefaultTPTicks: 16, DefaultSLTicks: 8},
	"NQ":  {RootSymbol: "NQ", TickSize: 0.25, DefaultTPTicks: 20, DefaultSLTicks: 10},
	"YM":  {RootSymbol: "YM", TickSize: 1.0, DefaultTPTicks: 30, DefaultSLTicks: 15},
	"RTY": {RootSymbol: "RTY", TickSize: 0.1, DefaultTPTicks: 20, DefaultSLTicks: 10},
	"CL":  {RootSymbol: "CL", TickSize: 0.01, DefaultTPTicks: 40, DefaultSLTicks: 20},
	"GC":  {RootSymbol: "GC", TickSize: 0.1, DefaultTPTicks: 30, DefaultSLTicks: 15},
}

// Lookup returns the catalog entry for a root symbol and whether it
// was found. Callers that need a value for an unlisted symbol must
// supply one explicitly; the catalog does not guess.
func Lookup(rootSymbol string) (Instrument, bool) {
	inst, ok := table[rootSymbol]
	return inst, ok
}

// TickSize resolves an explicit value if nonzero, otherwise falls back
// to the catalog entry for rootSymbol.
func TickSize(rootSymbol string, explicit float64) float64 {
	if explicit != 0 {
		return explicit
	}
	if inst, ok := table[rootSymbol]; ok {
		return inst.TickSize
	}
	return 0
}

// DefaultTicks resolves explicit TP/SL tick counts if nonzero,
// otherwise falls back to the catalog defaults for rootSymbol.
func DefaultTicks(rootSymbol string, explicitTP, explicitSL int) (tp, sl int) {
	tp, sl = explicitTP, explicitSL
	inst, ok := table[rootSymbol]
	if !ok {
		return
	}
	if tp == 0 {
		tp = inst.DefaultTPTicks
	}
	if sl == 0 {
		sl = inst.DefaultSLTicks
	}
	return
}
