package main

// Restrict which unit ids may be forwarded to the bus
type UnitRule struct {
	From uint8 `yaml:"from"`
	To   uint8 `yaml:"to"`
}

// An empty rule list allows every unit.
func CheckUnit(unit uint8, rules []UnitRule) bool {
	if len(rules) == 0 {
		return true
	}
	for _, rule := range rules {
		lower := rule.From
		upper := rule.To
		if upper == 0 {
			upper = lower
		}
		if unit >= lower && unit <= upper {
			return true
		}
	}
	return false
}
