package resolver

// FamilyPreference tilts which address family Order starts with.
type FamilyPreference int

const (
	// PreferAuto starts with IPv6 whenever at least one AAAA answer was
	// returned, matching RFC 8305's default guidance.
	PreferAuto FamilyPreference = iota
	PreferIPv4
	PreferIPv6
)

// Order interleaves answers family-alternating for Happy Eyeballs v2
// connection racing (§4.1): starting family first, then the other,
// repeating until both lists are drained.
//
// With PreferAuto, IPv6 leads when at least one AAAA answer exists;
// otherwise IPv4 leads (there is nothing else to start with).
func Order(answers []Answer, pref FamilyPreference) []Answer {
	var v4, v6 []Answer
	for _, a := range answers {
		if a.Addr.Is4() || a.Addr.Is4In6() {
			v4 = append(v4, a)
		} else {
			v6 = append(v6, a)
		}
	}

	first, second := v4, v6
	switch pref {
	case PreferIPv6:
		first, second = v6, v4
	case PreferIPv4:
		first, second = v4, v6
	default: // PreferAuto
		if len(v6) > 0 {
			first, second = v6, v4
		}
	}

	out := make([]Answer, 0, len(answers))
	for i := 0; i < len(first) || i < len(second); i++ {
		if i < len(first) {
			out = append(out, first[i])
		}
		if i < len(second) {
			out = append(out, second[i])
		}
	}
	return out
}
