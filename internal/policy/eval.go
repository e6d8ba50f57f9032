package policy

import "github.com/dantte-lp/ribd/internal/addrfamily"

// Evaluate runs a policy's statement chain against one (prefix, info)
// pair (spec.md section 4.6, import-pipeline step 4): conditions within
// a statement must all match for it to apply; actions within a matched
// statement run in order; a matched terminal statement ends the chain
// immediately; a route matching no statement falls through to the
// policy's default verdict.
func Evaluate(policy *Policy, sets *MatchSets, prefix addrfamily.Prefix, info RoutePolicyInfo) Verdict {
	if sets == nil {
		sets = NewMatchSets()
	}

	for _, stmt := range policy.Statements {
		if !allMatch(stmt.Conditions, sets, prefix, info) {
			continue
		}

		for _, action := range stmt.Actions {
			info = action.Apply(info)
		}

		switch stmt.Terminal {
		case terminalAccept:
			return Verdict{Action: ActionAccept, Info: info}
		case terminalReject:
			return Verdict{Action: ActionReject, Info: info}
		default:
			// Non-terminal statement: actions applied, keep evaluating
			// subsequent statements against the modified info.
		}
	}

	if policy.Default == DefaultAcceptRoute {
		return Verdict{Action: ActionAccept, Info: info}
	}
	return Verdict{Action: ActionReject, Info: info}
}

func allMatch(conditions []Condition, sets *MatchSets, prefix addrfamily.Prefix, info RoutePolicyInfo) bool {
	for _, c := range conditions {
		if !c.Match(sets, prefix, info) {
			return false
		}
	}
	return true
}
