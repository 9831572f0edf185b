package model

// transitionRule describes the single legal transition for an event kind:
// the status a transfer moves to, and the statuses it may move from.
type transitionRule struct {
	target TransferStatus
	from   []TransferStatus
}

// Transitions are independent of ordering guarantees from providers: events
// arrive late, duplicated, and interleaved, so every rule is safe to re-apply
// and nothing regresses out of COMPLETED/FAILED/CANCELLED except the explicit
// RESOLVED dispute path.
var transitionRules = map[EventKind]transitionRule{
	KindSettled:   {target: StatusCompleted, from: []TransferStatus{StatusPending, StatusDelayed}},
	KindFailed:    {target: StatusFailed, from: []TransferStatus{StatusPending, StatusDelayed}},
	KindDelayed:   {target: StatusDelayed, from: []TransferStatus{StatusPending}},
	KindPending:   {target: StatusPending, from: []TransferStatus{StatusPending, StatusDelayed}},
	KindCancelled: {target: StatusCancelled, from: []TransferStatus{StatusPending, StatusDelayed}},
	KindResolved:  {target: StatusResolved, from: []TransferStatus{StatusPending, StatusDelayed, StatusCompleted}},
}

// TransitionRule returns the target status and the allowed source statuses for
// kind. ok is false for UNHANDLED and unknown kinds, which never transition.
func TransitionRule(kind EventKind) (target TransferStatus, from []TransferStatus, ok bool) {
	rule, ok := transitionRules[kind]
	if !ok {
		return "", nil, false
	}
	return rule.target, append([]TransferStatus(nil), rule.from...), true
}

// NextStatus computes the status a transfer currently in current moves to when
// an event of kind is observed. ok is false when the event is a no-op: an
// unhandled kind, a source status outside the rule's allowed set, or a
// transition that would not change the status.
func NextStatus(current TransferStatus, kind EventKind) (TransferStatus, bool) {
	rule, found := transitionRules[kind]
	if !found {
		return current, false
	}
	for _, s := range rule.from {
		if s == current {
			if rule.target == current {
				return current, false
			}
			return rule.target, true
		}
	}
	return current, false
}

// TerminalStatus reports whether no automated transition other than the
// RESOLVED override can move a transfer out of s.
func TerminalStatus(s TransferStatus) bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusResolved:
		return true
	}
	return false
}
