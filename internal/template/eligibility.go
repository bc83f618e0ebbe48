package template

// Match rules, in priority order
const (
	RuleNone = iota
	RuleAccount
	RuleChannel
	RuleAccountAsChannel
)

// MatchRule returns the first eligibility rule that binds the template to
// the channel, or RuleNone. Status is not considered here.
func MatchRule(t *Template, ch *Channel) int {
	switch {
	case !t.AccountID.IsZero() && t.AccountID == ch.AccountID:
		return RuleAccount
	case !t.ChannelID.IsZero() && t.ChannelID == ch.ID:
		return RuleChannel
	// Legacy records stored the channel id in account_id
	case !t.AccountID.IsZero() && t.AccountID == ch.ID:
		return RuleAccountAsChannel
	default:
		return RuleNone
	}
}

// Available returns the approved templates usable from the channel,
// preserving input order.
func Available(templates []Template, ch *Channel) []Template {
	if ch == nil {
		return nil
	}
	var out []Template
	for i := range templates {
		t := &templates[i]
		if !t.Approved() {
			continue
		}
		if MatchRule(t, ch) == RuleNone {
			continue
		}
		out = append(out, *t)
	}
	return out
}

// Eligible reports whether a single template may be used from the channel
func Eligible(t *Template, ch *Channel) bool {
	if t == nil || ch == nil {
		return false
	}
	return t.Approved() && MatchRule(t, ch) != RuleNone
}
