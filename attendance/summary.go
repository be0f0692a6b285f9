package attendance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SUMMARY - Tally of the answer log
// =============================================================================

// OptionTally counts members whose latest answer is one option.
type OptionTally struct {
	Label  string
	Voters int
	Share  decimal.Decimal // percentage of counted voters, 2 places
}

type Summary struct {
	PollID    string
	Options   []OptionTally
	Counted   int // members whose latest answer is a recognized option
	Retracted int // members whose latest answer is a retraction or unrecognized
}

// Summarize replays the log; the latest record per identity wins. Records
// without an identity are skipped.
func Summarize(m PollMetadata, log []AnswerRecord) Summary {
	latest := make(map[string]*string)
	var order []string
	for _, rec := range log {
		id := NormalizeIdentity(rec.UserID)
		if id == "" {
			continue
		}
		if _, seen := latest[id]; !seen {
			order = append(order, id)
		}
		latest[id] = rec.Option
	}

	s := Summary{PollID: m.PollID, Options: make([]OptionTally, len(m.Options))}
	for i, label := range m.Options {
		s.Options[i].Label = label
	}
	for _, id := range order {
		opt, ok := m.OptionByLabel(deref(latest[id]))
		if latest[id] == nil || !ok {
			s.Retracted++
			continue
		}
		s.Options[opt.Index].Voters++
		s.Counted++
	}

	hundred := decimal.NewFromInt(100)
	for i := range s.Options {
		if s.Counted == 0 {
			s.Options[i].Share = decimal.Zero
			continue
		}
		s.Options[i].Share = decimal.NewFromInt(int64(s.Options[i].Voters)).
			Mul(hundred).
			Div(decimal.NewFromInt(int64(s.Counted))).
			Round(2)
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// PollResults is Telegram's own tally, as last reported by a poll update.
// Unlike Summary it counts anonymous voters and is replaced on every update.
type PollResults struct {
	PollID      string
	Closed      bool
	TotalVoters int
	Counts      []OptionCount
	UpdatedAt   time.Time
}

// OptionCount is one option's voter count in a Telegram poll update.
type OptionCount struct {
	Label  string
	Voters int
}
