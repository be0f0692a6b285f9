package telegram

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/warp/sholat-ledger/attendance"
)

// DecodeUpdate parses a webhook body.
func DecodeUpdate(body []byte) (tgbotapi.Update, error) {
	var u tgbotapi.Update
	if err := json.Unmarshal(body, &u); err != nil {
		return u, fmt.Errorf("decode update: %w", err)
	}
	return u, nil
}

// AnswerFromPollAnswer maps a poll_answer update. An empty option list is a
// retraction and yields a nil OptionIndex.
//
// Votes cast on behalf of a chat (anonymous admins) carry voter_chat instead
// of user; they map to an empty identity.
func AnswerFromPollAnswer(pa *tgbotapi.PollAnswer) attendance.Answer {
	a := attendance.Answer{PollID: pa.PollID}
	if pa.User.ID != 0 {
		a.User = attendance.User{
			ID:          strconv.FormatInt(pa.User.ID, 10),
			DisplayName: DisplayName(pa.User),
		}
	}
	if len(pa.OptionIDs) > 0 {
		a.OptionIndex = attendance.IntPtr(pa.OptionIDs[0])
	}
	return a
}

// DisplayName prefers the full name and falls back to the username.
func DisplayName(u tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.UserName
	}
	return name
}

// ResultsFromPoll maps a poll state update to a tally.
func ResultsFromPoll(p *tgbotapi.Poll, at time.Time) attendance.PollResults {
	r := attendance.PollResults{
		PollID:      p.ID,
		Closed:      p.IsClosed,
		TotalVoters: p.TotalVoterCount,
		Counts:      make([]attendance.OptionCount, 0, len(p.Options)),
		UpdatedAt:   at,
	}
	for _, o := range p.Options {
		r.Counts = append(r.Counts, attendance.OptionCount{Label: o.Text, Voters: o.VoterCount})
	}
	return r
}
