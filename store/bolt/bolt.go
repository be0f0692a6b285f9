// Package bolt is an embedded bbolt implementation of attendance.PollStore.
//
// Layout:
//
//	polls/<poll_id>            -> PollMetadata JSON
//	answers/<poll_id>/<seq>    -> AnswerRecord JSON, seq from NextSequence
//	holidays/<id>              -> Holiday JSON
//	results/<poll_id>          -> PollResults JSON, overwritten per update
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/warp/sholat-ledger/attendance"
)

var (
	pollsBucket    = []byte("polls")
	answersBucket  = []byte("answers")
	holidaysBucket = []byte("holidays")
	resultsBucket  = []byte("results")
)

type Store struct {
	db *bbolt.DB
}

func New(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{pollsBucket, answersBucket, holidaysBucket, resultsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RecordPoll(_ context.Context, m attendance.PollMetadata) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(pollsBucket)
		if b.Get([]byte(m.PollID)) != nil {
			return fmt.Errorf("%w: %s", attendance.ErrDuplicatePoll, m.PollID)
		}
		return b.Put([]byte(m.PollID), data)
	})
}

func (s *Store) GetPoll(_ context.Context, pollID string) (*attendance.PollMetadata, error) {
	var meta *attendance.PollMetadata
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(pollsBucket).Get([]byte(pollID))
		if data == nil {
			return nil
		}
		var m attendance.PollMetadata
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("decode poll %s: %w", pollID, err)
		}
		meta = &m
		return nil
	})
	return meta, err
}

// PollsSentOn scans every poll; the bucket holds a few polls per working day.
func (s *Store) PollsSentOn(_ context.Context, day time.Time, loc *time.Location) ([]attendance.PollMetadata, error) {
	want := day.In(loc).Format("2006-01-02")
	var polls []attendance.PollMetadata
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(pollsBucket).ForEach(func(_, v []byte) error {
			var m attendance.PollMetadata
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if m.SentAt.In(loc).Format("2006-01-02") == want {
				polls = append(polls, m)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(polls, func(i, j int) bool { return polls[i].SentAt.Before(polls[j].SentAt) })
	return polls, nil
}

func (s *Store) AppendAnswer(_ context.Context, pollID string, rec attendance.AnswerRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(answersBucket).CreateBucketIfNotExists([]byte(pollID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
}

func (s *Store) Answers(_ context.Context, pollID string) ([]attendance.AnswerRecord, error) {
	var records []attendance.AnswerRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(answersBucket).Bucket([]byte(pollID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var rec attendance.AnswerRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}

// Big-endian keys keep cursor order equal to insertion order.
func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func (s *Store) SavePollResults(_ context.Context, r attendance.PollResults) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(resultsBucket).Put([]byte(r.PollID), data)
	})
}

func (s *Store) PollResults(_ context.Context, pollID string) (*attendance.PollResults, error) {
	var r *attendance.PollResults
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(resultsBucket).Get([]byte(pollID))
		if v == nil {
			return nil
		}
		r = &attendance.PollResults{}
		return json.Unmarshal(v, r)
	})
	if err != nil {
		return nil, fmt.Errorf("read results %s: %w", pollID, err)
	}
	return r, nil
}

// Holidays

func (s *Store) SaveHoliday(_ context.Context, h attendance.Holiday) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(holidaysBucket).Put([]byte(h.ID), data)
	})
}

func (s *Store) DeleteHoliday(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(holidaysBucket).Delete([]byte(id))
	})
}

func (s *Store) ListHolidays(_ context.Context) ([]attendance.Holiday, error) {
	var holidays []attendance.Holiday
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(holidaysBucket).ForEach(func(_, v []byte) error {
			var h attendance.Holiday
			if err := json.Unmarshal(v, &h); err != nil {
				return err
			}
			holidays = append(holidays, h)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(holidays, func(i, j int) bool { return holidays[i].Date.Before(holidays[j].Date) })
	return holidays, nil
}

func (s *Store) IsHoliday(date time.Time) bool {
	holidays, err := s.ListHolidays(context.Background())
	if err != nil {
		return false
	}
	for _, h := range holidays {
		if h.Matches(date.Year(), date.Month(), date.Day()) {
			return true
		}
	}
	return false
}
