package monitor

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"
)

// HistoryBucket keeps previous settings, one record per save.
const HistoryBucket = "soil_history"

const maxRevisions = 20

// Revision is a saved copy of the settings.
type Revision struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Settings Settings  `json:"settings"`
}

func (m *Controller) recordRevision(s Settings) error {
	if err := m.c.Store().Create(HistoryBucket, func(id string) interface{} {
		return &Revision{ID: id, Time: time.Now(), Settings: s}
	}); err != nil {
		return err
	}
	revs, err := m.Revisions()
	if err != nil {
		return err
	}
	for len(revs) > maxRevisions {
		if err := m.c.Store().Delete(HistoryBucket, revs[0].ID); err != nil {
			return err
		}
		revs = revs[1:]
	}
	return nil
}

// Revisions returns the stored settings history, oldest first.
func (m *Controller) Revisions() ([]Revision, error) {
	revs := []Revision{}
	err := m.c.Store().List(HistoryBucket, func(_ string, v []byte) error {
		var r Revision
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		revs = append(revs, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	// bolt iterates keys bytewise, so "10" sorts before "9".
	sort.Slice(revs, func(i, j int) bool { return revisionSeq(revs[i].ID) < revisionSeq(revs[j].ID) })
	return revs, nil
}

func revisionSeq(id string) uint64 {
	n, _ := strconv.ParseUint(id, 10, 64)
	return n
}
