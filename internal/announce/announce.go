// Package announce is the append-only feed of organization announcements.
package announce

import (
	"fmt"
	"time"

	"dacgov.org/internal/host"
	"dacgov.org/internal/kv"
)

const (
	Table = "announcements"

	// EventKind tags announcements among the events a call emits.
	EventKind = "announcement"
)

type Kind uint8

const (
	NewMember Kind = iota + 1
	Nomination
	CustodianRunning
	NewGeneralProposal
	ProposalEscalated
	ProposalUnsupported
)

func (k Kind) String() string {
	switch k {
	case NewMember:
		return "new_member"
	case Nomination:
		return "nomination"
	case CustodianRunning:
		return "custodian_running"
	case NewGeneralProposal:
		return "new_general_proposal"
	case ProposalEscalated:
		return "proposal_escalated"
	case ProposalUnsupported:
		return "proposal_unsupported"
	}
	return fmt.Sprintf("kind_%d", uint8(k))
}

type Announcement struct {
	ID         uint64        `json:"id"`
	Kind       Kind          `json:"kind"`
	Text       string        `json:"text"`
	TTL        time.Duration `json:"ttl"`
	ProposalID uint64        `json:"proposal_id,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Sink appends announcements. It has no state of its own.
type Sink struct{}

// Post stores a new announcement and emits it on the call.
func (Sink) Post(call *host.Call, tx kv.Tx, kind Kind, text string, ttl time.Duration, proposalID uint64) (Announcement, error) {
	id, err := kv.NextID(tx, Table, call.Contract)
	if err != nil {
		return Announcement{}, err
	}
	a := Announcement{
		ID:         id,
		Kind:       kind,
		Text:       text,
		TTL:        ttl,
		ProposalID: proposalID,
		CreatedAt:  call.Now,
	}
	if err := kv.PutJSON(tx, Table, kv.IDKey(id), a, call.Contract); err != nil {
		return Announcement{}, err
	}
	call.Emit(EventKind, a)
	return a, nil
}

const maxPage = 500

// List returns up to limit announcements with id greater than after, oldest first.
func (Sink) List(tx kv.Tx, after uint64, limit int) ([]Announcement, error) {
	if limit <= 0 || limit > maxPage {
		limit = 100
	}
	var out []Announcement
	err := tx.Scan(Table, "", func(key string, raw []byte) error {
		a, err := kv.Decode[Announcement](raw)
		if err != nil {
			return fmt.Errorf("decode announcement %s: %w", key, err)
		}
		if a.ID <= after {
			return nil
		}
		out = append(out, a)
		if len(out) >= limit {
			return kv.ErrStop
		}
		return nil
	})
	return out, err
}
