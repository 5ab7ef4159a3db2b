package governance

import (
	"errors"
	"fmt"
	"time"
)

const (
	ProposalsTable = "proposals"
	StatusIndex    = "proposals.status"
	VotesTable     = "votes"

	// MaxText bounds titles and body references, in bytes.
	MaxText = 256
)

type Kind uint8

const (
	KindGeneral Kind = iota + 1
	KindCustodialMatter
)

func (k Kind) String() string {
	switch k {
	case KindGeneral:
		return "general"
	case KindCustodialMatter:
		return "custodial_matter"
	}
	return fmt.Sprintf("kind_%d", uint8(k))
}

// Status is the lifecycle position of a proposal. Only New, Unsupported and
// Escalated are reached by this package; the custodial, referendum and
// impeachment stages are reserved.
type Status uint8

const (
	StatusNew Status = iota + 1
	StatusUnsupported
	StatusEscalated
	StatusCustodialNew
	StatusCustodialDefeated
	StatusCustodialPassed
	StatusCustodialStalled1
	StatusCustodialStalled2
	StatusCustodialStalled3
	StatusReferendumCreated
	StatusReferendumDefeated
	StatusReferendumPassed
	StatusImpeachNew
	StatusImpeachEnded
)

var statusNames = map[Status]string{
	StatusNew:                "new",
	StatusUnsupported:        "unsupported",
	StatusEscalated:          "escalated",
	StatusCustodialNew:       "custodial_new",
	StatusCustodialDefeated:  "custodial_defeated",
	StatusCustodialPassed:    "custodial_passed",
	StatusCustodialStalled1:  "custodial_stalled_1",
	StatusCustodialStalled2:  "custodial_stalled_2",
	StatusCustodialStalled3:  "custodial_stalled_3",
	StatusReferendumCreated:  "referendum_created",
	StatusReferendumDefeated: "referendum_defeated",
	StatusReferendumPassed:   "referendum_passed",
	StatusImpeachNew:         "impeach_new",
	StatusImpeachEnded:       "impeach_ended",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status_%d", uint8(s))
}

// ParseStatus accepts the names produced by String.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, name)
}

type Proposal struct {
	ID           uint64    `json:"id"`
	SponsorID    uint64    `json:"sponsor_id"`
	Sponsor      string    `json:"sponsor"`
	Kind         Kind      `json:"kind"`
	Status       Status    `json:"status"`
	Title        string    `json:"title"`
	BodyRef      string    `json:"body_ref"`
	Tally        uint32    `json:"tally"`
	Yes          uint32    `json:"yes"`
	No           uint32    `json:"no"`
	NextActionAt time.Time `json:"next_action_at"`
	CreatedAt    time.Time `json:"created_at"`
}

type Choice uint8

const (
	No  Choice = 0
	Yes Choice = 1
)

func (c Choice) Valid() bool { return c == No || c == Yes }

type Vote struct {
	Voter      string    `json:"voter"`
	ProposalID uint64    `json:"proposal_id"`
	Kind       Kind      `json:"kind"`
	Choice     Choice    `json:"choice"`
	CastAt     time.Time `json:"cast_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// VoteResult describes what a vote changed.
type VoteResult struct {
	Vote      Vote     `json:"vote"`
	Proposal  Proposal `json:"proposal"`
	First     bool     `json:"first"`
	Escalated bool     `json:"escalated"`
}

var (
	ErrProposalNotFound = errors.New("proposal does not exist")
	ErrProposalClosed   = errors.New("proposal is not open for voting")
	ErrProposalExpired  = errors.New("proposal voting period has ended")
	ErrInvalidTitle     = errors.New("title must be 1 to 256 bytes")
	ErrInvalidBody      = errors.New("body reference must be 1 to 256 bytes")
	ErrInvalidChoice    = errors.New("vote must be 0 (no) or 1 (yes)")
	ErrVoteNotFound     = errors.New("vote does not exist")
	ErrUnknownStatus    = errors.New("unknown proposal status")
)

func indexKey(s Status, id uint64) string {
	return fmt.Sprintf("%02d/%020d", uint8(s), id)
}

func indexPrefix(s Status) string {
	return fmt.Sprintf("%02d/", uint8(s))
}

func voteKey(voter string, id uint64) string {
	return voter + "/" + fmt.Sprintf("%020d", id)
}
