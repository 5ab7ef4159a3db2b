package membership

import (
	"fmt"
	"unicode/utf8"

	"dacgov.org/internal/asset"
	"dacgov.org/internal/host"
)

// Command is one member update. Exactly one command runs per update call.
type Command interface {
	Name() string
	apply(call *host.Call, m *Member) error
}

// Wire selectors for update commands.
const (
	SelectStatus          uint8 = 1
	SelectCustodialStatus uint8 = 2
	SelectHandle          uint8 = 3
	SelectProposalCount   uint8 = 4
	SelectVoteCount       uint8 = 5
	SelectService         uint8 = 6
	SelectResearch        uint8 = 7
	SelectBalance         uint8 = 8
	SelectBio             uint8 = 9
	SelectPhoto           uint8 = 10
	SelectVideo           uint8 = 11
	SelectTraits          uint8 = 12
	SelectGenomic         uint8 = 13
)

// DecodeUpdate maps a selector and its loosely typed parameters to a Command.
func DecodeUpdate(selector, code uint8, text string, value asset.Asset) (Command, error) {
	switch selector {
	case SelectStatus:
		return SetStatus{Status: Status(code)}, nil
	case SelectCustodialStatus:
		return SetCustodialStatus{Status: CustodialStatus(code)}, nil
	case SelectHandle:
		return SetHandle{Handle: text}, nil
	case SelectProposalCount:
		return CountProposal{}, nil
	case SelectVoteCount:
		return CountVote{}, nil
	case SelectService:
		return CompleteService{Value: value}, nil
	case SelectResearch:
		return CompleteResearch{Value: value}, nil
	case SelectBalance:
		switch text {
		case "add":
			return AdjustBalance{Value: value}, nil
		case "rem", "remove":
			return AdjustBalance{Remove: true, Value: value}, nil
		}
		return nil, fmt.Errorf("%w: balance direction %q", ErrUnknownUpdate, text)
	case SelectBio:
		return SetProfile{Field: FieldBio, Ref: text}, nil
	case SelectPhoto:
		return SetProfile{Field: FieldPhoto, Ref: text}, nil
	case SelectVideo:
		return SetProfile{Field: FieldVideo, Ref: text}, nil
	case SelectTraits:
		return SetProfile{Field: FieldTraits, Ref: text}, nil
	case SelectGenomic:
		return SetProfile{Field: FieldGenomic, Ref: text}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownUpdate, selector)
}

type SetStatus struct{ Status Status }

func (SetStatus) Name() string { return "set_status" }

func (c SetStatus) apply(_ *host.Call, m *Member) error {
	if !c.Status.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidStatus, c.Status)
	}
	// banned and quit are final
	if m.Status.Leaving() && c.Status != m.Status {
		return fmt.Errorf("%w: %s", ErrStatusFinal, m.Status)
	}
	m.Status = c.Status
	return nil
}

type SetCustodialStatus struct{ Status CustodialStatus }

func (SetCustodialStatus) Name() string { return "set_custodial_status" }

func (c SetCustodialStatus) apply(_ *host.Call, m *Member) error {
	if !c.Status.Valid() {
		return fmt.Errorf("%w: custodial %d", ErrInvalidStatus, c.Status)
	}
	m.CustodialStatus = c.Status
	return nil
}

type SetHandle struct{ Handle string }

func (SetHandle) Name() string { return "set_handle" }

func (c SetHandle) apply(_ *host.Call, m *Member) error {
	if err := ValidHandle(c.Handle); err != nil {
		return err
	}
	m.Handle = c.Handle
	return nil
}

type CountProposal struct{}

func (CountProposal) Name() string { return "count_proposal" }

func (CountProposal) apply(_ *host.Call, m *Member) error {
	m.ProposalCount++
	return nil
}

type CountVote struct{}

func (CountVote) Name() string { return "count_vote" }

func (CountVote) apply(_ *host.Call, m *Member) error {
	m.VoteCount++
	return nil
}

type CompleteService struct{ Value asset.Asset }

func (CompleteService) Name() string { return "complete_service" }

func (c CompleteService) apply(_ *host.Call, m *Member) error {
	service, total, err := earn(m.ServiceValue, m.TotalValue, c.Value)
	if err != nil {
		return err
	}
	m.ServiceCount++
	m.ServiceValue, m.TotalValue = service, total
	return nil
}

type CompleteResearch struct{ Value asset.Asset }

func (CompleteResearch) Name() string { return "complete_research" }

func (c CompleteResearch) apply(_ *host.Call, m *Member) error {
	research, total, err := earn(m.ResearchValue, m.TotalValue, c.Value)
	if err != nil {
		return err
	}
	m.ResearchOptInCount++
	m.ResearchValue, m.TotalValue = research, total
	return nil
}

func earn(bucket, total, v asset.Asset) (asset.Asset, asset.Asset, error) {
	if err := positive(v); err != nil {
		return bucket, total, err
	}
	b, err := bucket.Add(v)
	if err != nil {
		return bucket, total, err
	}
	t, err := total.Add(v)
	if err != nil {
		return bucket, total, err
	}
	return b, t, nil
}

// AdjustBalance moves the member's balance of record. It is bookkeeping only;
// no ledger funds move.
type AdjustBalance struct {
	Remove bool
	Value  asset.Asset
}

func (AdjustBalance) Name() string { return "adjust_balance" }

func (c AdjustBalance) apply(_ *host.Call, m *Member) error {
	if err := positive(c.Value); err != nil {
		return err
	}
	if !c.Remove {
		next, err := m.Balance.Add(c.Value)
		if err != nil {
			return err
		}
		m.Balance = next
		return nil
	}
	next, err := m.Balance.Sub(c.Value)
	if err != nil {
		return err
	}
	if next.Amount < 0 {
		return fmt.Errorf("%w: has %s", ErrNegativeBalance, m.Balance)
	}
	m.Balance = next
	return nil
}

type ProfileField uint8

const (
	FieldBio ProfileField = iota + 1
	FieldPhoto
	FieldVideo
	FieldTraits
	FieldGenomic
)

type SetProfile struct {
	Field ProfileField
	Ref   string
}

func (SetProfile) Name() string { return "set_profile" }

func (c SetProfile) apply(call *host.Call, m *Member) error {
	if len(c.Ref) > MaxRef {
		return ErrInvalidRef
	}
	switch c.Field {
	case FieldBio:
		m.Profile.Bio = c.Ref
	case FieldPhoto:
		m.Profile.Photo = c.Ref
	case FieldVideo:
		m.Profile.Video = c.Ref
	case FieldTraits:
		m.Profile.Traits = c.Ref
	case FieldGenomic:
		if err := call.RequireAdmin(); err != nil {
			return err
		}
		m.Profile.Genomic = c.Ref
	default:
		return fmt.Errorf("%w: profile field %d", ErrUnknownUpdate, c.Field)
	}
	return nil
}

func positive(v asset.Asset) error {
	if !v.IsValid() {
		return fmt.Errorf("%w: %s", asset.ErrInvalidAmount, v)
	}
	if !v.IsPositive() {
		return fmt.Errorf("%w: value must be positive", asset.ErrInvalidAmount)
	}
	return nil
}

// ValidHandle checks the contact handle.
func ValidHandle(h string) error {
	if h == "" || len(h) > MaxHandle || !utf8.ValidString(h) {
		return ErrInvalidHandle
	}
	return nil
}
