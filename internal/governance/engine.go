// Package governance runs general proposals: submission, member voting,
// escalation to custodial matters and closing proposals nobody supported.
package governance

import (
	"errors"
	"fmt"
	"strconv"

	"dacgov.org/internal/announce"
	"dacgov.org/internal/host"
	"dacgov.org/internal/kv"
	"dacgov.org/internal/membership"
	"dacgov.org/internal/settings"
)

type Engine struct {
	members  *membership.Registry
	settings *settings.Store
	sink     announce.Sink
	policy   Policy
}

var _ membership.Withdrawer = (*Engine)(nil)

// New builds an engine. A nil policy selects Escalates.
func New(members *membership.Registry, s *settings.Store, policy Policy) *Engine {
	if policy == nil {
		policy = Escalates
	}
	return &Engine{members: members, settings: s, policy: policy}
}

// Propose opens a general proposal sponsored by an active member.
func (e *Engine) Propose(call *host.Call, tx kv.Tx, sponsor, title, bodyRef string) (Proposal, error) {
	if err := call.RequireAuth(sponsor); err != nil {
		return Proposal{}, err
	}
	cfg, err := e.settings.Get(tx)
	if err != nil {
		return Proposal{}, err
	}
	m, err := e.members.Active(call, tx, sponsor)
	if err != nil {
		return Proposal{}, err
	}
	if len(title) == 0 || len(title) > MaxText {
		return Proposal{}, ErrInvalidTitle
	}
	if len(bodyRef) == 0 || len(bodyRef) > MaxText {
		return Proposal{}, ErrInvalidBody
	}

	id, err := kv.NextID(tx, ProposalsTable, call.Contract)
	if err != nil {
		return Proposal{}, err
	}
	p := Proposal{
		ID:           id,
		SponsorID:    m.ID,
		Sponsor:      m.Account,
		Kind:         KindGeneral,
		Status:       StatusNew,
		Title:        title,
		BodyRef:      bodyRef,
		NextActionAt: call.Now.Add(cfg.ProposalTTL),
		CreatedAt:    call.Now,
	}
	if err := kv.PutJSON(tx, ProposalsTable, kv.IDKey(id), p, call.Contract); err != nil {
		return Proposal{}, err
	}
	if err := tx.Put(StatusIndex, indexKey(p.Status, id), []byte{}, call.Contract); err != nil {
		return Proposal{}, err
	}

	m.ProposalCount++
	if err := e.members.Save(tx, m); err != nil {
		return Proposal{}, err
	}
	if _, err := e.sink.Post(call, tx, announce.NewGeneralProposal, title, cfg.ProposalTTL, id); err != nil {
		return Proposal{}, err
	}
	return p, nil
}

// Vote records or changes voter's choice on a proposal. A first vote on a new
// proposal may escalate it.
func (e *Engine) Vote(call *host.Call, tx kv.Tx, voter string, id uint64, choice Choice) (VoteResult, error) {
	if err := call.RequireAuth(voter); err != nil {
		return VoteResult{}, err
	}
	cfg, err := e.settings.Get(tx)
	if err != nil {
		return VoteResult{}, err
	}
	m, err := e.members.Active(call, tx, voter)
	if err != nil {
		return VoteResult{}, err
	}
	p, err := e.Get(tx, id)
	if err != nil {
		return VoteResult{}, err
	}
	switch p.Status {
	case StatusNew:
		if !call.Now.Before(p.NextActionAt) {
			return VoteResult{}, fmt.Errorf("%w: proposal %d", ErrProposalExpired, id)
		}
	case StatusEscalated:
	default:
		return VoteResult{}, fmt.Errorf("%w: proposal %d is %s", ErrProposalClosed, id, p.Status)
	}
	if !choice.Valid() {
		return VoteResult{}, fmt.Errorf("%w: %d", ErrInvalidChoice, choice)
	}

	key := voteKey(voter, id)
	v, err := kv.GetJSON[Vote](tx, VotesTable, key)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		return e.firstVote(call, tx, cfg, m, p, choice)
	case err != nil:
		return VoteResult{}, err
	}

	if v.Choice != choice {
		p = moveChoice(p, v.Choice, choice)
		v.Choice = choice
		if err := e.saveProposal(tx, p); err != nil {
			return VoteResult{}, err
		}
	}
	v.UpdatedAt = call.Now
	if err := kv.PutJSON(tx, VotesTable, key, v, ""); err != nil {
		return VoteResult{}, err
	}
	return VoteResult{Vote: v, Proposal: p}, nil
}

func (e *Engine) firstVote(call *host.Call, tx kv.Tx, cfg settings.Config, m membership.Member, p Proposal, choice Choice) (VoteResult, error) {
	v := Vote{
		Voter:      m.Account,
		ProposalID: p.ID,
		Kind:       p.Kind,
		Choice:     choice,
		CastAt:     call.Now,
		UpdatedAt:  call.Now,
	}
	if err := kv.PutJSON(tx, VotesTable, voteKey(m.Account, p.ID), v, m.Account); err != nil {
		return VoteResult{}, err
	}
	p.Tally++
	if choice == Yes {
		p.Yes++
	} else {
		p.No++
	}
	m.VoteCount++
	if err := e.members.Save(tx, m); err != nil {
		return VoteResult{}, err
	}

	res := VoteResult{Vote: v, First: true}
	if p.Status == StatusNew && e.policy(uint64(p.Tally), cfg.MemberCount, cfg.EscalationPercent) {
		prev := p.Status
		p.Kind = KindCustodialMatter
		p.Status = StatusEscalated
		p.NextActionAt = call.Now.Add(cfg.CustodianVoteTTL)
		if err := e.reindex(call, tx, p.ID, prev, p.Status); err != nil {
			return VoteResult{}, err
		}
		if _, err := e.sink.Post(call, tx, announce.ProposalEscalated, strconv.FormatUint(p.ID, 10), cfg.CustodianVoteTTL, p.ID); err != nil {
			return VoteResult{}, err
		}
		res.Escalated = true
	}
	if err := e.saveProposal(tx, p); err != nil {
		return VoteResult{}, err
	}
	res.Proposal = p
	return res, nil
}

func moveChoice(p Proposal, from, to Choice) Proposal {
	if from == Yes && p.Yes > 0 {
		p.Yes--
	} else if from == No && p.No > 0 {
		p.No--
	}
	if to == Yes {
		p.Yes++
	} else {
		p.No++
	}
	return p
}

// Check closes new proposals whose voting period has ended and returns their ids.
func (e *Engine) Check(call *host.Call, tx kv.Tx) ([]uint64, error) {
	ids, err := e.idsWithStatus(tx, StatusNew)
	if err != nil {
		return nil, err
	}
	var closed []uint64
	for _, id := range ids {
		p, err := e.Get(tx, id)
		if err != nil {
			return nil, err
		}
		if call.Now.Before(p.NextActionAt) {
			continue
		}
		if err := e.setStatus(call, tx, p, StatusUnsupported); err != nil {
			return nil, err
		}
		if _, err := e.sink.Post(call, tx, announce.ProposalUnsupported, strconv.FormatUint(id, 10), 0, id); err != nil {
			return nil, err
		}
		closed = append(closed, id)
	}
	return closed, nil
}

// Withdraw drops a departing member's votes on proposals still collecting
// support and retires the new proposals they sponsored. Votes on escalated or
// closed proposals stay as history.
func (e *Engine) Withdraw(call *host.Call, tx kv.Tx, m membership.Member) error {
	votes, err := e.VotesBy(tx, m.Account)
	if err != nil {
		return err
	}
	for _, v := range votes {
		p, err := e.Get(tx, v.ProposalID)
		if err != nil {
			return err
		}
		if p.Status != StatusNew {
			continue
		}
		if err := tx.Delete(VotesTable, voteKey(v.Voter, v.ProposalID)); err != nil {
			return err
		}
		if p.Tally > 0 {
			p.Tally--
		}
		if v.Choice == Yes && p.Yes > 0 {
			p.Yes--
		} else if v.Choice == No && p.No > 0 {
			p.No--
		}
		if err := e.saveProposal(tx, p); err != nil {
			return err
		}
	}

	ids, err := e.idsWithStatus(tx, StatusNew)
	if err != nil {
		return err
	}
	for _, id := range ids {
		p, err := e.Get(tx, id)
		if err != nil {
			return err
		}
		if p.Sponsor != m.Account {
			continue
		}
		if err := e.setStatus(call, tx, p, StatusUnsupported); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) setStatus(call *host.Call, tx kv.Tx, p Proposal, next Status) error {
	if err := e.reindex(call, tx, p.ID, p.Status, next); err != nil {
		return err
	}
	p.Status = next
	return e.saveProposal(tx, p)
}

func (e *Engine) reindex(call *host.Call, tx kv.Tx, id uint64, from, to Status) error {
	if err := tx.Delete(StatusIndex, indexKey(from, id)); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return err
	}
	return tx.Put(StatusIndex, indexKey(to, id), []byte{}, call.Contract)
}

func (e *Engine) saveProposal(tx kv.Tx, p Proposal) error {
	return kv.PutJSON(tx, ProposalsTable, kv.IDKey(p.ID), p, "")
}

func (e *Engine) idsWithStatus(tx kv.Tx, s Status) ([]uint64, error) {
	prefix := indexPrefix(s)
	var ids []uint64
	err := tx.Scan(StatusIndex, prefix, func(key string, _ []byte) error {
		id, err := strconv.ParseUint(key[len(prefix):], 10, 64)
		if err != nil {
			return fmt.Errorf("status index key %q: %w", key, err)
		}
		ids = append(ids, id)
		return nil
	})
	return ids, err
}

// Get returns a proposal or ErrProposalNotFound.
func (e *Engine) Get(tx kv.Tx, id uint64) (Proposal, error) {
	p, err := kv.GetJSON[Proposal](tx, ProposalsTable, kv.IDKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return Proposal{}, fmt.Errorf("%w: %d", ErrProposalNotFound, id)
	}
	return p, err
}

// List returns proposals in id order. A zero status lists all of them.
func (e *Engine) List(tx kv.Tx, s Status) ([]Proposal, error) {
	var out []Proposal
	if s == 0 {
		err := tx.Scan(ProposalsTable, "", func(key string, raw []byte) error {
			p, err := kv.Decode[Proposal](raw)
			if err != nil {
				return fmt.Errorf("decode proposal %s: %w", key, err)
			}
			out = append(out, p)
			return nil
		})
		return out, err
	}
	ids, err := e.idsWithStatus(tx, s)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		p, err := e.Get(tx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// GetVote returns voter's vote on a proposal or ErrVoteNotFound.
func (e *Engine) GetVote(tx kv.Tx, voter string, id uint64) (Vote, error) {
	v, err := kv.GetJSON[Vote](tx, VotesTable, voteKey(voter, id))
	if errors.Is(err, kv.ErrNotFound) {
		return Vote{}, fmt.Errorf("%w: %s on %d", ErrVoteNotFound, voter, id)
	}
	return v, err
}

// VotesBy lists every vote cast by voter in proposal order.
func (e *Engine) VotesBy(tx kv.Tx, voter string) ([]Vote, error) {
	var out []Vote
	err := tx.Scan(VotesTable, voter+"/", func(key string, raw []byte) error {
		v, err := kv.Decode[Vote](raw)
		if err != nil {
			return fmt.Errorf("decode vote %s: %w", key, err)
		}
		out = append(out, v)
		return nil
	})
	return out, err
}
