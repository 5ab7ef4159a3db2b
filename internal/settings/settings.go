// Package settings holds the single configuration record of the organization.
package settings

import (
	"errors"
	"fmt"
	"time"

	"dacgov.org/internal/asset"
	"dacgov.org/internal/host"
	"dacgov.org/internal/kv"
	"dacgov.org/internal/params"
)

const (
	Table = "config"
	key   = "config"
)

var (
	ErrNotConfigured  = errors.New("configuration has not been initialized")
	ErrUnknownAccount = errors.New("fund account does not exist")
)

// Config is the organization-wide configuration.
type Config struct {
	MemberCount       uint64        `json:"member_count"`
	AdmissionOpen     bool          `json:"admission_open"`
	MembershipFee     asset.Asset   `json:"membership_fee"`
	MembershipTTL     time.Duration `json:"membership_ttl"`
	MinimumStake      asset.Asset   `json:"minimum_stake"`
	EscalationPercent uint32        `json:"escalation_percent"`
	ProposalTTL       time.Duration `json:"proposal_ttl"`
	CustodianVoteTTL  time.Duration `json:"custodian_vote_ttl"`
	ReferendumPassage uint32        `json:"referendum_passage"`
	NominationsTTL    time.Duration `json:"nominations_ttl"`
	ElectionsTTL      time.Duration `json:"elections_ttl"`
	CustodianCount    uint32        `json:"custodian_count"`
	CustodialMajority uint32        `json:"custodial_majority"`
	CustodianTTL      time.Duration `json:"custodian_ttl"`
	NextElectionDue   time.Time     `json:"next_election_due"`
	FundAccount       string        `json:"fund_account"`
}

// Store reads and writes the configuration record.
type Store struct {
	dir      host.Directory
	defaults params.Defaults
}

func New(dir host.Directory, defaults params.Defaults) *Store {
	return &Store{dir: dir, defaults: defaults}
}

// SetFundAccount names the account that collects membership dues. The first
// call creates the configuration from the genesis defaults.
func (s *Store) SetFundAccount(call *host.Call, tx kv.Tx, account string) error {
	if err := call.RequireAdmin(); err != nil {
		return err
	}
	if !s.dir.IsAccount(account) {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, account)
	}
	cfg, err := s.Get(tx)
	switch {
	case errors.Is(err, ErrNotConfigured):
		cfg = s.initial(call.Now)
		cfg.FundAccount = account
		return kv.PutJSON(tx, Table, key, cfg, call.Contract)
	case err != nil:
		return err
	}
	cfg.FundAccount = account
	return s.Save(tx, cfg)
}

func (s *Store) initial(now time.Time) Config {
	d := s.defaults
	return Config{
		AdmissionOpen:     d.AdmissionOpen,
		MembershipFee:     d.MembershipFee,
		MembershipTTL:     d.MembershipTTL,
		MinimumStake:      d.MinimumStake,
		EscalationPercent: d.EscalationPercent,
		ProposalTTL:       d.ProposalTTL,
		CustodianVoteTTL:  d.CustodianVoteTTL,
		ReferendumPassage: d.ReferendumPassage,
		NominationsTTL:    d.NominationsTTL,
		ElectionsTTL:      d.ElectionsTTL,
		CustodianCount:    d.CustodianCount,
		CustodialMajority: d.CustodialMajority,
		CustodianTTL:      d.CustodianTTL,
		NextElectionDue:   now.Add(d.CustodianTTL),
	}
}

// Get returns the configuration or ErrNotConfigured.
func (s *Store) Get(tx kv.Tx) (Config, error) {
	cfg, err := kv.GetJSON[Config](tx, Table, key)
	if errors.Is(err, kv.ErrNotFound) {
		return Config{}, ErrNotConfigured
	}
	return cfg, err
}

// Save overwrites an existing configuration.
func (s *Store) Save(tx kv.Tx, cfg Config) error {
	return kv.PutJSON(tx, Table, key, cfg, "")
}

// AdjustMemberCount moves member_count by delta, never below zero.
func (s *Store) AdjustMemberCount(tx kv.Tx, delta int) error {
	cfg, err := s.Get(tx)
	if err != nil {
		return err
	}
	switch {
	case delta < 0 && uint64(-delta) > cfg.MemberCount:
		cfg.MemberCount = 0
	case delta < 0:
		cfg.MemberCount -= uint64(-delta)
	default:
		cfg.MemberCount += uint64(delta)
	}
	return s.Save(tx, cfg)
}
