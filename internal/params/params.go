// Package params loads the genesis parameters of a deployment: the contract
// account, the accounts the directory knows about, and the values a fresh
// configuration starts from.
package params

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"dacgov.org/internal/asset"
	"dacgov.org/internal/host"
)

const DefaultContract = "ednadac"

// Defaults seeds the configuration on first set_fund_account.
type Defaults struct {
	AdmissionOpen     bool          `yaml:"admission_open"`
	MembershipFee     asset.Asset   `yaml:"membership_fee"`
	MembershipTTL     time.Duration `yaml:"membership_ttl"`
	MinimumStake      asset.Asset   `yaml:"minimum_stake"`
	EscalationPercent uint32        `yaml:"escalation_percent"`
	ProposalTTL       time.Duration `yaml:"proposal_ttl"`
	CustodianVoteTTL  time.Duration `yaml:"custodian_vote_ttl"`
	ReferendumPassage uint32        `yaml:"referendum_passage"`
	NominationsTTL    time.Duration `yaml:"nominations_ttl"`
	ElectionsTTL      time.Duration `yaml:"elections_ttl"`
	CustodianCount    uint32        `yaml:"custodian_count"`
	CustodialMajority uint32        `yaml:"custodial_majority"`
	CustodianTTL      time.Duration `yaml:"custodian_ttl"`
}

// Genesis models the parameters file.
type Genesis struct {
	Contract string   `yaml:"contract"`
	Accounts []string `yaml:"accounts,omitempty"`
	Defaults Defaults `yaml:"defaults"`
}

const day = 24 * time.Hour

// Default returns the built-in parameters.
func Default() Genesis {
	edna := asset.Symbol{Code: "EDNA", Precision: 4}
	return Genesis{
		Contract: DefaultContract,
		Defaults: Defaults{
			AdmissionOpen:     true,
			MembershipFee:     asset.Asset{Amount: 1, Symbol: edna},
			MembershipTTL:     365 * day,
			MinimumStake:      asset.Asset{Amount: 1, Symbol: edna},
			EscalationPercent: 40,
			ProposalTTL:       7 * day,
			CustodianVoteTTL:  2 * day,
			ReferendumPassage: 51,
			NominationsTTL:    3 * day,
			ElectionsTTL:      5 * day,
			CustodianCount:    12,
			CustodialMajority: 9,
			CustodianTTL:      30 * day,
		},
	}
}

// Load reads a YAML file over the built-in parameters. An empty path yields Default().
func Load(path string) (Genesis, error) {
	if path == "" {
		g := Default()
		return g, g.Validate()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, fmt.Errorf("read params: %w", err)
	}
	return Parse(raw)
}

// Parse decodes YAML over the built-in parameters. Unknown keys are rejected.
func Parse(raw []byte) (Genesis, error) {
	g := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&g); err != nil && !errors.Is(err, io.EOF) {
		return Genesis{}, fmt.Errorf("parse params: %w", err)
	}
	if err := g.Validate(); err != nil {
		return Genesis{}, err
	}
	return g, nil
}

// Marshal renders g as YAML.
func (g Genesis) Marshal() ([]byte, error) {
	return yaml.Marshal(g)
}

// Directory returns the account directory described by g: the listed
// accounts plus the contract, or the name rule when none are listed.
func (g Genesis) Directory() host.Directory {
	if len(g.Accounts) == 0 {
		return host.NameRule{}
	}
	return host.NewAccounts(append([]string{g.Contract}, g.Accounts...)...)
}

func (g Genesis) Validate() error {
	if !host.ValidName(g.Contract) {
		return fmt.Errorf("params: invalid contract account %q", g.Contract)
	}
	for _, a := range g.Accounts {
		if !host.ValidName(a) {
			return fmt.Errorf("params: invalid account %q", a)
		}
	}
	d := g.Defaults
	if !d.MembershipFee.IsValid() || d.MembershipFee.Amount <= 0 {
		return fmt.Errorf("params: membership_fee must be a positive asset, got %q", d.MembershipFee)
	}
	if d.MinimumStake.Amount != 0 && !d.MinimumStake.SameSymbol(d.MembershipFee) {
		return fmt.Errorf("params: minimum_stake symbol must match membership_fee")
	}
	if d.EscalationPercent == 0 || d.EscalationPercent > 100 {
		return fmt.Errorf("params: escalation_percent must be within 1..100, got %d", d.EscalationPercent)
	}
	if d.ReferendumPassage == 0 || d.ReferendumPassage > 100 {
		return fmt.Errorf("params: referendum_passage must be within 1..100, got %d", d.ReferendumPassage)
	}
	if d.CustodialMajority > d.CustodianCount {
		return fmt.Errorf("params: custodial_majority %d exceeds custodian_count %d", d.CustodialMajority, d.CustodianCount)
	}
	for name, v := range map[string]time.Duration{
		"membership_ttl":     d.MembershipTTL,
		"proposal_ttl":       d.ProposalTTL,
		"custodian_vote_ttl": d.CustodianVoteTTL,
		"nominations_ttl":    d.NominationsTTL,
		"elections_ttl":      d.ElectionsTTL,
		"custodian_ttl":      d.CustodianTTL,
	} {
		if v <= 0 {
			return fmt.Errorf("params: %s must be positive", name)
		}
	}
	return nil
}
