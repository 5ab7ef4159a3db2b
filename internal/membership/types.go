package membership

import (
	"errors"
	"fmt"
	"time"

	"dacgov.org/internal/asset"
)

const (
	Table = "members"

	// MaxHandle bounds the contact handle, in bytes.
	MaxHandle = 64
	// MaxRef bounds a profile content reference, in bytes.
	MaxRef = 256
)

type Status uint8

const (
	StatusNone Status = iota
	StatusMember
	StatusInQueue
	StatusPaidKit
	StatusKitShipped
	StatusKitInLab
	StatusDNAProcessed
	StatusDNAOnChain
	StatusLifetime
	StatusSuspended
	StatusBanned
	StatusQuit
)

var statusNames = [...]string{
	"none", "member", "in_queue", "paid_kit", "kit_shipped", "kit_in_lab",
	"dna_processed", "dna_on_chain", "lifetime", "suspended", "banned", "quit",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status_%d", uint8(s))
}

func (s Status) Valid() bool { return s >= StatusMember && s <= StatusQuit }

// Leaving reports whether a member in this status should be archived.
func (s Status) Leaving() bool { return s == StatusBanned || s == StatusQuit }

type CustodialStatus uint8

const (
	CustodialNone CustodialStatus = iota + 1
	CustodialNominated
	CustodialDeclined
	CustodialRunning
	CustodialDefeated
	CustodialSitting
	CustodialRemoved
	CustodialRetired
)

var custodialNames = [...]string{
	"", "none", "nominated", "declined", "running", "defeated", "sitting", "removed", "retired",
}

func (s CustodialStatus) String() string {
	if s >= CustodialNone && s <= CustodialRetired {
		return custodialNames[s]
	}
	return fmt.Sprintf("custodial_%d", uint8(s))
}

func (s CustodialStatus) Valid() bool { return s >= CustodialNone && s <= CustodialRetired }

// Profile holds content references to off-ledger member data.
type Profile struct {
	Bio     string `json:"bio,omitempty"`
	Photo   string `json:"photo,omitempty"`
	Video   string `json:"video,omitempty"`
	Traits  string `json:"traits,omitempty"`
	Genomic string `json:"genomic,omitempty"`
}

// Member is one membership record. Records are kept after archival.
type Member struct {
	ID                 uint64          `json:"id"`
	Account            string          `json:"account"`
	Status             Status          `json:"status"`
	CustodialStatus    CustodialStatus `json:"custodial_status"`
	Handle             string          `json:"handle"`
	Profile            Profile         `json:"profile"`
	ProposalCount      uint32          `json:"proposal_count"`
	VoteCount          uint32          `json:"vote_count"`
	ServiceCount       uint32          `json:"service_count"`
	ResearchOptInCount uint32          `json:"research_opt_in_count"`
	ServiceValue       asset.Asset     `json:"service_value"`
	ResearchValue      asset.Asset     `json:"research_value"`
	TotalValue         asset.Asset     `json:"total_value"`
	Balance            asset.Asset     `json:"balance"`
	JoinedAt           time.Time       `json:"joined_at"`
	RenewalDue         time.Time       `json:"renewal_due"`
	Archived           bool            `json:"archived"`
}

// Expired reports whether the renewal date has passed at now.
func (m Member) Expired(now time.Time) bool { return m.RenewalDue.Before(now) }

var (
	ErrNotMember        = errors.New("member account does not exist")
	ErrAlreadyMember    = errors.New("account already is a member")
	ErrAdmissionClosed  = errors.New("new membership is currently disabled")
	ErrInvalidHandle    = errors.New("handle must be 1 to 64 bytes")
	ErrInsufficientDues = errors.New("dues below membership fee")
	ErrExpired          = errors.New("membership expired, please renew")
	ErrArchived         = errors.New("member is archived")
	ErrNotLeaving       = errors.New("only banned or departed members can be archived")
	ErrUnknownUpdate    = errors.New("unknown update selector")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrStatusFinal      = errors.New("banned or departed status cannot change")
	ErrInvalidRef       = errors.New("profile reference must be at most 256 bytes")
	ErrNegativeBalance  = errors.New("balance of record cannot go below zero")
)
