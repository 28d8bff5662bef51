package models

import (
	"time"
)

// HackathonPhase is one state in the hackathon lifecycle.
type HackathonPhase string

const (
	PhaseDraft              HackathonPhase = "draft"
	PhaseRegistrationOpen   HackathonPhase = "registration_open"
	PhaseRegistrationClosed HackathonPhase = "registration_closed"
	PhaseSubmissionOpen     HackathonPhase = "submission_open"
	PhaseSubmissionClosed   HackathonPhase = "submission_closed"
	PhaseVotingOpen         HackathonPhase = "voting_open"
	PhaseVotingClosed       HackathonPhase = "voting_closed"
	PhaseCompleted          HackathonPhase = "completed"
)

// PhaseOrder lists every phase in strict forward order. The lifecycle only
// ever moves left to right through this list; "completed" is terminal.
var PhaseOrder = []HackathonPhase{
	PhaseDraft,
	PhaseRegistrationOpen,
	PhaseRegistrationClosed,
	PhaseSubmissionOpen,
	PhaseSubmissionClosed,
	PhaseVotingOpen,
	PhaseVotingClosed,
	PhaseCompleted,
}

// IsTerminal reports whether no transition (automatic or manual) may leave p.
func (p HackathonPhase) IsTerminal() bool {
	return p == PhaseCompleted
}

// Hackathon is one competitive event moving through the lifecycle.
// This core mutates the Phase field only; everything else belongs to the
// CRUD layer.
type Hackathon struct {
	ID          string         `json:"id" gorm:"primaryKey"`
	Name        string         `json:"name" gorm:"not null"`
	OrganizerID string         `json:"organizer_id" gorm:"index"`
	Phase       HackathonPhase `json:"phase" gorm:"type:varchar(32);default:'draft';index"`

	// Per-phase deadlines driving automatic transitions. A nil deadline means
	// the matching phase only advances manually.
	RegistrationDeadline *time.Time `json:"registration_deadline,omitempty"`
	SubmissionDeadline   *time.Time `json:"submission_deadline,omitempty"`
	VotingDeadline       *time.Time `json:"voting_deadline,omitempty"`

	PrizePool  float64 `json:"prize_pool" gorm:"default:0"`
	PrizeToken string  `json:"prize_token" gorm:"type:varchar(64)"` // e.g. "USDC"

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// RankedParticipant mirrors the final leaderboard for a hackathon. Written by
// the scoring layer; read-only here.
type RankedParticipant struct {
	ID             string `json:"id" gorm:"primaryKey"`
	HackathonID    string `json:"hackathon_id" gorm:"not null;index"`
	ExternalUserID string `json:"external_user_id" gorm:"not null;index"`
	UserName       string `json:"user_name"`
	WalletAddress  string `json:"wallet_address" gorm:"type:varchar(128);not null"`
	Rank           int    `json:"rank" gorm:"not null"`
	Score          int64  `json:"score"`
}
