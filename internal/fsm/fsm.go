package fsm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Status is the unified engagement contract status shared by the buyer (order)
// and seller (proposal) views.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDelivered Status = "delivered"
	StatusCompleted Status = "completed"
	StatusDisputed  Status = "disputed"
	StatusRefused   Status = "refused"
	StatusArchived  Status = "archived"
)

// Command is an action issued against a contract.
type Command string

const (
	CmdAccept           Command = "accept"
	CmdRefuse           Command = "refuse"
	CmdDeliver          Command = "deliver"
	CmdConfirm          Command = "confirm"
	CmdDispute          Command = "dispute"
	CmdUphold           Command = "uphold_dispute"
	CmdReject           Command = "reject_dispute"
	CmdExpireDelivery   Command = "expire_delivery"
	CmdExpireValidation Command = "expire_validation"
	CmdArchive          Command = "archive"
)

// Actor is the party allowed to issue a command.
type Actor string

const (
	ActorBuyer  Actor = "buyer"
	ActorSeller Actor = "seller"
	ActorAdmin  Actor = "admin"
	ActorSystem Actor = "system"
)

var (
	// ErrInvalidTransition is returned when a command is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStaleState is returned when the contract moved under us or the command was already applied.
	ErrStaleState = errors.New("contract state changed concurrently")
	// ErrActorNotAllowed is returned when the actor may not issue the command.
	ErrActorNotAllowed = errors.New("actor not allowed to issue command")
)

var transitions = map[Command]map[Status]Status{
	CmdAccept:           {StatusPending: StatusAccepted},
	CmdRefuse:           {StatusPending: StatusRefused},
	CmdDeliver:          {StatusAccepted: StatusDelivered},
	CmdConfirm:          {StatusDelivered: StatusCompleted},
	CmdDispute:          {StatusDelivered: StatusDisputed},
	CmdUphold:           {StatusDisputed: StatusRefused},
	CmdReject:           {StatusDisputed: StatusCompleted},
	CmdExpireDelivery:   {StatusAccepted: StatusRefused},
	CmdExpireValidation: {StatusDelivered: StatusCompleted},
	CmdArchive:          {StatusCompleted: StatusArchived, StatusRefused: StatusArchived},
}

var actors = map[Command][]Actor{
	CmdAccept:           {ActorSeller},
	CmdRefuse:           {ActorSeller},
	CmdDeliver:          {ActorSeller},
	CmdConfirm:          {ActorBuyer},
	CmdDispute:          {ActorBuyer},
	CmdUphold:           {ActorAdmin},
	CmdReject:           {ActorAdmin},
	CmdExpireDelivery:   {ActorSystem},
	CmdExpireValidation: {ActorSystem},
	CmdArchive:          {ActorBuyer, ActorSeller},
}

// timestamp column written when a contract enters the status
var stampColumns = map[Status]string{
	StatusAccepted:  "accepted_at",
	StatusDelivered: "delivered_at",
	StatusCompleted: "completed_at",
	StatusDisputed:  "disputed_at",
	StatusRefused:   "refused_at",
	StatusArchived:  "archived_at",
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusDelivered, StatusCompleted, StatusDisputed, StatusRefused, StatusArchived:
		return true
	}
	return false
}

// Next returns the status reached by applying cmd from the given status.
// A command whose target equals the current status reports ErrStaleState so
// that a repeated confirm never settles twice.
func Next(from Status, cmd Command) (Status, error) {
	allowed, ok := transitions[cmd]
	if !ok {
		return "", fmt.Errorf("%w: unknown command %q", ErrInvalidTransition, cmd)
	}
	if to, ok := allowed[from]; ok {
		return to, nil
	}
	for _, to := range allowed {
		if to == from {
			return "", ErrStaleState
		}
	}
	return "", fmt.Errorf("%w: cannot %s a %s contract", ErrInvalidTransition, cmd, from)
}

// Allowed reports whether actor may issue cmd.
func Allowed(cmd Command, actor Actor) bool {
	for _, a := range actors[cmd] {
		if a == actor {
			return true
		}
	}
	return false
}

// CanTransition returns whether some command moves a contract from one status to another.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions {
		if target, ok := allowed[from]; ok && target == to {
			return true
		}
	}
	return false
}

// AvailableCommands lists the commands actor can issue on a contract in the given status.
func AvailableCommands(status Status, actor Actor) []Command {
	var cmds []Command
	for cmd, allowed := range transitions {
		if _, ok := allowed[status]; ok && Allowed(cmd, actor) {
			cmds = append(cmds, cmd)
		}
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i] < cmds[j] })
	return cmds
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Apply moves a contract row from one status to another, guarded on the
// current status. Zero affected rows means another writer got there first.
func Apply(ctx context.Context, tx execer, contractID string, from, to Status, at time.Time) error {
	if !CanTransition(from, to) {
		return ErrInvalidTransition
	}
	query := "UPDATE contracts SET status = $1, updated_at = $2"
	if col, ok := stampColumns[to]; ok {
		query += ", " + col + " = $2"
	}
	query += " WHERE id = $3 AND status = $4"

	res, err := tx.ExecContext(ctx, query, to, at, contractID, from)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrStaleState
	}
	return nil
}
