package fsm

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	cases := []struct {
		name string
		from Status
		cmd  Command
		want Status
	}{
		{"accept pending", StatusPending, CmdAccept, StatusAccepted},
		{"refuse pending", StatusPending, CmdRefuse, StatusRefused},
		{"deliver accepted", StatusAccepted, CmdDeliver, StatusDelivered},
		{"confirm delivered", StatusDelivered, CmdConfirm, StatusCompleted},
		{"dispute delivered", StatusDelivered, CmdDispute, StatusDisputed},
		{"uphold dispute", StatusDisputed, CmdUphold, StatusRefused},
		{"reject dispute", StatusDisputed, CmdReject, StatusCompleted},
		{"archive completed", StatusCompleted, CmdArchive, StatusArchived},
		{"archive refused", StatusRefused, CmdArchive, StatusArchived},
		{"delivery expiry", StatusAccepted, CmdExpireDelivery, StatusRefused},
		{"validation expiry", StatusDelivered, CmdExpireValidation, StatusCompleted},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Next(tc.from, tc.cmd)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNextRejectsIllegalCommands(t *testing.T) {
	_, err := Next(StatusPending, CmdDeliver)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = Next(StatusArchived, CmdArchive)
	assert.ErrorIs(t, err, ErrStaleState)

	_, err = Next(StatusDisputed, CmdArchive)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = Next(StatusPending, Command("teleport"))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestNextRepeatedConfirmIsStale(t *testing.T) {
	_, err := Next(StatusCompleted, CmdConfirm)
	assert.ErrorIs(t, err, ErrStaleState)
}

func TestAllowed(t *testing.T) {
	assert.True(t, Allowed(CmdAccept, ActorSeller))
	assert.False(t, Allowed(CmdAccept, ActorBuyer))
	assert.True(t, Allowed(CmdConfirm, ActorBuyer))
	assert.False(t, Allowed(CmdConfirm, ActorSeller))
	assert.True(t, Allowed(CmdArchive, ActorBuyer))
	assert.True(t, Allowed(CmdArchive, ActorSeller))
	assert.False(t, Allowed(CmdUphold, ActorBuyer))
	assert.True(t, Allowed(CmdExpireDelivery, ActorSystem))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusAccepted))
	assert.True(t, CanTransition(StatusDisputed, StatusRefused))
	assert.False(t, CanTransition(StatusPending, StatusCompleted))
	assert.False(t, CanTransition(StatusArchived, StatusPending))
	assert.False(t, CanTransition(StatusCompleted, StatusDelivered))
}

func TestAvailableCommands(t *testing.T) {
	assert.Equal(t, []Command{CmdAccept, CmdRefuse}, AvailableCommands(StatusPending, ActorSeller))
	assert.Empty(t, AvailableCommands(StatusPending, ActorBuyer))
	assert.Equal(t, []Command{CmdConfirm, CmdDispute}, AvailableCommands(StatusDelivered, ActorBuyer))
	assert.Equal(t, []Command{CmdArchive}, AvailableCommands(StatusRefused, ActorSeller))
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusDisputed.Valid())
	assert.False(t, Status("in_progress").Valid())
}

func TestApply(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("guarded update", func(t *testing.T) {
		mock.ExpectExec(`UPDATE contracts SET status = \$1, updated_at = \$2, accepted_at = \$2 WHERE id = \$3 AND status = \$4`).
			WithArgs("accepted", at, "c-1", "pending").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := Apply(context.Background(), db, "c-1", StatusPending, StatusAccepted, at)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race", func(t *testing.T) {
		mock.ExpectExec(`UPDATE contracts SET status = \$1, updated_at = \$2, completed_at = \$2 WHERE id = \$3 AND status = \$4`).
			WithArgs("completed", at, "c-1", "delivered").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := Apply(context.Background(), db, "c-1", StatusDelivered, StatusCompleted, at)
		assert.ErrorIs(t, err, ErrStaleState)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("illegal pair never reaches the database", func(t *testing.T) {
		err := Apply(context.Background(), db, "c-1", StatusPending, StatusDelivered, at)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
