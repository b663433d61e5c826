package consensus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greyw0rks/genlayer-dispute-resolution/internal/record"
)

type fakeValidator struct {
	id      uint16
	delay   time.Duration
	winner  record.Party
	invalid bool
	calls   *atomic.Int32
}

func (f fakeValidator) ID() uint16 { return f.id }

func (f fakeValidator) Propose(ctx context.Context, req Request) Proposal {
	if f.calls != nil {
		f.calls.Add(1)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Invalid(f.id, "", ctx.Err().Error())
		}
	}
	if f.invalid {
		return Invalid(f.id, "garbage", "schema")
	}
	return Accepted(f.id, "raw", record.Decision{Winner: f.winner, Reasoning: req.Prompt})
}

func newRequest() Request {
	return Request{Attempt: uuid.New(), CaseID: 3, Prompt: "judge this"}
}

func TestEngineResolve(t *testing.T) {
	var calls atomic.Int32
	validators := []Validator{
		fakeValidator{id: 4, winner: record.PartyPlaintiff, calls: &calls},
		fakeValidator{id: 0, winner: record.PartyPlaintiff, calls: &calls},
		fakeValidator{id: 1, winner: record.PartyPlaintiff, calls: &calls},
		fakeValidator{id: 2, invalid: true, calls: &calls},
		fakeValidator{id: 3, winner: record.PartyPlaintiff, calls: &calls},
	}
	engine, err := NewEngine(validators, Config{Quorum: DefaultQuorum, Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, 5, engine.Size())

	res, proposals, err := engine.Resolve(context.Background(), newRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, record.PartyPlaintiff, res.Winner)
	assert.Equal(t, "judge this", res.Reasoning)
	assert.Equal(t, []uint16{0, 1, 3, 4}, res.Contributors)

	require.Len(t, proposals, 5)
	for i, p := range proposals {
		assert.Equal(t, uint16(i), p.ValidatorID)
	}
	assert.False(t, proposals[2].Valid)
}

func TestEngineSlowValidatorIsInvalidVote(t *testing.T) {
	validators := []Validator{
		fakeValidator{id: 0, winner: record.PartyDefendant},
		fakeValidator{id: 1, winner: record.PartyDefendant},
		fakeValidator{id: 2, winner: record.PartyPlaintiff, delay: time.Minute},
	}
	engine, err := NewEngine(validators, Config{Quorum: DefaultQuorum, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	res, proposals, err := engine.Resolve(context.Background(), newRequest())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, record.PartyDefendant, res.Winner)
	assert.False(t, proposals[2].Valid)
}

type stuckValidator struct{ id uint16 }

func (s stuckValidator) ID() uint16 { return s.id }

func (s stuckValidator) Propose(context.Context, Request) Proposal {
	time.Sleep(time.Second)
	return Accepted(s.id, "", record.Decision{Winner: record.PartyPlaintiff, Reasoning: "late"})
}

func TestEngineTimeoutIgnoresUncooperativeValidator(t *testing.T) {
	engine, err := NewEngine([]Validator{
		stuckValidator{id: 0},
		fakeValidator{id: 1, winner: record.PartyDefendant},
	}, Config{Quorum: DefaultQuorum, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	proposals, err := engine.Gather(context.Background(), newRequest())
	require.NoError(t, err)
	assert.False(t, proposals[0].Valid)
	assert.Equal(t, reasonTimeout, proposals[0].Reason)
	assert.True(t, proposals[1].Valid)
}

func TestEngineSplitVote(t *testing.T) {
	engine, err := NewEngine([]Validator{
		fakeValidator{id: 0, winner: record.PartyPlaintiff},
		fakeValidator{id: 1, winner: record.PartyPlaintiff},
		fakeValidator{id: 2, winner: record.PartyDefendant},
		fakeValidator{id: 3, winner: record.PartyDefendant},
		fakeValidator{id: 4, invalid: true},
	}, Config{Quorum: DefaultQuorum, Timeout: time.Second})
	require.NoError(t, err)

	_, proposals, err := engine.Resolve(context.Background(), newRequest())
	assert.ErrorIs(t, err, ErrNoQuorum)
	assert.Len(t, proposals, 5)
}

func TestEngineCallerCancellation(t *testing.T) {
	engine, err := NewEngine([]Validator{
		fakeValidator{id: 0, winner: record.PartyPlaintiff, delay: time.Minute},
		fakeValidator{id: 1, winner: record.PartyPlaintiff, delay: time.Minute},
	}, Config{Quorum: DefaultQuorum, Timeout: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, proposals, err := engine.Resolve(ctx, newRequest())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, proposals)
}

func TestNewEngineValidation(t *testing.T) {
	ok := []Validator{fakeValidator{id: 0}}

	_, err := NewEngine(nil, Config{Quorum: 0.5, Timeout: time.Second})
	assert.ErrorIs(t, err, ErrNoValidators)

	_, err = NewEngine(ok, Config{Quorum: 1, Timeout: time.Second})
	assert.ErrorIs(t, err, ErrInvalidQuorum)

	_, err = NewEngine(ok, Config{Quorum: 0, Timeout: time.Second})
	assert.ErrorIs(t, err, ErrInvalidQuorum)

	_, err = NewEngine(ok, Config{Quorum: 0.5})
	assert.ErrorIs(t, err, ErrInvalidTimeout)

	_, err = NewEngine([]Validator{fakeValidator{id: 1}, fakeValidator{id: 1}}, Config{Quorum: 0.5, Timeout: time.Second})
	assert.ErrorIs(t, err, ErrDuplicateID)
}
