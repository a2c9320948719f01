package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bxhive/internal/variation/models"
	id "bxhive/pkg/domain"
	dErrors "bxhive/pkg/domain-errors"
)

func addrs(n int) []id.Address {
	out := make([]id.Address, n)
	for i := range out {
		out[i] = id.NewAddress()
	}
	return out
}

func TestEnrollAndLookup(t *testing.T) {
	r := New(0)
	a := id.NewAddress()
	require.NoError(t, r.Enroll(a))

	s, err := r.Subject(a)
	require.NoError(t, err)
	assert.True(t, s.Enrolled)
	assert.False(t, s.Assigned)

	_, err = r.Subject(id.NewAddress())
	require.Error(t, err)
	assert.True(t, dErrors.HasCondition(err, models.ConditionNotEnrolled))
}

func TestEnrollDuplicate(t *testing.T) {
	r := New(0)
	a := id.NewAddress()
	require.NoError(t, r.Enroll(a))

	err := r.Enroll(a)
	require.Error(t, err)
	assert.True(t, dErrors.HasCondition(err, models.ConditionAlreadyEnrolled))
}

func TestEnrollAfterClose(t *testing.T) {
	r := New(0)
	require.NoError(t, r.Close())

	err := r.Enroll(id.NewAddress())
	require.Error(t, err)
	assert.True(t, dErrors.HasCondition(err, models.ConditionRosterClosed))
}

func TestCloseTwice(t *testing.T) {
	r := New(0)
	require.NoError(t, r.Close())

	err := r.Close()
	require.Error(t, err)
	assert.True(t, dErrors.HasCondition(err, models.ConditionNotActive))
}

func TestEnrollAllAtomicity(t *testing.T) {
	r := New(0)
	enrolled := id.NewAddress()
	require.NoError(t, r.Enroll(enrolled))

	batch := append(addrs(2), enrolled)
	err := r.EnrollAll(batch)
	require.Error(t, err)
	assert.True(t, dErrors.HasCondition(err, models.ConditionAlreadyEnrolled))
	// Nothing from the failed batch landed.
	assert.Equal(t, 1, r.Size())

	require.NoError(t, r.EnrollAll(addrs(3)))
	assert.Equal(t, 4, r.Size())
}

func TestEnrollAllRejectsInBatchDuplicate(t *testing.T) {
	r := New(0)
	a := id.NewAddress()
	err := r.EnrollAll([]id.Address{a, a})
	require.Error(t, err)
	assert.Equal(t, 0, r.Size())
}

func TestSubjectLimit(t *testing.T) {
	r := New(2)
	require.NoError(t, r.EnrollAll(addrs(2)))

	err := r.Enroll(id.NewAddress())
	require.Error(t, err)
	assert.True(t, dErrors.HasCondition(err, models.ConditionRosterFull))

	batch := New(2)
	err = batch.EnrollAll(addrs(3))
	require.Error(t, err)
	assert.True(t, dErrors.HasCondition(err, models.ConditionRosterFull))
	assert.Equal(t, 0, batch.Size())
}

func TestReservePair(t *testing.T) {
	r := New(0)
	pair := addrs(2)
	require.NoError(t, r.EnrollAll(pair))

	require.NoError(t, r.ReservePair(pair[0], pair[1]))

	for _, addr := range pair {
		s, err := r.Subject(addr)
		require.NoError(t, err)
		assert.True(t, s.Assigned)
	}
}

func TestReservePairNotEnrolled(t *testing.T) {
	r := New(0)
	a := id.NewAddress()
	require.NoError(t, r.Enroll(a))

	err := r.ReservePair(a, id.NewAddress())
	require.Error(t, err)
	assert.True(t, dErrors.HasCondition(err, models.ConditionNotEnrolled))

	// The enrolled half was not touched.
	s, err := r.Subject(a)
	require.NoError(t, err)
	assert.False(t, s.Assigned)
}

// TestPairingExclusivity: once assigned, a subject stays assigned for every
// subsequent reservation attempt. There is no reset path.
func TestPairingExclusivity(t *testing.T) {
	r := New(0)
	all := addrs(3)
	require.NoError(t, r.EnrollAll(all))
	require.NoError(t, r.ReservePair(all[0], all[1]))

	for range 3 {
		err := r.ReservePair(all[0], all[2])
		require.Error(t, err)
		assert.True(t, dErrors.HasCondition(err, models.ConditionAlreadyAssigned))
	}

	// The free subject was never marked by the failed attempts.
	s, err := r.Subject(all[2])
	require.NoError(t, err)
	assert.False(t, s.Assigned)
}

func TestReservePairSurvivesClose(t *testing.T) {
	// Closing registration stops enrollment but not pairing.
	r := New(0)
	pair := addrs(2)
	require.NoError(t, r.EnrollAll(pair))
	require.NoError(t, r.Close())

	require.NoError(t, r.ReservePair(pair[0], pair[1]))
}
