// Package roster tracks enrollment and pairing eligibility for one
// variation engine's participants.
package roster

import (
	"fmt"
	"sync"

	"bxhive/internal/variation/models"
	id "bxhive/pkg/domain"
	dErrors "bxhive/pkg/domain-errors"
)

// Roster is one engine's participant set. Enrollment and pair reservation
// are the only mutators; both are atomic with respect to concurrent callers.
//
// There is no unenroll and no pair release: an assigned subject stays
// assigned for the roster's lifetime.
type Roster struct {
	mu          sync.RWMutex
	subjects    map[id.Address]*models.Subject
	open        bool
	maxSubjects uint64
}

// New creates an open roster. maxSubjects of 0 means unlimited.
func New(maxSubjects uint64) *Roster {
	return &Roster{
		subjects:    make(map[id.Address]*models.Subject),
		open:        true,
		maxSubjects: maxSubjects,
	}
}

// Enroll adds one subject.
func (r *Roster) Enroll(addr id.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enrollLocked(addr)
}

// EnrollAll adds a batch of subjects, all-or-nothing: if any enrollment
// would fail, none is applied.
func (r *Roster) EnrollAll(addrs []id.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkOpenLocked(); err != nil {
		return err
	}
	if r.maxSubjects > 0 && uint64(len(r.subjects)+len(addrs)) > r.maxSubjects {
		return dErrors.NewCondition(dErrors.CodeResourceExhausted, models.ConditionRosterFull,
			"batch exceeds the subject limit")
	}
	seen := make(map[id.Address]struct{}, len(addrs))
	for _, addr := range addrs {
		if _, dup := seen[addr]; dup {
			return alreadyEnrolled(addr)
		}
		seen[addr] = struct{}{}
		if _, ok := r.subjects[addr]; ok {
			return alreadyEnrolled(addr)
		}
	}
	for _, addr := range addrs {
		r.subjects[addr] = &models.Subject{Enrolled: true}
	}
	return nil
}

// Close ends registration, one way. A second call fails with not_active.
func (r *Roster) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open {
		return dErrors.NewCondition(dErrors.CodeInvalidState, models.ConditionNotActive,
			"registration is already closed")
	}
	r.open = false
	return nil
}

// Open reports whether registration is still open.
func (r *Roster) Open() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.open
}

// ReservePair atomically marks both subjects assigned. On any failure
// neither is touched.
func (r *Roster) ReservePair(a, b id.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, addr := range []id.Address{a, b} {
		s, ok := r.subjects[addr]
		if !ok {
			return dErrors.NewCondition(dErrors.CodeNotFound, models.ConditionNotEnrolled,
				fmt.Sprintf("subject %s is not enrolled", addr))
		}
		if !s.Enrolled {
			return dErrors.NewCondition(dErrors.CodeInvalidState, models.ConditionNotActive,
				fmt.Sprintf("subject %s is not active", addr))
		}
		if s.Assigned {
			return dErrors.NewCondition(dErrors.CodeInvalidState, models.ConditionAlreadyAssigned,
				fmt.Sprintf("subject %s is already assigned", addr))
		}
	}
	r.subjects[a].Assigned = true
	r.subjects[b].Assigned = true
	return nil
}

// Subject returns a copy of one enrollment record.
func (r *Roster) Subject(addr id.Address) (models.Subject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subjects[addr]
	if !ok {
		return models.Subject{}, dErrors.NewCondition(dErrors.CodeNotFound, models.ConditionNotEnrolled,
			fmt.Sprintf("subject %s is not enrolled", addr))
	}
	return *s, nil
}

// Size returns the number of enrolled subjects.
func (r *Roster) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subjects)
}

func (r *Roster) enrollLocked(addr id.Address) error {
	if err := r.checkOpenLocked(); err != nil {
		return err
	}
	if _, ok := r.subjects[addr]; ok {
		return alreadyEnrolled(addr)
	}
	if r.maxSubjects > 0 && uint64(len(r.subjects)) >= r.maxSubjects {
		return dErrors.NewCondition(dErrors.CodeResourceExhausted, models.ConditionRosterFull,
			"subject limit reached")
	}
	r.subjects[addr] = &models.Subject{Enrolled: true}
	return nil
}

func (r *Roster) checkOpenLocked() error {
	if !r.open {
		return dErrors.NewCondition(dErrors.CodeInvalidState, models.ConditionRosterClosed,
			"registration is closed")
	}
	return nil
}

func alreadyEnrolled(addr id.Address) error {
	return dErrors.NewCondition(dErrors.CodeConflict, models.ConditionAlreadyEnrolled,
		fmt.Sprintf("subject %s is already enrolled", addr))
}
