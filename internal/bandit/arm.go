// Recomate - Conversational Companion Topic Engine
// Copyright 2026 yasut0ra
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/yasut0ra/recomate

package bandit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Arm holds the per-topic ridge-regression sufficient statistics of a
// disjoint linear UCB model: the design matrix A (initialized to λ·I),
// the reward-weighted context sum b, and selection counters. The inverse
// of A is maintained incrementally with the Sherman-Morrison identity so
// scoring never pays for a full matrix inversion.
//
// All methods are safe for concurrent use. Readers snapshot; only reward
// application mutates.
type Arm struct {
	topicID string
	dim     int
	lambda  float64

	mu               sync.RWMutex
	a                *mat.Dense
	aInv             *mat.Dense
	b                *mat.VecDense
	count            int64
	cumulativeReward float64
	lastSelectedAt   time.Time

	// seq increments on every mutation; the write-behind flusher uses it
	// to detect updates that raced with an in-flight flush.
	seq        uint64
	flushedSeq uint64
}

func newArm(topicID string, dim int, lambda float64) *Arm {
	a := mat.NewDense(dim, dim, nil)
	aInv := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		a.Set(i, i, lambda)
		aInv.Set(i, i, 1/lambda)
	}
	return &Arm{
		topicID: topicID,
		dim:     dim,
		lambda:  lambda,
		a:       a,
		aInv:    aInv,
		b:       mat.NewVecDense(dim, nil),
	}
}

// TopicID returns the topic this arm models.
func (a *Arm) TopicID() string { return a.topicID }

// Count returns the number of rewards applied to the arm.
func (a *Arm) Count() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.count
}

// ArmSnapshot is a consistent read-only copy of an arm's model state,
// taken under the arm's read lock. Scoring works entirely off snapshots
// so a concurrent reward application never skews a selection mid-scan.
type ArmSnapshot struct {
	TopicID          string
	AInv             *mat.Dense
	Theta            *mat.VecDense
	Count            int64
	CumulativeReward float64
	LastSelectedAt   time.Time
}

// Snapshot copies the arm's inverse design matrix and solves for the
// coefficient estimate θ = A⁻¹·b.
func (a *Arm) Snapshot() ArmSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	theta := mat.NewVecDense(a.dim, nil)
	theta.MulVec(a.aInv, a.b)
	return ArmSnapshot{
		TopicID:          a.topicID,
		AInv:             mat.DenseCopyOf(a.aInv),
		Theta:            theta,
		Count:            a.count,
		CumulativeReward: a.cumulativeReward,
		LastSelectedAt:   a.lastSelectedAt,
	}
}

// Score computes the upper-confidence-bound score of the snapshot for
// context x: θ·x + α·sqrt(xᵀ·A⁻¹·x).
func (s ArmSnapshot) Score(x *mat.VecDense, alpha float64) float64 {
	u := mat.NewVecDense(x.Len(), nil)
	u.MulVec(s.AInv, x)
	exploit := mat.Dot(s.Theta, x)
	explore := mat.Dot(x, u)
	if explore < 0 {
		// Guard against tiny negative values from floating-point drift;
		// A⁻¹ is positive definite so the quadratic form is >= 0.
		explore = 0
	}
	return exploit + alpha*math.Sqrt(explore)
}

// applyUpdate folds one observed (context, reward) pair into the arm:
// A += x·xᵀ, b += r·x, with A⁻¹ updated via Sherman-Morrison:
//
//	A'⁻¹ = A⁻¹ - (A⁻¹·x)(A⁻¹·x)ᵀ / (1 + xᵀ·A⁻¹·x)
//
// selectedAt records when the rewarded selection was made.
func (a *Arm) applyUpdate(x *mat.VecDense, reward float64, selectedAt time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var outer mat.Dense
	outer.Outer(1, x, x)
	a.a.Add(a.a, &outer)

	a.b.AddScaledVec(a.b, reward, x)

	u := mat.NewVecDense(a.dim, nil)
	u.MulVec(a.aInv, x)
	denom := 1 + mat.Dot(x, u)
	var corr mat.Dense
	corr.Outer(1/denom, u, u)
	a.aInv.Sub(a.aInv, &corr)

	a.count++
	a.cumulativeReward += reward
	a.lastSelectedAt = selectedAt
	a.seq++
}

// ArmState is the serializable form of an arm, suitable for persistence
// and restart recovery. A and B are row-major raw matrix data.
type ArmState struct {
	TopicID          string    `json:"topicId"`
	Dim              int       `json:"dim"`
	Lambda           float64   `json:"lambda"`
	A                []float64 `json:"a"`
	B                []float64 `json:"b"`
	Count            int64     `json:"count"`
	CumulativeReward float64   `json:"cumulativeReward"`
	LastSelectedAt   time.Time `json:"lastSelectedAt"`

	seq uint64
}

// State exports the arm for persistence. The embedded sequence number
// lets MarkFlushed detect whether the arm changed while the flush was
// in flight.
func (a *Arm) State() ArmState {
	a.mu.RLock()
	defer a.mu.RUnlock()

	aRaw := make([]float64, a.dim*a.dim)
	copy(aRaw, a.a.RawMatrix().Data)
	bRaw := make([]float64, a.dim)
	copy(bRaw, a.b.RawVector().Data)
	return ArmState{
		TopicID:          a.topicID,
		Dim:              a.dim,
		Lambda:           a.lambda,
		A:                aRaw,
		B:                bRaw,
		Count:            a.count,
		CumulativeReward: a.cumulativeReward,
		LastSelectedAt:   a.lastSelectedAt,
		seq:              a.seq,
	}
}

// restore rebuilds the arm from a persisted state, recomputing A⁻¹ by
// direct inversion once at load time.
func (a *Arm) restore(st ArmState) error {
	if st.Dim != a.dim {
		return &DimensionError{Want: a.dim, Got: st.Dim}
	}
	if len(st.A) != a.dim*a.dim || len(st.B) != a.dim {
		return fmt.Errorf("arm %s: malformed state payload", st.TopicID)
	}

	design := mat.NewDense(a.dim, a.dim, append([]float64(nil), st.A...))
	inv := mat.NewDense(a.dim, a.dim, nil)
	if err := inv.Inverse(design); err != nil {
		return fmt.Errorf("arm %s: singular design matrix: %w", st.TopicID, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.a = design
	a.aInv = inv
	a.b = mat.NewVecDense(a.dim, append([]float64(nil), st.B...))
	a.count = st.Count
	a.cumulativeReward = st.CumulativeReward
	a.lastSelectedAt = st.LastSelectedAt
	// Restored state is by definition in sync with the store.
	a.seq = 0
	a.flushedSeq = 0
	return nil
}

// dirty reports whether the arm has mutations not yet persisted.
func (a *Arm) dirty() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.seq != a.flushedSeq
}

// markFlushed records that a state exported at sequence seq has been
// durably written. A no-op when the arm changed after the export.
func (a *Arm) markFlushed(seq uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.seq == seq {
		a.flushedSeq = seq
	}
}
