/*
 * driver_test.go, part of pbembed.
 *
 * Copyright 2025 Raul Mera <rmeraatusachdotcl>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

package pbe

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	chem "github.com/rmera/pbembed"
	"github.com/rmera/pbembed/bridge"
	"github.com/rmera/pbembed/dmat"
	"github.com/rmera/pbembed/part"
	"github.com/rmera/pbembed/qm"
	v3 "github.com/rmera/pbembed/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func h4(Te *testing.T) *chem.System {
	S, err := chem.XYZFileRead("../testdata/h4.xyz", 0, 1)
	require.NoError(Te, err)
	return S
}

func he2(Te *testing.T) *chem.System {
	c, err := v3.NewMatrix([]float64{0, 0, 0, 3, 0, 0})
	require.NoError(Te, err)
	S, err := chem.NewSystem([]*chem.Atom{{Symbol: "He"}, {Symbol: "He"}}, c, 0, 1)
	require.NoError(Te, err)
	return S
}

func config(active ...int) Config {
	C := DefaultConfig()
	C.ActiveAtoms = active
	return C
}

//fullEnergy runs the whole-system calculation directly.
func fullEnergy(Te *testing.T, S *chem.System) float64 {
	return fullEnergyWith(Te, S, nil)
}

func fullEnergyWith(Te *testing.T, S *chem.System, calc *qm.Calc) float64 {
	rep, err := qm.NewRHF(calc).Run(bridge.Spec{Name: "full", System: S})
	require.NoError(Te, err)
	require.True(Te, rep.Converged)
	return rep.Energy
}

func matEqual(A, B *dmat.Matrix) bool {
	if A == nil || B == nil {
		return A == B
	}
	return dmat.Equal(A, B)
}

var stateCmp = []cmp.Option{
	cmp.Comparer(matEqual),
	cmpopts.IgnoreFields(State{}, "RunID"),
}

func TestHFinHF(Te *testing.T) {
	S := h4(Te)
	ref := fullEnergy(Te, S)
	for _, projector := range []string{LevelShift, Huzinaga} {
		C := config(0, 1)
		C.Projector = projector
		var seen []Status
		D := New(qm.NewRHF(nil), C, WithObserver(func(from, to Status) { seen = append(seen, to) }))
		st, err := D.Run(context.Background(), S)
		require.NoError(Te, err, projector)
		assert.Equal(Te, []Status{EnvRunning, EnvConverged, SubRunning, SubConverged, Converged}, seen, projector)
		assert.Equal(Te, Converged, D.Status())
		assert.Equal(Te, Converged, st.Status)
		assert.True(Te, st.Converged)
		assert.Equal(Te, 1, st.Iterations)
		assert.Equal(Te, 1, st.NActive)
		assert.Equal(Te, 4, st.NAtoms)
		assert.Equal(Te, []int{0, 1}, st.ActiveAtoms)
		assert.False(Te, st.HighLevel)
		assert.NotEmpty(Te, st.RunID)
		assert.InDelta(Te, ref, st.EnvironmentEnergy, 1e-8)

		R, err := Assemble(st)
		require.NoError(Te, err)
		assert.True(Te, R.Corrected)
		assert.InDelta(Te, ref, R.TotalEnergy, 1e-5, projector)
		assert.InDelta(Te, 2, R.ActivePopulation, 1e-5)
		assert.InDelta(Te, 2, R.EnvironmentPopulation, 1e-8)
		require.Len(Te, R.ActiveCharges, 4)
		assert.Greater(Te, R.ActiveCharges[0]+R.ActiveCharges[1], 1.9)
		assert.Equal(Te, []int{0, 1, 2, 3}, st.BasisAtoms)
		//the embedded density reproduces the active part of the whole-system density
		assert.True(Te, dmat.EqualApprox(st.SubsystemDensity, st.ActiveDensity, 1e-4), projector)
		assert.Equal(Te, int64(2), D.Bridge().Stats().Runs)
		assert.False(Te, D.Bridge().InFlight())
	}
}

func TestZeroShift(Te *testing.T) {
	S := he2(Te)
	C := config(0)
	C.LevelShift = 0
	C.EmbeddingPotential = false
	st, err := New(qm.NewRHF(nil), C).Run(context.Background(), S)
	require.NoError(Te, err)
	assert.Equal(Te, 1, st.Iterations)
	assert.Nil(Te, st.Potential)
	n, _ := st.Projection.Dims()
	assert.True(Te, dmat.Equal(dmat.Zeros(dmat.Projection, n), st.Projection))

	//Same as running the subsystem on its own, with the same guess.
	spec := bridge.Spec{Name: SubsystemCalc, System: S, Ghosts: []int{1}}
	R := qm.NewRHF(nil)
	ctx, err := R.Context(spec)
	require.NoError(Te, err)
	guess, err := ctx.ToNative(st.ActiveDensity)
	require.NoError(Te, err)
	spec.Guess = &guess
	rep, err := R.Run(spec)
	require.NoError(Te, err)
	assert.InDelta(Te, rep.Energy, st.SubsystemEnergy, 1e-10)
}

func TestRefresh(Te *testing.T) {
	S := h4(Te)
	C := config(0, 1)
	C.Environment = Refresh
	rec := &recorder{Solver: qm.NewRHF(nil)}
	var seen []Status
	st, err := New(rec, C, WithObserver(func(from, to Status) { seen = append(seen, to) })).Run(context.Background(), S)
	require.NoError(Te, err)
	assert.Equal(Te, 2, st.Iterations)
	assert.Less(Te, st.LastDelta, C.Threshold)
	assert.Equal(Te, []string{EnvironmentCalc, SubsystemCalc, EnvironmentCalc, SubsystemCalc}, rec.calcs)
	assert.Equal(Te, 1, rec.maxInFlight)
	assert.Equal(Te, []Status{EnvRunning, EnvConverged, SubRunning, SubConverged, Iterating,
		EnvRunning, EnvConverged, SubRunning, SubConverged, Converged}, seen)
	R, err := Assemble(st)
	require.NoError(Te, err)
	assert.InDelta(Te, fullEnergy(Te, S), R.TotalEnergy, 1e-5)
}

func TestNoOuterIterations(Te *testing.T) {
	C := config(0, 1)
	C.MaxOuterIterations = 0
	D := New(qm.NewRHF(nil), C)
	_, err := D.Run(context.Background(), h4(Te))
	var f *Failure
	require.ErrorAs(Te, err, &f)
	var cerr *ConvergenceError
	require.ErrorAs(Te, err, &cerr)
	assert.Equal(Te, 0, cerr.Iterations)
	assert.Equal(Te, int64(0), D.Bridge().Stats().Runs)
	assert.Equal(Te, Failed, D.Status())
	assert.Nil(Te, f.Pending)
	_, err = Assemble(f.State)
	var ierr *IncompleteStateError
	assert.ErrorAs(Te, err, &ierr)
}

//maxOneIteration returns the State left by a refresh run stopped after one outer iteration.
func maxOneIteration(Te *testing.T, S *chem.System) *State {
	C := config(0, 1)
	C.Environment = Refresh
	C.MaxOuterIterations = 1
	_, err := New(qm.NewRHF(nil), C).Run(context.Background(), S)
	var cerr *ConvergenceError
	require.ErrorAs(Te, err, &cerr)
	assert.Equal(Te, 1, cerr.Iterations)
	assert.True(Te, math.IsInf(cerr.LastDelta, 1))
	var f *Failure
	require.ErrorAs(Te, err, &f)
	require.True(Te, f.State.HasSubsystem())
	assert.Nil(Te, f.Pending)
	return f.State
}

func TestFailurePreservesState(Te *testing.T) {
	S := h4(Te)
	want := maxOneIteration(Te, S)

	C := config(0, 1)
	C.Environment = Refresh
	solver := &corrupter{RHF: qm.NewRHF(nil), failAt: 2}
	_, err := New(solver, C).Run(context.Background(), S)
	var f *Failure
	require.ErrorAs(Te, err, &f)
	assert.Equal(Te, SubRunning, f.Status)
	var cb *bridge.CallbackFailure
	require.ErrorAs(Te, err, &cb)
	assert.Equal(Te, SubsystemCalc, cb.Calc)
	assert.Equal(Te, bridge.FockRequested, cb.Phase)
	var serr *dmat.ShapeMismatchError
	require.ErrorAs(Te, err, &serr)

	assert.Equal(Te, Failed, f.State.Status)
	assert.Empty(Te, cmp.Diff(want, f.State, stateCmp...))

	//The pending State holds the environment of the second iteration, and can be resumed.
	require.NotNil(Te, f.Pending)
	assert.Equal(Te, EnvConverged, f.Pending.Status)
	assert.Equal(Te, 1, f.Pending.Iterations)
	assert.True(Te, f.Pending.HasEnvironment())
	rec := &recorder{Solver: qm.NewRHF(nil)}
	st, err := New(rec, C).Resume(context.Background(), S, f.Pending)
	require.NoError(Te, err)
	assert.Equal(Te, 2, st.Iterations)
	assert.Equal(Te, []string{SubsystemCalc}, rec.calcs)
}

func TestCancel(Te *testing.T) {
	S := h4(Te)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(qm.NewRHF(nil), config(0, 1)).Run(ctx, S)
	require.ErrorIs(Te, err, ErrCancelled)

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	D := New(qm.NewRHF(nil), config(0, 1), WithObserver(func(from, to Status) {
		if to == SubRunning {
			cancel()
		}
	}))
	_, err = D.Run(ctx, S)
	require.ErrorIs(Te, err, ErrCancelled)
	var f *Failure
	require.ErrorAs(Te, err, &f)
	assert.Equal(Te, SubRunning, f.Status)
	assert.Equal(Te, 0, f.State.Iterations)
	assert.NotNil(Te, f.Pending)
	assert.False(Te, D.Bridge().InFlight())
}

func TestInitErrors(Te *testing.T) {
	S := h4(Te)
	R := qm.NewRHF(nil)
	single := config(0, 1)
	single.Precision = "single"
	zeroThreshold := config(0, 1)
	zeroThreshold.Threshold = 0
	cases := []struct {
		name  string
		cfg   Config
		check func(err error)
	}{
		{"out of range", config(7), func(err error) {
			var serr *part.InvalidSelectionError
			assert.ErrorAs(Te, err, &serr)
		}},
		{"every atom", config(0, 1, 2, 3), func(err error) {
			var serr *part.InvalidSelectionError
			assert.ErrorAs(Te, err, &serr)
		}},
		{"odd electrons", config(0), func(err error) { assert.ErrorIs(Te, err, ErrActiveElectrons) }},
		{"precision", single, func(err error) { assert.ErrorIs(Te, err, ErrPrecision) }},
		{"empty selection", config(), func(err error) {
			var serr *part.InvalidSelectionError
			require.ErrorAs(Te, err, &serr)
			assert.Equal(Te, -1, serr.Index)
		}},
		{"negative index", config(-1), func(err error) {
			var serr *part.InvalidSelectionError
			require.ErrorAs(Te, err, &serr)
			assert.Equal(Te, -1, serr.Index)
			assert.Contains(Te, serr.Reason, "out of range")
		}},
		{"short mask", mask(1, 1, 2), func(err error) {
			var serr *part.InvalidSelectionError
			assert.ErrorAs(Te, err, &serr)
		}},
		{"config", zeroThreshold, func(err error) { assert.ErrorIs(Te, err, ErrConfig) }},
	}
	for _, c := range cases {
		D := New(R, c.cfg)
		_, err := D.Run(context.Background(), S)
		var f *Failure
		require.ErrorAs(Te, err, &f, c.name)
		assert.Equal(Te, Init, f.Status, c.name)
		c.check(err)
		assert.Equal(Te, int64(0), D.Bridge().Stats().Runs, c.name)
	}
}

func mask(labels ...int) Config {
	C := DefaultConfig()
	C.EmbedMask = labels
	return C
}

func TestRegionMasks(Te *testing.T) {
	S := h4(Te)
	ref := fullEnergy(Te, S)
	count := DefaultConfig()
	count.ActiveCount = 2
	for name, C := range map[string]Config{"count": count, "mask": mask(2, 2, 1, 1)} {
		st, err := New(qm.NewRHF(nil), C).Run(context.Background(), S)
		require.NoError(Te, err, name)
		R, err := Assemble(st)
		require.NoError(Te, err, name)
		assert.InDelta(Te, ref, R.TotalEnergy, 1e-5, name)
		if name == "count" {
			assert.Equal(Te, []int{0, 1}, st.ActiveAtoms)
		} else {
			assert.Equal(Te, []int{2, 3}, st.ActiveAtoms)
		}
	}
}

func TestHighLevel(Te *testing.T) {
	S := h4(Te)
	high := fullEnergy(Te, S)

	//two solvers at the same level still reproduce the whole-system energy
	st, err := New(qm.NewRHF(nil), config(0, 1), WithHighLevel(qm.NewRHF(nil))).Run(context.Background(), S)
	require.NoError(Te, err)
	assert.True(Te, st.HighLevel)
	R, err := Assemble(st)
	require.NoError(Te, err)
	assert.InDelta(Te, high, R.TotalEnergy, 1e-5)

	//Hartree-Fock embedded in Hartree
	hartree := &qm.Calc{Method: "Hartree", DIIS: true}
	low := fullEnergyWith(Te, S, hartree)
	lrec := &recorder{Solver: qm.NewRHF(hartree)}
	hrec := &recorder{Solver: qm.NewRHF(nil)}
	D := New(lrec, config(0, 1), WithHighLevel(hrec))
	st, err = D.Run(context.Background(), S)
	require.NoError(Te, err)
	assert.Equal(Te, []string{EnvironmentCalc}, lrec.calcs)
	assert.Equal(Te, []string{SubsystemCalc}, hrec.calcs)
	assert.Equal(Te, int64(1), D.Bridge().Stats().Runs)
	assert.Equal(Te, int64(1), D.HighLevel().Stats().Runs)
	assert.InDelta(Te, low, st.EnvironmentEnergy, 1e-8)

	spec := bridge.Spec{Name: SubsystemCalc, System: S, Ghosts: []int{2, 3}}
	L, H := qm.NewRHF(hartree), qm.NewRHF(nil)
	cctx, err := L.Context(spec)
	require.NoError(Te, err)
	da, err := cctx.ToNative(st.ActiveDensity)
	require.NoError(Te, err)
	dt, err := cctx.ToNative(st.SubsystemDensity)
	require.NoError(Te, err)
	ref, err := L.EnergyAt(spec, da)
	require.NoError(Te, err)
	assert.InDelta(Te, ref, st.ReferenceEnergy, 1e-10)
	sub, err := H.EnergyAt(spec, dt)
	require.NoError(Te, err)
	assert.InDelta(Te, sub, st.SubsystemEnergy, 1e-8)
	fraw, err := L.FockAt(spec, da)
	require.NoError(Te, err)
	Fll, err := cctx.Wrap(fraw, dmat.Fock)
	require.NoError(Te, err)
	v, err := dmat.Sub(st.EnvironmentFock, Fll)
	require.NoError(Te, err)
	assert.True(Te, dmat.EqualApprox(v, st.Potential, 1e-10))

	R, err = Assemble(st)
	require.NoError(Te, err)
	assert.InDelta(Te, sub-ref+low+R.PotentialEnergy+R.ProjectionEnergy, R.TotalEnergy, 1e-8)
	//half of the system at the high level takes the energy towards the high-level one
	assert.Less(Te, math.Abs(R.TotalEnergy-high), math.Abs(low-high))
}

func TestHighLevelErrors(Te *testing.T) {
	S := h4(Te)
	cases := []struct {
		name      string
		low, high bridge.Solver
		want      error
	}{
		{"basis", qm.NewRHF(nil), qm.NewRHF(&qm.Calc{Basis: "6-31g"}), ErrLevels},
		{"no evaluator", noEval{qm.NewRHF(nil)}, qm.NewRHF(nil), ErrLevels},
		{"precision", qm.NewRHF(nil), qm.NewRHF(&qm.Calc{Precision: dmat.Single}), ErrPrecision},
	}
	for _, c := range cases {
		D := New(c.low, config(0, 1), WithHighLevel(c.high))
		_, err := D.Run(context.Background(), S)
		var f *Failure
		require.ErrorAs(Te, err, &f, c.name)
		assert.Equal(Te, Init, f.Status, c.name)
		assert.ErrorIs(Te, err, c.want, c.name)
		assert.Equal(Te, int64(0), D.Bridge().Stats().Runs, c.name)
		assert.Equal(Te, int64(0), D.HighLevel().Stats().Runs, c.name)
	}
}

func TestUncorrected(Te *testing.T) {
	S := h4(Te)
	st, err := New(noEval{qm.NewRHF(nil)}, config(0, 1)).Run(context.Background(), S)
	require.NoError(Te, err)
	assert.False(Te, st.Corrected)
	R, err := Assemble(st)
	require.NoError(Te, err)
	assert.False(Te, R.Corrected)
	assert.InDelta(Te, st.SubsystemEnergy+R.ProjectionEnergy, R.TotalEnergy, 1e-12)
}

func TestTruncatedBasis(Te *testing.T) {
	S := h4(Te)
	C := config(0, 1)
	C.TruncationThreshold = 0.5
	st, err := New(qm.NewRHF(nil), C).Run(context.Background(), S)
	require.NoError(Te, err)
	assert.Equal(Te, []int{0, 1}, st.KeptAtoms)
	n, _ := st.SubsystemDensity.Dims()
	assert.Equal(Te, 4, n)
	for i := 0; i < n; i++ {
		for j := 2; j < n; j++ {
			v, _ := st.SubsystemDensity.At(i, j)
			assert.Equal(Te, 0.0, v)
		}
	}
	R, err := Assemble(st)
	require.NoError(Te, err)
	assert.InDelta(Te, 2, R.ActivePopulation, 1e-6)
	assert.False(Te, math.IsNaN(R.TotalEnergy) || math.IsInf(R.TotalEnergy, 0))
	assert.Equal(Te, 1, R.Iterations)
}

func TestBusy(Te *testing.T) {
	S := h4(Te)
	var D *Driver
	var inner error
	D = New(qm.NewRHF(nil), config(0, 1), WithObserver(func(from, to Status) {
		if to == EnvConverged {
			_, inner = D.Run(context.Background(), S)
		}
	}))
	_, err := D.Run(context.Background(), S)
	require.NoError(Te, err)
	assert.ErrorIs(Te, inner, ErrBusy)
}

func TestMetrics(Te *testing.T) {
	reg := prometheus.NewRegistry()
	M := NewMetrics(reg)
	_, err := New(qm.NewRHF(nil), config(0, 1), WithMetrics(M)).Run(context.Background(), h4(Te))
	require.NoError(Te, err)
	assert.Equal(Te, 1.0, testutil.ToFloat64(M.outer))
	assert.Equal(Te, 0.0, testutil.ToFloat64(M.delta))
	assert.Equal(Te, 1.0, testutil.ToFloat64(M.outcomes.WithLabelValues("converged")))
	assert.Equal(Te, 1.0, testutil.ToFloat64(M.transitions.WithLabelValues("sub_running")))
	assert.Equal(Te, 2, testutil.CollectAndCount(M.scf))
	n, err := testutil.GatherAndCount(reg)
	require.NoError(Te, err)
	assert.Positive(Te, n)
}

//recorder records the calculations run by the solver.
type recorder struct {
	bridge.Solver
	calcs       []string
	inflight    int
	maxInFlight int
}

func (R *recorder) Run(spec bridge.Spec) (bridge.Report, error) {
	R.inflight++
	R.maxInFlight = max(R.maxInFlight, R.inflight)
	defer func() { R.inflight-- }()
	R.calcs = append(R.calcs, spec.Name)
	return R.Solver.Run(spec)
}

func (R *recorder) EnergyAt(spec bridge.Spec, density dmat.Raw) (float64, error) {
	ev, ok := R.Solver.(bridge.Evaluator)
	if !ok {
		return 0, errors.New("no evaluator")
	}
	return ev.EnergyAt(spec, density)
}

func (R *recorder) FockAt(spec bridge.Spec, density dmat.Raw) (dmat.Raw, error) {
	fb, ok := R.Solver.(bridge.FockBuilder)
	if !ok {
		return dmat.Raw{}, errors.New("no Fock builder")
	}
	return fb.FockAt(spec, density)
}

//corrupter truncates the Fock buffers of its failAt-th subsystem calculation.
type corrupter struct {
	*qm.RHF
	failAt  int
	subRuns int
	corrupt bool
}

func (C *corrupter) SetCallback(p bridge.Phase, cb bridge.NativeCallback) {
	if cb == nil || p != bridge.FockRequested {
		C.RHF.SetCallback(p, cb)
		return
	}
	C.RHF.SetCallback(p, func(iter int, raw dmat.Raw) (*dmat.Raw, error) {
		if C.corrupt {
			raw.Data = raw.Data[:len(raw.Data)-1]
		}
		return cb(iter, raw)
	})
}

func (C *corrupter) Run(spec bridge.Spec) (bridge.Report, error) {
	if spec.Name == SubsystemCalc {
		C.subRuns++
		C.corrupt = C.subRuns == C.failAt
	}
	return C.RHF.Run(spec)
}

//noEval hides the Evaluator of the RHF solver.
type noEval struct {
	R *qm.RHF
}

func (N noEval) Context(spec bridge.Spec) (dmat.Context, error) { return N.R.Context(spec) }
func (N noEval) BasisAtoms(spec bridge.Spec) ([]int, error)     { return N.R.BasisAtoms(spec) }
func (N noEval) Run(spec bridge.Spec) (bridge.Report, error)    { return N.R.Run(spec) }
func (N noEval) SetCallback(p bridge.Phase, cb bridge.NativeCallback) {
	N.R.SetCallback(p, cb)
}
