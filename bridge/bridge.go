/*
 * bridge.go, part of pbembed.
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

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rmera/pbembed/dmat"
	"go.uber.org/zap"
)

//Event describes one callback from the solver. The Matrix is a copy that belongs
//to the handler.
type Event struct {
	Calc   string
	Phase  Phase
	Iter   int
	Matrix *dmat.Matrix
}

//Handlers are the functions called at each phase of the SCF of the next calculation.
//Any of them can be nil. FockRequested returns the Fock matrix the solver
//should use, or nil to leave the solver's one untouched.
type Handlers struct {
	OverlapReady  func(ev *Event) error
	FockRequested func(ev *Event) (*dmat.Matrix, error)
	DensityReady  func(ev *Event) error
}

//Result holds the matrices seen during a calculation, and the solver's report.
//Fock is the unmodified Fock matrix, built from the final density when the
//solver reports it.
type Result struct {
	Context    dmat.Context
	Overlap    *dmat.Matrix
	Fock       *dmat.Matrix
	Density    *dmat.Matrix
	Energy     float64
	Converged  bool
	Iterations int
}

//Stats counts what went through a Bridge.
type Stats struct {
	Runs      int64
	Callbacks int64
	Failures  int64
}

//Bridge drives a Solver, running at most one calculation at a time, and
//dispatches the solver's callbacks to the registered Handlers.
type Bridge struct {
	solver   Solver
	log      *zap.Logger
	inflight atomic.Bool
	handlers Handlers
	runs     atomic.Int64
	calls    atomic.Int64
	fails    atomic.Int64
}

//Option configures a Bridge.
type Option func(*Bridge)

//WithLogger sets the logger for the bridge. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(B *Bridge) {
		if l != nil {
			B.log = l
		}
	}
}

//New returns a Bridge for the solver s.
func New(s Solver, opts ...Option) *Bridge {
	B := &Bridge{solver: s, log: zap.NewNop()}
	for _, o := range opts {
		o(B)
	}
	B.log = B.log.Named("bridge")
	return B
}

//Solver returns the solver driven by B.
func (B *Bridge) Solver() Solver { return B.solver }

//InFlight returns true while a calculation is running.
func (B *Bridge) InFlight() bool { return B.inflight.Load() }

//Stats returns the counters of the bridge.
func (B *Bridge) Stats() Stats {
	return Stats{Runs: B.runs.Load(), Callbacks: B.calls.Load(), Failures: B.fails.Load()}
}

//Register installs h as the handlers for the next calculation. It fails with ErrInFlight
//if a calculation is running.
func (B *Bridge) Register(h Handlers) error {
	if B.inflight.Load() {
		return ErrInFlight
	}
	B.handlers = h
	return nil
}

//Context returns the matrix convention of the calculation described by spec.
func (B *Bridge) Context(spec Spec) (dmat.Context, error) {
	return B.solver.Context(spec)
}

//BasisAtoms returns the atom each basis function of the calculation is centered on.
func (B *Bridge) BasisAtoms(spec Spec) ([]int, error) {
	return B.solver.BasisAtoms(spec)
}

//acquire sets the in-flight flag, or fails if it was already set.
func (B *Bridge) acquire() error {
	if !B.inflight.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	return nil
}

//RunCalculation runs the calculation described by spec with the registered handlers,
//and blocks until the solver returns. Handlers are consumed by the calculation: they
//are removed, and every solver callback unregistered, before RunCalculation returns.
//Errors inside callbacks are returned as *CallbackFailure.
func (B *Bridge) RunCalculation(ctx context.Context, spec Spec) (*Result, error) {
	if err := B.acquire(); err != nil {
		return nil, err
	}
	r := &run{bridge: B, ctx: ctx, calc: spec.Name, handlers: B.handlers, last: -1}
	defer B.release()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w before %s calculation: %w", ErrCancelled, spec.Name, err)
	}
	var err error
	r.cctx, err = B.solver.Context(spec)
	if err != nil {
		return nil, fmt.Errorf("bridge: context for %s calculation: %w", spec.Name, err)
	}
	for _, p := range Phases {
		phase := p
		B.solver.SetCallback(phase, func(iter int, raw dmat.Raw) (*dmat.Raw, error) {
			return r.dispatch(phase, iter, raw)
		})
	}
	B.runs.Add(1)
	B.log.Debug("calculation started", zap.String("calc", spec.Name), zap.Int("nbasis", r.cctx.NBasis))
	rep, err := B.solver.Run(spec)
	if r.failure != nil {
		B.fails.Add(1)
		r.failure.Decorate("RunCalculation")
		B.log.Warn("calculation aborted", zap.String("calc", spec.Name), zap.Error(r.failure))
		return nil, r.failure
	}
	if err != nil {
		B.fails.Add(1)
		return nil, fmt.Errorf("bridge: %s calculation: %w", spec.Name, err)
	}
	return r.result(rep)
}

//release unregisters every callback, drops the handlers and clears the in-flight flag.
func (B *Bridge) release() {
	for _, p := range Phases {
		B.solver.SetCallback(p, nil)
	}
	B.handlers = Handlers{}
	B.inflight.Store(false)
}

//fixed prepares a fixed-density evaluation: it takes the in-flight flag and converts
//density to the solver's convention. The returned function releases the flag.
func (B *Bridge) fixed(ctx context.Context, spec Spec, density *dmat.Matrix) (dmat.Context, dmat.Raw, func(), error) {
	if err := B.acquire(); err != nil {
		return dmat.Context{}, dmat.Raw{}, nil, err
	}
	done := func() { B.inflight.Store(false) }
	if err := ctx.Err(); err != nil {
		done()
		return dmat.Context{}, dmat.Raw{}, nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	cctx, err := B.solver.Context(spec)
	if err != nil {
		done()
		return dmat.Context{}, dmat.Raw{}, nil, fmt.Errorf("bridge: context for %s evaluation: %w", spec.Name, err)
	}
	raw, err := cctx.ToNative(density)
	if err != nil {
		done()
		return dmat.Context{}, dmat.Raw{}, nil, err
	}
	return cctx, raw, done, nil
}

//Evaluate returns the energy of the density given, in the calculation described by spec,
//without running an SCF. It needs the solver to implement Evaluator.
func (B *Bridge) Evaluate(ctx context.Context, spec Spec, density *dmat.Matrix) (float64, error) {
	ev, ok := B.solver.(Evaluator)
	if !ok {
		return 0, ErrNoEvaluator
	}
	_, raw, done, err := B.fixed(ctx, spec, density)
	if err != nil {
		return 0, err
	}
	defer done()
	e, err := ev.EnergyAt(spec, raw)
	if err != nil {
		return 0, fmt.Errorf("bridge: %s evaluation: %w", spec.Name, err)
	}
	return e, nil
}

//FockAt returns the Fock matrix built from the density given, in the calculation
//described by spec, without running an SCF. It needs the solver to implement FockBuilder.
func (B *Bridge) FockAt(ctx context.Context, spec Spec, density *dmat.Matrix) (*dmat.Matrix, error) {
	fb, ok := B.solver.(FockBuilder)
	if !ok {
		return nil, ErrNoFockBuilder
	}
	cctx, raw, done, err := B.fixed(ctx, spec, density)
	if err != nil {
		return nil, err
	}
	defer done()
	out, err := fb.FockAt(spec, raw)
	if err != nil {
		return nil, fmt.Errorf("bridge: %s Fock matrix: %w", spec.Name, err)
	}
	F, err := cctx.Wrap(out, dmat.Fock)
	if err != nil {
		return nil, fmt.Errorf("bridge: %s Fock matrix: %w", spec.Name, err)
	}
	return F, nil
}

//run is the state of one calculation. Only the solver's goroutine touches it.
type run struct {
	bridge   *Bridge
	ctx      context.Context
	cctx     dmat.Context
	calc     string
	handlers Handlers
	last     Phase //-1 before the first callback
	failure  *CallbackFailure
	overlap  *dmat.Matrix
	fock     *dmat.Matrix
	density  *dmat.Matrix
}

func (r *run) fail(phase Phase, iter int, cause error) (*dmat.Raw, error) {
	r.failure = &CallbackFailure{Calc: r.calc, Phase: phase, Iter: iter, Cause: cause}
	return nil, r.failure
}

//checkOrder verifies that phase can follow the last phase seen.
func (r *run) checkOrder(phase Phase) error {
	ok := false
	switch phase {
	case OverlapReady:
		ok = r.last == -1
	case FockRequested:
		ok = r.last == OverlapReady || r.last == DensityReady
	case DensityReady:
		ok = r.last == FockRequested
	}
	if ok {
		return nil
	}
	prev := "nothing"
	if r.last >= 0 {
		prev = r.last.String()
	}
	return fmt.Errorf("%w: %s after %s", ErrPhaseOrder, phase, prev)
}

//dispatch handles one callback. A panicking handler becomes a failure of the
//calculation, so it never unwinds through the solver.
func (r *run) dispatch(phase Phase, iter int, raw dmat.Raw) (out *dmat.Raw, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.bridge.log.Error("handler panic", zap.String("calc", r.calc), zap.Stringer("phase", phase), zap.Any("panic", p))
			out, err = r.fail(phase, iter, fmt.Errorf("%w: %v", ErrHandlerPanic, p))
		}
	}()
	return r.handle(phase, iter, raw)
}

func (r *run) handle(phase Phase, iter int, raw dmat.Raw) (*dmat.Raw, error) {
	B := r.bridge
	B.calls.Add(1)
	if r.failure != nil {
		return nil, ErrAborted
	}
	if err := r.ctx.Err(); err != nil {
		return r.fail(phase, iter, errors.Join(ErrCancelled, err))
	}
	if err := r.checkOrder(phase); err != nil {
		return r.fail(phase, iter, err)
	}
	r.last = phase
	M, err := r.cctx.Wrap(raw, phase.Kind())
	if err != nil {
		return r.fail(phase, iter, err)
	}
	B.log.Debug("callback", zap.String("calc", r.calc), zap.Stringer("phase", phase), zap.Int("iteration", iter))
	ev := &Event{Calc: r.calc, Phase: phase, Iter: iter, Matrix: M.Copy()}
	switch phase {
	case OverlapReady:
		r.overlap = M
		if r.handlers.OverlapReady != nil {
			if err := r.handlers.OverlapReady(ev); err != nil {
				return r.fail(phase, iter, err)
			}
		}
	case DensityReady:
		r.density = M
		if r.handlers.DensityReady != nil {
			if err := r.handlers.DensityReady(ev); err != nil {
				return r.fail(phase, iter, err)
			}
		}
	case FockRequested:
		r.fock = M
		if r.handlers.FockRequested == nil {
			return nil, nil
		}
		F, err := r.handlers.FockRequested(ev)
		if err != nil {
			return r.fail(phase, iter, err)
		}
		if F == nil {
			return nil, nil
		}
		out, err := r.cctx.ToNative(F)
		if err != nil {
			return r.fail(phase, iter, err)
		}
		return &out, nil
	}
	return nil, nil
}

//result builds the Result of a finished calculation.
func (r *run) result(rep Report) (*Result, error) {
	res := &Result{Context: r.cctx, Overlap: r.overlap, Fock: r.fock, Density: r.density,
		Energy: rep.Energy, Converged: rep.Converged, Iterations: rep.Iterations}
	if rep.Fock != nil {
		F, err := r.cctx.Wrap(*rep.Fock, dmat.Fock)
		if err != nil {
			return nil, fmt.Errorf("bridge: final Fock matrix of %s: %w", r.calc, err)
		}
		res.Fock = F
	}
	if res.Overlap == nil || res.Density == nil {
		return nil, fmt.Errorf("%w: %s calculation finished without overlap or density", ErrPhaseOrder, r.calc)
	}
	return res, nil
}
