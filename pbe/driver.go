/*
 * driver.go, part of pbembed.
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
	"fmt"
	"math"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	chem "github.com/rmera/pbembed"
	"github.com/rmera/pbembed/bridge"
	"github.com/rmera/pbembed/dmat"
	"github.com/rmera/pbembed/part"
	"github.com/rmera/pbembed/proj"
	"go.uber.org/zap"
)

//Names of the two calculations, as given to the solver.
const (
	EnvironmentCalc = "environment"
	SubsystemCalc   = "subsystem"
)

//ErrBusy is returned when Run or Resume is called on a Driver that is already running.
var ErrBusy = errors.New("pbe: driver is already running")

//Driver runs projection-based embedding calculations with a solver, or with two:
//a low-level one for the whole system and a high-level one for the embedded subsystem.
type Driver struct {
	br       *bridge.Bridge
	hl       *bridge.Bridge
	high     bridge.Solver
	cfg      Config
	log      *zap.Logger
	metrics  *Metrics
	observer func(from, to Status)
	status   atomic.Int32
	running  atomic.Bool
}

//Option configures a Driver.
type Option func(*Driver)

//WithLogger sets the logger of the driver and of its bridge. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(D *Driver) {
		if l != nil {
			D.log = l
		}
	}
}

//WithMetrics sets the collectors the driver updates.
func WithMetrics(m *Metrics) Option {
	return func(D *Driver) { D.metrics = m }
}

//WithHighLevel sets the solver for the embedded subsystem calculation. It must use the
//same basis set as the low-level solver, which also needs to implement bridge.Evaluator
//and, if the embedding potential is on, bridge.FockBuilder.
func WithHighLevel(s bridge.Solver) Option {
	return func(D *Driver) { D.high = s }
}

//WithObserver sets a function called, from the goroutine running the driver,
//on every state transition.
func WithObserver(f func(from, to Status)) Option {
	return func(D *Driver) { D.observer = f }
}

//New returns a Driver that runs its calculations with the solver s. Unless a
//high-level solver is given, s also runs the embedded subsystem.
//The configuration is validated when a run starts.
func New(s bridge.Solver, cfg Config, opts ...Option) *Driver {
	D := &Driver{cfg: cfg, log: zap.NewNop()}
	for _, o := range opts {
		o(D)
	}
	D.br = bridge.New(s, bridge.WithLogger(D.log))
	D.hl = D.br
	if D.high != nil {
		D.hl = bridge.New(D.high, bridge.WithLogger(D.log.Named("high")))
	}
	D.log = D.log.Named("pbe")
	return D
}

//Bridge returns the bridge between the driver and its (low-level) solver.
func (D *Driver) Bridge() *bridge.Bridge { return D.br }

//HighLevel returns the bridge to the solver of the embedded subsystem. It is the same
//as Bridge unless a high-level solver was given.
func (D *Driver) HighLevel() *bridge.Bridge { return D.hl }

func (D *Driver) twoLevel() bool { return D.hl != D.br }

//Config returns the configuration of the driver.
func (D *Driver) Config() Config { return D.cfg }

//Status returns the current state of the driver.
func (D *Driver) Status() Status { return Status(D.status.Load()) }

//Run performs the embedding calculation on the system sys, and returns the final State.
//Errors are returned as *Failure.
func (D *Driver) Run(ctx context.Context, sys *chem.System) (*State, error) {
	return D.run(ctx, sys, nil)
}

//Resume continues an embedding calculation from a State with a split environment
//density, such as the Pending State of a Failure or a checkpoint. The environment
//data of st are used for the next outer iteration instead of running the environment
//calculation.
func (D *Driver) Resume(ctx context.Context, sys *chem.System, st *State) (*State, error) {
	if !st.HasEnvironment() {
		return nil, fmt.Errorf("%w: no environment data", ErrResume)
	}
	return D.run(ctx, sys, st)
}

func (D *Driver) run(ctx context.Context, sys *chem.System, resume *State) (*State, error) {
	if !D.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer D.running.Store(false)
	runID := uuid.NewString()
	E := &embedding{Driver: D, ctx: ctx, sys: sys, log: D.log.With(zap.String("run", runID))}
	E.committed = newState(runID)
	D.status.Store(int32(Init))
	D.metrics.transition(Init)
	if err := E.init(); err != nil {
		return nil, E.fail(err)
	}
	if resume != nil {
		if err := E.resume(resume); err != nil {
			return nil, E.fail(err)
		}
	}
	E.log.Info("embedding started", zap.Ints("active", E.committed.ActiveAtoms), zap.Int("active_orbitals", E.nact),
		zap.Int("nbasis", E.part.NBasis()), zap.String("environment", D.cfg.Environment), zap.Bool("high_level", D.twoLevel()))
	for {
		if E.committed.Iterations >= D.cfg.MaxOuterIterations {
			return nil, E.fail(&ConvergenceError{LastDelta: E.committed.LastDelta, Iterations: E.committed.Iterations})
		}
		iter := E.committed.Iterations + 1
		if E.pending == nil {
			if err := E.environment(); err != nil {
				return nil, E.fail(err)
			}
		}
		if err := E.subsystem(); err != nil {
			return nil, E.fail(err)
		}
		done, err := E.commit(iter)
		if err != nil {
			return nil, E.fail(err)
		}
		if done {
			break
		}
	}
	D.metrics.outcome(Converged)
	E.log.Info("embedding converged", zap.Int("iterations", E.committed.Iterations),
		zap.Float64("subsystem_energy", E.committed.SubsystemEnergy))
	return E.committed.Copy(), nil
}

//embedding is one run of a Driver.
type embedding struct {
	*Driver
	ctx        context.Context
	sys        *chem.System
	log        *zap.Logger
	part       *part.Partition
	basisAtoms []int
	envCtx     dmat.Context
	nact       int
	committed  *State
	pending    *State       //committed data plus the environment of the current iteration
	guess      *dmat.Matrix //environment guess for the next iteration
	havePrev   bool
}

func (E *embedding) transition(to Status) {
	from := Status(E.status.Swap(int32(to)))
	E.metrics.transition(to)
	E.log.Debug("transition", zap.Stringer("from", from), zap.Stringer("to", to))
	if E.observer != nil {
		E.observer(from, to)
	}
}

//fail moves the driver to Failed and builds the Failure.
func (E *embedding) fail(cause error) error {
	f := &Failure{Status: E.Status(), Cause: cause, State: E.committed.Copy()}
	f.State.Status = Failed
	if E.pending != nil {
		f.Pending = E.pending.Copy()
	}
	f.Decorate("pbe.Driver")
	E.transition(Failed)
	E.metrics.outcome(Failed)
	E.log.Error("embedding failed", zap.Stringer("state", f.Status), zap.Int("iterations", f.State.Iterations), zap.Error(cause))
	return f
}

func (E *embedding) envSpec() bridge.Spec {
	return bridge.Spec{Name: EnvironmentCalc, System: E.sys, MaxIterations: E.cfg.MaxSCFIterations}
}

//init validates the run and builds the partition.
func (E *embedding) init() error {
	if err := E.cfg.Validate(); err != nil {
		return err
	}
	if E.sys == nil {
		return fmt.Errorf("%w: no system", ErrConfig)
	}
	spec := E.envSpec()
	var err error
	E.envCtx, err = E.br.Context(spec)
	if err != nil {
		return err
	}
	if want := E.cfg.WorkingPrecision(); E.envCtx.Precision != want {
		return fmt.Errorf("%w: %s instead of %s", ErrPrecision, E.envCtx.Precision, want)
	}
	E.basisAtoms, err = E.br.BasisAtoms(spec)
	if err != nil {
		return err
	}
	if E.twoLevel() {
		if err := E.checkLevels(spec); err != nil {
			return err
		}
	}
	active, err := E.cfg.Selection(E.sys.Len())
	if err != nil {
		return err
	}
	E.part, err = part.New(E.sys, active, part.BasisMap(E.basisAtoms))
	if err != nil {
		return err
	}
	E.committed.ActiveAtoms = E.part.ActiveAtoms()
	E.committed.NAtoms = E.sys.Len()
	E.committed.HighLevel = E.twoLevel()
	electrons := -E.cfg.FragmentCharge
	for _, i := range E.part.ActiveAtoms() {
		electrons += E.sys.Atom(i).Z
	}
	if electrons <= 0 || electrons%2 != 0 {
		return fmt.Errorf("%w: %d electrons", ErrActiveElectrons, electrons)
	}
	E.nact = electrons / 2
	E.committed.NActive = E.nact
	E.committed.BasisAtoms = append([]int(nil), E.basisAtoms...)
	return nil
}

//checkLevels verifies that the high-level solver can be embedded in the low-level one.
func (E *embedding) checkLevels(spec bridge.Spec) error {
	hctx, err := E.hl.Context(spec)
	if err != nil {
		return err
	}
	if hctx.Precision != E.envCtx.Precision {
		return fmt.Errorf("%w: high-level precision %s, low-level %s", ErrPrecision, hctx.Precision, E.envCtx.Precision)
	}
	hb, err := E.hl.BasisAtoms(spec)
	if err != nil {
		return err
	}
	if !slices.Equal(hb, E.basisAtoms) {
		return fmt.Errorf("%w: %d high-level and %d low-level basis functions", ErrLevels, len(hb), len(E.basisAtoms))
	}
	low := E.br.Solver()
	if _, ok := low.(bridge.Evaluator); !ok {
		return fmt.Errorf("%w: the low-level solver can't evaluate the reference energy", ErrLevels)
	}
	if _, ok := low.(bridge.FockBuilder); E.cfg.EmbeddingPotential && !ok {
		return fmt.Errorf("%w: the low-level solver can't build the embedding potential", ErrLevels)
	}
	return nil
}

//resume takes the environment data (and previous results, if any) from st.
func (E *embedding) resume(st *State) error {
	if !slices.Equal(st.ActiveAtoms, E.committed.ActiveAtoms) {
		return fmt.Errorf("%w: active atoms %v, configured %v", ErrResume, st.ActiveAtoms, E.committed.ActiveAtoms)
	}
	if n, _ := st.Overlap.Dims(); n != E.part.NBasis() {
		return fmt.Errorf("%w: %d basis functions, system has %d", ErrResume, n, E.part.NBasis())
	}
	if st.NActive != 0 && st.NActive != E.nact {
		return fmt.Errorf("%w: %d active orbitals, expected %d", ErrResume, st.NActive, E.nact)
	}
	if st.BasisAtoms != nil && !slices.Equal(st.BasisAtoms, E.basisAtoms) {
		return fmt.Errorf("%w: basis functions are on different atoms", ErrResume)
	}
	C := st.Copy()
	C.RunID = E.committed.RunID
	C.NActive = E.nact
	C.NAtoms = E.sys.Len()
	C.HighLevel = E.twoLevel()
	C.BasisAtoms = append([]int(nil), E.basisAtoms...)
	C.Converged = false
	if C.SubsystemDensity == nil {
		C.LastDelta = math.Inf(1)
	}
	E.havePrev = C.SubsystemDensity != nil
	E.committed = C.Copy()
	E.committed.Status = Init
	C.Status = EnvConverged
	E.pending = C
	E.transition(EnvConverged)
	return nil
}

//calc runs one calculation through B with the handlers given.
func (E *embedding) calc(B *bridge.Bridge, spec bridge.Spec, h bridge.Handlers) (*bridge.Result, error) {
	if err := B.Register(h); err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := B.RunCalculation(E.ctx, spec)
	E.metrics.solverTime(spec.Name, start)
	if err != nil {
		return nil, err
	}
	if !res.Converged {
		return nil, fmt.Errorf("%w: %s calculation, %d iterations", ErrSCFNotConverged, spec.Name, res.Iterations)
	}
	E.log.Debug("calculation finished", zap.String("calc", spec.Name), zap.Int("iterations", res.Iterations), zap.Float64("energy", res.Energy))
	return res, nil
}

//environment runs the whole-system calculation and splits its density.
func (E *embedding) environment() error {
	if err := E.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	E.transition(EnvRunning)
	spec := E.envSpec()
	if E.guess != nil {
		raw, err := E.envCtx.ToNative(E.guess)
		if err != nil {
			return err
		}
		spec.Guess = &raw
	}
	res, err := E.calc(E.br, spec, bridge.Handlers{})
	if err != nil {
		return err
	}
	DA, DB, err := part.Split(res.Density, res.Overlap, E.part, E.nact)
	if err != nil {
		return err
	}
	p := E.committed.Copy()
	p.Status = EnvConverged
	p.Overlap = res.Overlap
	p.EnvironmentFock = res.Fock
	p.EnvironmentEnergy = res.Energy
	p.ActiveDensity = DA
	p.EnvironmentDensity = DB
	E.pending = p
	E.transition(EnvConverged)
	return nil
}

func (E *embedding) projection(p *State) (*dmat.Matrix, error) {
	if E.cfg.Projector == Huzinaga {
		return proj.Huzinaga(p.EnvironmentFock, p.EnvironmentDensity, p.Overlap)
	}
	return proj.LevelShift(p.EnvironmentDensity, p.Overlap, E.cfg.LevelShift)
}

//truncation returns the basis truncation for the subsystem calculation, or nil if
//the whole basis is used.
func (E *embedding) truncation(p *State) (*part.Truncation, error) {
	if E.cfg.TruncationThreshold <= 0 {
		return nil, nil
	}
	pops, err := part.Charges(p.ActiveDensity, p.Overlap, E.basisAtoms, E.sys.Len())
	if err != nil {
		return nil, err
	}
	keep := part.Select(pops, E.part.ActiveAtoms(), E.cfg.TruncationThreshold)
	T, err := part.NewTruncation(E.basisAtoms, keep)
	if err != nil {
		return nil, err
	}
	if T.Trivial() {
		return nil, nil
	}
	E.log.Debug("basis truncated", zap.Ints("atoms", keep), zap.Int("nbasis", T.NKept()))
	return T, nil
}

//subSpec returns the subsystem calculation: the active atoms with the fragment charge,
//and the environment atoms (all of them, or those kept by T) as ghosts.
func (E *embedding) subSpec(T *part.Truncation) (bridge.Spec, error) {
	var atoms []int
	if T != nil {
		atoms = T.Atoms()
	} else {
		atoms = make([]int, E.sys.Len())
		for i := range atoms {
			atoms[i] = i
		}
	}
	ghosts := E.part.EnvironmentAtoms()
	if T != nil {
		ghosts = T.Local(ghosts)
	}
	sys, err := E.sys.SomeAtoms(atoms, E.cfg.FragmentCharge, 1)
	if err != nil {
		return bridge.Spec{}, err
	}
	spec := bridge.Spec{Name: SubsystemCalc, System: sys, Ghosts: ghosts, MaxIterations: E.cfg.MaxSCFIterations}
	basis := E.part.BasisAtoms()
	if T != nil {
		kept := T.Basis()
		for k, i := range kept {
			kept[k] = basis[i]
		}
		basis = kept
	}
	bridges := []*bridge.Bridge{E.br}
	if E.twoLevel() {
		bridges = append(bridges, E.hl)
	}
	for _, B := range bridges {
		sub, err := B.BasisAtoms(spec)
		if err != nil {
			return spec, err
		}
		if len(sub) != len(basis) {
			return spec, fmt.Errorf("pbe: subsystem calculation has %d basis functions, expected %d", len(sub), len(basis))
		}
		for i, a := range sub {
			if atoms[a] != basis[i] {
				return spec, fmt.Errorf("pbe: basis function %d of the subsystem is on atom %d, expected %d", i, atoms[a], basis[i])
			}
		}
	}
	return spec, nil
}

//subsystem runs the embedded subsystem calculation, starting from the active density,
//with the high-level solver. The reference energy and the embedding potential come
//from the low-level one. The results are left in the pending State.
func (E *embedding) subsystem() error {
	if err := E.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	p := E.pending
	P, err := E.projection(p)
	if err != nil {
		return err
	}
	T, err := E.truncation(p)
	if err != nil {
		return err
	}
	shrink := func(M *dmat.Matrix) (*dmat.Matrix, error) {
		if T == nil {
			return M.Copy(), nil
		}
		return T.Shrink(M)
	}
	expand := func(M *dmat.Matrix) (*dmat.Matrix, error) {
		if T == nil || M == nil {
			return M, nil
		}
		return T.Expand(M)
	}
	DA, err := shrink(p.ActiveDensity)
	if err != nil {
		return err
	}
	Psub, err := shrink(P)
	if err != nil {
		return err
	}
	Fenv, err := shrink(p.EnvironmentFock)
	if err != nil {
		return err
	}
	spec, err := E.subSpec(T)
	if err != nil {
		return err
	}
	cctx, err := E.hl.Context(spec)
	if err != nil {
		return err
	}
	guess, err := cctx.ToNative(DA)
	if err != nil {
		return err
	}
	spec.Guess = &guess
	E.transition(SubRunning)
	corrected := true
	ref, err := E.br.Evaluate(E.ctx, spec, DA)
	if errors.Is(err, bridge.ErrNoEvaluator) {
		corrected = false
		E.log.Warn("solver can't evaluate the reference subsystem energy, the total energy will be uncorrected")
	} else if err != nil {
		return err
	}
	var v *dmat.Matrix
	if E.cfg.EmbeddingPotential && E.twoLevel() {
		Fll, err := E.br.FockAt(E.ctx, spec, DA)
		if err != nil {
			return err
		}
		V, err := dmat.Sub(Fenv, Fll)
		if err != nil {
			return err
		}
		v = V.As(dmat.Potential)
	}
	h := bridge.Handlers{FockRequested: func(ev *bridge.Event) (*dmat.Matrix, error) {
		//With one solver the first Fock matrix is built from the guess, so it gives the potential.
		if E.cfg.EmbeddingPotential && v == nil {
			V, err := dmat.Sub(Fenv, ev.Matrix)
			if err != nil {
				return nil, err
			}
			v = V.As(dmat.Potential)
		}
		F := ev.Matrix
		if v != nil {
			Fv, err := dmat.Add(F, v)
			if err != nil {
				return nil, err
			}
			F = Fv
		}
		Fp, err := dmat.Add(F, Psub)
		if err != nil {
			return nil, err
		}
		return Fp.As(dmat.Fock), nil
	}}
	res, err := E.calc(E.hl, spec, h)
	if err != nil {
		return err
	}
	Dt, err := expand(res.Density)
	if err != nil {
		return err
	}
	V, err := expand(v)
	if err != nil {
		return err
	}
	p.Projection = P
	p.Potential = V
	p.ReferenceEnergy = ref
	p.Corrected = corrected
	p.SubsystemDensity = Dt
	p.SubsystemEnergy = res.Energy
	p.KeptAtoms = nil
	if T != nil {
		p.KeptAtoms = T.Atoms()
	}
	return nil
}

//commit makes the pending State the committed one, and returns true if
//the embedding has converged.
func (E *embedding) commit(iter int) (bool, error) {
	p := E.pending
	var delta float64
	switch {
	case E.havePrev:
		delta = math.Abs(p.SubsystemEnergy - E.committed.SubsystemEnergy)
	case E.cfg.Environment == Frozen:
		delta = 0
	default:
		delta = math.Inf(1)
	}
	done := E.cfg.Environment == Frozen || (E.havePrev && delta < E.cfg.Threshold)
	p.Iterations = iter
	p.LastDelta = delta
	p.Converged = done
	p.Status = SubConverged
	E.committed = p
	E.pending = nil
	E.havePrev = true
	E.transition(SubConverged)
	E.metrics.iteration(p.SubsystemEnergy, delta)
	E.log.Info("outer iteration", zap.Int("iteration", iter), zap.Float64("subsystem_energy", p.SubsystemEnergy), zap.Float64("delta", delta))
	if done {
		p.Status = Converged
	} else {
		p.Status = Iterating
	}
	if E.cfg.Checkpoint != "" {
		if err := SaveState(E.cfg.Checkpoint, p); err != nil {
			E.log.Warn("checkpoint not written", zap.String("file", E.cfg.Checkpoint), zap.Error(err))
		}
	}
	if done {
		E.transition(Converged)
		return true, nil
	}
	guess, err := dmat.Add(p.SubsystemDensity, p.EnvironmentDensity)
	if err != nil {
		return false, err
	}
	E.guess = guess.As(dmat.Density)
	E.transition(Iterating)
	return false, nil
}
