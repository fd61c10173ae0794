/*
 * rhf.go, part of pbembed.
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

package qm

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	chem "github.com/rmera/pbembed"
	"github.com/rmera/pbembed/bridge"
	"github.com/rmera/pbembed/dmat"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

//ErrBusy is returned when a calculation is requested while another is running.
var ErrBusy = errors.New("qm: a calculation is already running")

//RHF is a restricted Hartree-Fock program. It implements bridge.Solver, bridge.Evaluator
//and bridge.FockBuilder. With the method "Hartree" the exchange term is dropped, which
//gives a second, cheaper, level of theory over the same basis.
//
//In each SCF iteration it builds the Fock matrix from the current density, calls the
//fock_requested callback (which may replace it), diagonalizes the resulting matrix and
//calls density_ready with the new density. The overlap is handed over once, before the
//first iteration. The energy reported is always the one of the unmodified Hartree-Fock
//functional of the method, evaluated at the final density, as is the Fock matrix in the report.
type RHF struct {
	calc    Calc
	log     *zap.Logger
	cbs     [3]bridge.NativeCallback
	running atomic.Bool
}

//Option configures an RHF program.
type Option func(*RHF)

//WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(R *RHF) {
		if l != nil {
			R.log = l
		}
	}
}

//NewRHF returns an RHF program with the settings in calc. A nil calc means
//the default settings. Zero values in calc are replaced by the defaults.
func NewRHF(calc *Calc, opts ...Option) *RHF {
	var def Calc
	def.SetDefaults()
	R := &RHF{calc: def, log: zap.NewNop()}
	if calc != nil {
		R.calc = *calc
		if R.calc.Method == "" {
			R.calc.Method = def.Method
		}
		if R.calc.Basis == "" {
			R.calc.Basis = def.Basis
		}
		if R.calc.SCFConvergence <= 0 {
			R.calc.SCFConvergence = def.SCFConvergence
		}
		if R.calc.DensityConvergence <= 0 {
			R.calc.DensityConvergence = def.DensityConvergence
		}
		if R.calc.MaxIterations <= 0 {
			R.calc.MaxIterations = def.MaxIterations
		}
		if R.calc.DIISVectors <= 0 {
			R.calc.DIISVectors = def.DIISVectors
		}
	}
	for _, o := range opts {
		o(R)
	}
	R.log = R.log.Named("rhf")
	return R
}

//Calc returns a copy of the settings of the program.
func (R *RHF) Calc() Calc { return R.calc }

//SetCallback installs cb in the slot for the phase. A nil cb empties the slot.
func (R *RHF) SetCallback(phase bridge.Phase, cb bridge.NativeCallback) {
	if phase < 0 || int(phase) >= len(R.cbs) {
		panic(fmt.Sprintf("qm: invalid callback phase %d", phase))
	}
	R.cbs[phase] = cb
}

//Context returns the matrix convention used for the calculation.
func (R *RHF) Context(spec bridge.Spec) (dmat.Context, error) {
	if spec.System == nil {
		return dmat.Context{}, fmt.Errorf("qm: no system for calculation %s", spec.Name)
	}
	basis, err := buildBasis(R.calc.Basis, spec.System)
	if err != nil {
		return dmat.Context{}, err
	}
	return R.context(spec.Name, len(basis)), nil
}

func (R *RHF) context(name string, n int) dmat.Context {
	return dmat.Context{Name: name, NBasis: n, Layout: R.calc.Layout, Storage: R.calc.Storage, Precision: R.calc.Precision}
}

//BasisAtoms returns the atom each basis function is centered on.
func (R *RHF) BasisAtoms(spec bridge.Spec) ([]int, error) {
	if spec.System == nil {
		return nil, fmt.Errorf("qm: no system for calculation %s", spec.Name)
	}
	basis, err := buildBasis(R.calc.Basis, spec.System)
	if err != nil {
		return nil, err
	}
	ret := make([]int, len(basis))
	for i, f := range basis {
		ret[i] = f.atom
	}
	return ret, nil
}

//setup contains what is needed to run a calculation
type setup struct {
	ints *integrals
	nocc int
	ctx  dmat.Context
}

func (R *RHF) setup(spec bridge.Spec) (*setup, error) {
	S := spec.System
	if S == nil {
		return nil, fmt.Errorf("qm: no system for calculation %s", spec.Name)
	}
	kx, err := exchange(R.calc.Method)
	if err != nil {
		return nil, err
	}
	if S.Multi() != 1 {
		return nil, fmt.Errorf("%w: multiplicity %d", ErrOpenShell, S.Multi())
	}
	ghost := make(map[int]bool, len(spec.Ghosts))
	for _, g := range spec.Ghosts {
		if g < 0 || g >= S.Len() {
			return nil, fmt.Errorf("qm: ghost atom %d out of range", g)
		}
		ghost[g] = true
	}
	basis, err := buildBasis(R.calc.Basis, S)
	if err != nil {
		return nil, err
	}
	var nuclei []nucleus
	electrons := -S.Charge()
	for i := 0; i < S.Len(); i++ {
		if ghost[i] {
			continue
		}
		at := S.Atom(i)
		c := S.Coords(i)
		for j := range c {
			c[j] /= chem.Bohr
		}
		nuclei = append(nuclei, nucleus{z: float64(at.Z), center: c})
		electrons += at.Z
	}
	if electrons < 0 || electrons%2 != 0 {
		return nil, fmt.Errorf("%w: %d electrons", ErrOpenShell, electrons)
	}
	if electrons/2 > len(basis) {
		return nil, fmt.Errorf("qm: %d occupied orbitals but only %d basis functions", electrons/2, len(basis))
	}
	return &setup{ints: computeIntegrals(basis, nuclei, kx), nocc: electrons / 2, ctx: R.context(spec.Name, len(basis))}, nil
}

//callback calls the callback of the phase, if any, with M in native format.
func (R *RHF) callback(phase bridge.Phase, iter int, ctx dmat.Context, kind dmat.Kind, M mat.Matrix) (*dmat.Raw, error) {
	cb := R.cbs[phase]
	if cb == nil {
		return nil, nil
	}
	raw, err := ctx.ToNative(dmat.FromDense(kind, M, nil))
	if err != nil {
		return nil, err
	}
	out, err := cb(iter, raw)
	if err != nil {
		return nil, fmt.Errorf("qm: %s callback, iteration %d: %w", phase, iter, err)
	}
	return out, nil
}

//density diagonalizes F in the orthogonal basis given by X, and returns the closed-shell
//density of the nocc lowest orbitals.
func density(F mat.Matrix, X *mat.Dense, nocc int) (*mat.Dense, error) {
	n, _ := F.Dims()
	Fp := mat.NewDense(n, n, nil)
	Fp.Product(X.T(), F, X)
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, (Fp.At(i, j)+Fp.At(j, i))/2)
		}
	}
	var es mat.EigenSym
	if ok := es.Factorize(sym, true); !ok {
		return nil, fmt.Errorf("qm: Fock matrix diagonalization failed")
	}
	Cp := mat.NewDense(n, n, nil)
	es.VectorsTo(Cp)
	C := mat.NewDense(n, n, nil)
	C.Mul(X, Cp)
	occ := C.Slice(0, n, 0, nocc)
	D := mat.NewDense(n, n, nil)
	D.Mul(occ, occ.T())
	D.Scale(2, D)
	return D, nil
}

func rmsDiff(A, B *mat.Dense) float64 {
	r, c := A.Dims()
	var s float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d := A.At(i, j) - B.At(i, j)
			s += d * d
		}
	}
	return math.Sqrt(s / float64(r*c))
}

//Run performs the SCF calculation.
func (R *RHF) Run(spec bridge.Spec) (bridge.Report, error) {
	if !R.running.CompareAndSwap(false, true) {
		return bridge.Report{}, ErrBusy
	}
	defer R.running.Store(false)
	st, err := R.setup(spec)
	if err != nil {
		return bridge.Report{}, err
	}
	I := st.ints
	n := I.n
	Smat := dmat.FromDense(dmat.Overlap, I.s, nil)
	Xm, err := dmat.SymPow(dmat.Overlap, Smat, -0.5)
	if err != nil {
		return bridge.Report{}, fmt.Errorf("qm: basis set is linearly dependent: %w", err)
	}
	X := Xm.Re()
	if _, err := R.callback(bridge.OverlapReady, 0, st.ctx, dmat.Overlap, I.s); err != nil {
		return bridge.Report{}, err
	}
	D := mat.NewDense(n, n, nil)
	if spec.Guess != nil {
		G, err := st.ctx.Wrap(*spec.Guess, dmat.Density)
		if err != nil {
			return bridge.Report{}, fmt.Errorf("qm: initial guess: %w", err)
		}
		D = G.Re()
	}
	maxit := R.calc.MaxIterations
	if spec.MaxIterations > 0 {
		maxit = spec.MaxIterations
	}
	var acc *diis
	if R.calc.DIIS {
		acc = newDIIS(R.calc.DIISVectors)
	}
	var eprev float64
	converged := false
	it := 0
	for it = 1; it <= maxit; it++ {
		F := I.fock(D)
		E := I.energy(D, F)
		out, err := R.callback(bridge.FockRequested, it, st.ctx, dmat.Fock, F)
		if err != nil {
			return bridge.Report{}, err
		}
		if out != nil {
			Fm, err := st.ctx.Wrap(*out, dmat.Fock)
			if err != nil {
				return bridge.Report{}, fmt.Errorf("qm: Fock matrix from callback, iteration %d: %w", it, err)
			}
			F = Fm.Re()
		}
		//From the core guess the first commutator is zero, so DIIS would stick to it.
		if acc != nil && (it > 1 || spec.Guess != nil) {
			acc.push(F, commutator(F, D, I.s))
			F = acc.extrapolate()
		}
		Dn, err := density(F, X, st.nocc)
		if err != nil {
			return bridge.Report{}, err
		}
		if _, err := R.callback(bridge.DensityReady, it, st.ctx, dmat.Density, Dn); err != nil {
			return bridge.Report{}, err
		}
		rms := rmsDiff(Dn, D)
		D = Dn
		R.log.Debug("SCF iteration", zap.String("calc", spec.Name), zap.Int("iteration", it), zap.Float64("energy", E), zap.Float64("rms", rms))
		if it > 1 && math.Abs(E-eprev) < R.calc.SCFConvergence && rms < R.calc.DensityConvergence {
			converged = true
			break
		}
		eprev = E
	}
	if it > maxit {
		it = maxit
	}
	F := I.fock(D)
	rep := bridge.Report{Energy: I.energy(D, F), Converged: converged, Iterations: it}
	fraw, err := st.ctx.ToNative(dmat.FromDense(dmat.Fock, F, nil))
	if err != nil {
		return bridge.Report{}, err
	}
	rep.Fock = &fraw
	R.log.Debug("SCF finished", zap.String("calc", spec.Name), zap.Bool("converged", converged), zap.Float64("energy", rep.Energy))
	return rep, nil
}

//EnergyAt returns the energy of the given density, without running the SCF.
func (R *RHF) EnergyAt(spec bridge.Spec, density dmat.Raw) (float64, error) {
	st, err := R.setup(spec)
	if err != nil {
		return 0, err
	}
	D, err := st.ctx.Wrap(density, dmat.Density)
	if err != nil {
		return 0, err
	}
	d := D.Re()
	return st.ints.energy(d, st.ints.fock(d)), nil
}

//FockAt returns the Fock matrix built from the given density, without running the SCF.
func (R *RHF) FockAt(spec bridge.Spec, density dmat.Raw) (dmat.Raw, error) {
	st, err := R.setup(spec)
	if err != nil {
		return dmat.Raw{}, err
	}
	D, err := st.ctx.Wrap(density, dmat.Density)
	if err != nil {
		return dmat.Raw{}, err
	}
	return st.ctx.ToNative(dmat.FromDense(dmat.Fock, st.ints.fock(D.Re()), nil))
}
