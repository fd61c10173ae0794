/*
 * solver.go, part of pbembed.
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
	chem "github.com/rmera/pbembed"
	"github.com/rmera/pbembed/dmat"
)

//Phase identifies the point of the SCF cycle at which a solver calls back.
type Phase int

const (
	OverlapReady  Phase = iota //once, before the first Fock matrix is requested
	FockRequested              //every iteration, the returned buffer replaces the Fock matrix
	DensityReady               //every iteration, after the new density is built
)

//Phases lists the callback slots of a Solver, in the order they are called in one SCF iteration.
var Phases = []Phase{OverlapReady, FockRequested, DensityReady}

func (P Phase) String() string {
	switch P {
	case OverlapReady:
		return "overlap_ready"
	case FockRequested:
		return "fock_requested"
	case DensityReady:
		return "density_ready"
	}
	return "unknown_phase"
}

//Kind returns the kind of the matrix handed over at this phase.
func (P Phase) Kind() dmat.Kind {
	switch P {
	case OverlapReady:
		return dmat.Overlap
	case FockRequested:
		return dmat.Fock
	}
	return dmat.Density
}

//NativeCallback is the function a solver calls at a given phase. iter is the
//solver's SCF iteration, starting from 1 (0 for the overlap). The buffer raw belongs
//to the solver and may be reused as soon as the callback returns. A non-nil
//returned buffer replaces the solver's matrix (only honored for FockRequested).
//A non-nil error means the solver must stop its SCF and return.
type NativeCallback func(iter int, raw dmat.Raw) (*dmat.Raw, error)

//Spec is what a solver needs to run one calculation.
type Spec struct {
	Name   string       //label for logs and errors, such as "environment" or "subsystem".
	System *chem.System //atoms, coordinates, total charge and multiplicity.
	//Indexes of atoms of System that contribute only basis functions, with no nucleus
	//or electrons.
	Ghosts        []int
	Guess         *dmat.Raw //initial density, in the solver's own convention. Optional.
	MaxIterations int       //SCF iterations. 0 lets the solver choose.
}

//Report is the solver's account of a finished calculation.
type Report struct {
	Energy     float64
	Converged  bool
	Iterations int
	//Native Fock matrix built from the final density, if the solver provides it.
	Fock *dmat.Raw
}

//Solver is the contract a QM program has to fulfill to be driven by a Bridge.
//A Solver is not reentrant: it runs one calculation at a time and calls the registered
//callbacks synchronously from within Run.
type Solver interface {
	//Context returns the matrix convention the solver will use for the calculation.
	Context(spec Spec) (dmat.Context, error)

	//BasisAtoms returns, for each basis function of the calculation, the index
	//of the atom it is centered on. It must be available before any calculation runs.
	BasisAtoms(spec Spec) ([]int, error)

	//SetCallback installs cb in the slot for phase. A nil cb empties the slot.
	SetCallback(phase Phase, cb NativeCallback)

	//Run performs the SCF calculation and blocks until it converges, fails
	//or reaches the iteration cap.
	Run(spec Spec) (Report, error)
}

//Evaluator is implemented by solvers that can compute the energy of a given density
//without running the SCF.
type Evaluator interface {
	EnergyAt(spec Spec, density dmat.Raw) (float64, error)
}

//FockBuilder is implemented by solvers that can build the Fock matrix of a given
//density without running the SCF.
type FockBuilder interface {
	FockAt(spec Spec, density dmat.Raw) (dmat.Raw, error)
}
