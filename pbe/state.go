/*
 * state.go, part of pbembed.
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
	"math"
	"strings"

	"github.com/rmera/pbembed/dmat"
)

//Status is a state of the embedding state machine.
type Status int

const (
	Init Status = iota
	EnvRunning
	EnvConverged
	SubRunning
	SubConverged
	Iterating
	Converged
	Failed
)

var statusNames = [...]string{"init", "env_running", "env_converged", "sub_running", "sub_converged", "iterating", "converged", "failed"}

func (S Status) String() string {
	if S < 0 || int(S) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[S]
}

//ParseStatus returns the Status named s, and false if there is none.
func ParseStatus(s string) (Status, bool) {
	for i, n := range statusNames {
		if strings.EqualFold(n, s) {
			return Status(i), true
		}
	}
	return Init, false
}

//Terminal returns true for Converged and Failed.
func (S Status) Terminal() bool { return S == Converged || S == Failed }

//State is the data of an embedding run, as of the last committed outer iteration.
//All matrices are in the basis of the whole system. The Driver owns the State
//it is working on: callers get copies.
type State struct {
	RunID       string
	Status      Status
	ActiveAtoms []int
	NActive     int   //doubly occupied active orbitals
	NAtoms      int   //atoms in the system
	BasisAtoms  []int //atom of each basis function
	HighLevel   bool  //the subsystem was computed with a high-level solver

	Overlap            *dmat.Matrix
	EnvironmentFock    *dmat.Matrix //Fock matrix of the whole-system calculation
	EnvironmentEnergy  float64
	ActiveDensity      *dmat.Matrix //active part of the whole-system density
	EnvironmentDensity *dmat.Matrix //environment part of the whole-system density
	Projection         *dmat.Matrix
	Potential          *dmat.Matrix //embedding potential, nil if disabled

	ReferenceEnergy  float64 //subsystem energy of ActiveDensity, at the low level
	Corrected        bool    //false if ReferenceEnergy could not be obtained
	SubsystemDensity *dmat.Matrix
	SubsystemEnergy  float64
	KeptAtoms        []int //atoms in the subsystem calculation, nil if the basis was not truncated

	Iterations int
	Converged  bool
	LastDelta  float64
}

func newState(runID string) *State {
	return &State{RunID: runID, Status: Init, LastDelta: math.Inf(1)}
}

func copyMatrix(M *dmat.Matrix) *dmat.Matrix {
	if M == nil {
		return nil
	}
	return M.Copy()
}

func copyInts(s []int) []int {
	if s == nil {
		return nil
	}
	return append([]int(nil), s...)
}

//Copy returns a deep copy of the State.
func (S *State) Copy() *State {
	if S == nil {
		return nil
	}
	N := *S
	N.ActiveAtoms = copyInts(S.ActiveAtoms)
	N.KeptAtoms = copyInts(S.KeptAtoms)
	N.BasisAtoms = copyInts(S.BasisAtoms)
	N.Overlap = copyMatrix(S.Overlap)
	N.EnvironmentFock = copyMatrix(S.EnvironmentFock)
	N.ActiveDensity = copyMatrix(S.ActiveDensity)
	N.EnvironmentDensity = copyMatrix(S.EnvironmentDensity)
	N.Projection = copyMatrix(S.Projection)
	N.Potential = copyMatrix(S.Potential)
	N.SubsystemDensity = copyMatrix(S.SubsystemDensity)
	return &N
}

//HasEnvironment returns true if the State holds a split environment density.
func (S *State) HasEnvironment() bool {
	return S != nil && S.Overlap != nil && S.EnvironmentFock != nil && S.ActiveDensity != nil && S.EnvironmentDensity != nil
}

//HasSubsystem returns true if the State holds a finished subsystem calculation.
func (S *State) HasSubsystem() bool {
	return S.HasEnvironment() && S.SubsystemDensity != nil && S.Projection != nil
}
