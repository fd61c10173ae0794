/*
 * assemble.go, part of pbembed.
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
	"slices"

	"github.com/rmera/pbembed/dmat"
	"github.com/rmera/pbembed/part"
	"github.com/rmera/pbembed/proj"
)

//Result contains the final quantities of an embedding run. Energies are in Hartree.
type Result struct {
	TotalEnergy       float64
	SubsystemEnergy   float64 //energy of the embedded subsystem density, without embedding terms
	ReferenceEnergy   float64 //subsystem energy of the active part of the whole-system density
	EnvironmentEnergy float64 //energy of the whole-system calculation
	PotentialEnergy   float64 //tr((D-DA)v), D the embedded density, DA the active density
	ProjectionEnergy  float64 //tr(D P), which vanishes for an exact projection

	ActivePopulation      float64
	EnvironmentPopulation float64
	ActiveCharges         []float64 //Mulliken population of each of the NAtoms atoms, nil if the State lacks BasisAtoms
	EnvironmentCharges    []float64
	SubsystemDensity      *dmat.Matrix
	EnvironmentDensity    *dmat.Matrix

	Corrected  bool
	Converged  bool
	Iterations int
}

//Assemble computes the embedded total energy from a converged or failed State:
//
//	E = Esub[D] - Esub[DA] + Eenv + tr((D-DA)v) + tr(D P)
//
//where D is the embedded subsystem density, DA the active density, v the embedding
//potential and P the projection. With a high-level solver, Esub[D] is its energy and
//Esub[DA], Eenv and v come from the low-level one. If the reference energy Esub[DA] is not available,
//E = Esub[D] + tr(D P) and Result.Corrected is false.
func Assemble(st *State) (*Result, error) {
	if st == nil {
		return nil, &IncompleteStateError{Status: Init}
	}
	if !st.Status.Terminal() || !st.HasSubsystem() {
		err := &IncompleteStateError{Status: st.Status}
		err.Decorate("Assemble")
		return nil, err
	}
	R := &Result{
		SubsystemEnergy:    st.SubsystemEnergy,
		ReferenceEnergy:    st.ReferenceEnergy,
		EnvironmentEnergy:  st.EnvironmentEnergy,
		SubsystemDensity:   st.SubsystemDensity.Copy(),
		EnvironmentDensity: st.EnvironmentDensity.Copy(),
		Corrected:          st.Corrected,
		Converged:          st.Converged,
		Iterations:         st.Iterations,
	}
	var err error
	R.ProjectionEnergy, err = dmat.TraceProduct(st.SubsystemDensity, st.Projection)
	if err != nil {
		return nil, err
	}
	if st.Potential != nil {
		diff, err := dmat.Sub(st.SubsystemDensity, st.ActiveDensity)
		if err != nil {
			return nil, err
		}
		R.PotentialEnergy, err = dmat.TraceProduct(diff, st.Potential)
		if err != nil {
			return nil, err
		}
	}
	if st.Corrected {
		R.TotalEnergy = st.SubsystemEnergy - st.ReferenceEnergy + st.EnvironmentEnergy + R.PotentialEnergy + R.ProjectionEnergy
	} else {
		R.TotalEnergy = st.SubsystemEnergy + R.ProjectionEnergy
	}
	if R.ActivePopulation, err = proj.Population(st.Overlap, st.SubsystemDensity); err != nil {
		return nil, err
	}
	if R.EnvironmentPopulation, err = proj.Population(st.Overlap, st.EnvironmentDensity); err != nil {
		return nil, err
	}
	if len(st.BasisAtoms) > 0 {
		//States built by hand may lack NAtoms.
		natoms := max(st.NAtoms, slices.Max(st.BasisAtoms)+1)
		if R.ActiveCharges, err = part.Charges(st.SubsystemDensity, st.Overlap, st.BasisAtoms, natoms); err != nil {
			return nil, err
		}
		if R.EnvironmentCharges, err = part.Charges(st.EnvironmentDensity, st.Overlap, st.BasisAtoms, natoms); err != nil {
			return nil, err
		}
	}
	return R, nil
}
