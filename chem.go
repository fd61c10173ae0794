/*
 * chem.go, part of pbembed.
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
/***Dedicated to the long life of the Ven. Khenpo Phuntzok Tenzin Rinpoche***/

package chem

import (
	"fmt"

	v3 "github.com/rmera/pbembed/v3"
)

/**Note: Many functions here panic instead of returning errors. This is because they are "fundamental"
 * functions. I considered that if something goes wrong here, the program is way-most likely wrong and should
 * crash. Most panics are related to trying to access out-of bounds fields**/

//Atom contains the information for one atom, except for the coordinates, which will be in a matrix.
type Atom struct {
	Symbol string
	Z      int     //atomic number, filled from the symbol if not given.
	Charge float64 //optional partial/formal charge
	Spin   int     //optional number of unpaired electrons on the atom
}

//Atom methods

//Copy returns a copy of the Atom object.
func (A *Atom) Copy() *Atom {
	if A == nil {
		panic("Attempted to copy a nil atom")
	}
	N := *A
	return &N
}

/*****System type***/

//System is an ordered set of atoms with their cartesian coordinates (in A), a total charge and
//a multiplicity. A System is immutable once built: every accessor returns copies, so
//a calculation can hold a read-only reference to it.
type System struct {
	atoms  []*Atom
	coords *v3.Matrix
	charge int
	multi  int
}

//NewSystem builds a System from the atoms and coordinates given. Both are copied.
//Atoms with Z==0 get their atomic number from the symbol. It returns error if the
//number of atoms and coordinates differ, or if a symbol is unknown and Z was not given.
func NewSystem(ats []*Atom, coords *v3.Matrix, charge, multi int) (*System, error) {
	if len(ats) == 0 || coords == nil {
		return nil, CError{"Supplied an empty atom list or nil coordinates", []string{"NewSystem"}}
	}
	if len(ats) != coords.NVecs() {
		return nil, CError{fmt.Sprintf("%d atoms but %d coordinates", len(ats), coords.NVecs()), []string{"NewSystem"}}
	}
	if multi < 1 {
		multi = 1
	}
	S := &System{atoms: make([]*Atom, len(ats)), coords: coords.Copy(), charge: charge, multi: multi}
	for i, at := range ats {
		if at == nil {
			return nil, CError{fmt.Sprintf("Atom %d is nil", i), []string{"NewSystem"}}
		}
		c := at.Copy()
		if c.Z == 0 {
			z, ok := symbolZ[c.Symbol]
			if !ok {
				return nil, CError{fmt.Sprintf("Unknown element %q for atom %d", c.Symbol, i), []string{"NewSystem"}}
			}
			c.Z = z
		}
		S.atoms[i] = c
	}
	return S, nil
}

//Len returns the number of atoms in the system.
func (S *System) Len() int {
	return len(S.atoms)
}

//Atom returns a copy of the Atom corresponding to the index i. Panics if
//out of range.
func (S *System) Atom(i int) *Atom {
	if i >= S.Len() || i < 0 {
		panic("System: Requested Atom out of bounds")
	}
	return S.atoms[i].Copy()
}

//Coords returns a copy of the coordinates of atom i, in A.
func (S *System) Coords(i int) [3]float64 {
	return S.coords.Vec(i)
}

//AllCoords returns a copy of the whole coordinate matrix.
func (S *System) AllCoords() *v3.Matrix {
	return S.coords.Copy()
}

//Charge gets the total charge of the system
func (S *System) Charge() int {
	return S.charge
}

//Multi returns the multiplicity of the system
func (S *System) Multi() int {
	return S.multi
}

//Electrons returns the number of electrons of the system, i.e.
//the sum of the atomic numbers minus the total charge.
func (S *System) Electrons() int {
	n := 0
	for _, at := range S.atoms {
		n += at.Z
	}
	return n - S.charge
}

//SomeAtoms, given a list of ints, returns a new System with the atoms
//with the corresponding indexes, in that order.
//The charge and multiplicity are set to those given.
func (S *System) SomeAtoms(atomlist []int, charge, multi int) (*System, error) {
	ats := make([]*Atom, 0, len(atomlist))
	for k, j := range atomlist {
		if j < 0 || j >= S.Len() {
			return nil, CError{fmt.Sprintf("Atom requested (Number: %d, value: %d) out of range", k, j), []string{"SomeAtoms"}}
		}
		ats = append(ats, S.atoms[j])
	}
	coords, err := v3.SomeVecs(S.coords, atomlist)
	if err != nil {
		return nil, errDecorate(err, "SomeAtoms")
	}
	return NewSystem(ats, coords, charge, multi)
}
