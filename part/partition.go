/*
 * partition.go, part of pbembed.
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

package part

import (
	"fmt"
	"sort"
	"strings"

	chem "github.com/rmera/pbembed"
)

//InvalidSelectionError is returned for an active atom selection that can't
//define an embedding: empty, with indexes out of range or repeated, or covering
//every atom of the system.
type InvalidSelectionError struct {
	Index  int //offending atom index, -1 if the problem is not a particular index
	Reason string
	deco   []string
}

func (err *InvalidSelectionError) Error() string {
	if err.Index >= 0 {
		return fmt.Sprintf("invalid active atom selection: %s (atom %d)", err.Reason, err.Index)
	}
	return fmt.Sprintf("invalid active atom selection: %s", err.Reason)
}

//Decorate will add the dec string to the decoration slice of strings of the error,
//and return the resulting slice.
func (err *InvalidSelectionError) Decorate(dec string) []string {
	if dec == "" {
		return err.deco
	}
	err.deco = append(err.deco, dec)
	return err.deco
}

//Trace returns the decoration as a single string.
func (err *InvalidSelectionError) Trace() string {
	return strings.Join(err.deco, " <- ")
}

//Critical returns true, no calculation can be set up with the selection.
func (err *InvalidSelectionError) Critical() bool { return true }

func selErr(index int, reason string) *InvalidSelectionError {
	return &InvalidSelectionError{Index: index, Reason: reason, deco: []string{"part.New"}}
}

//Mapper gives the atom on which each basis function of a calculation is centered.
type Mapper interface {
	BasisAtoms() ([]int, error)
}

//BasisMap is a Mapper from an already known atom index for each basis function.
type BasisMap []int

//BasisAtoms returns a copy of the map.
func (B BasisMap) BasisAtoms() ([]int, error) {
	return append([]int(nil), B...), nil
}

//Partition splits the basis functions of a calculation into two disjoint sets that,
//together, cover all of them: those centered on active atoms and the rest.
//A Partition doesn't change after it is created.
type Partition struct {
	atoms   []int //active atoms
	natoms  int
	active  []int
	env     []int
	basisAt []int
}

//New returns the partition of the basis set of sys given by the active atoms.
//It fails with *InvalidSelectionError for an empty selection, an index out
//of range or repeated, or a selection with every atom in the system.
//The result depends only on the inputs, not on the order of active.
func New(sys *chem.System, active []int, m Mapper) (*Partition, error) {
	natoms := sys.Len()
	if len(active) == 0 {
		return nil, selErr(-1, "no active atoms")
	}
	seen := make(map[int]bool, len(active))
	for _, a := range active {
		if a < 0 || a >= natoms {
			return nil, selErr(a, fmt.Sprintf("index out of range [0,%d)", natoms))
		}
		if seen[a] {
			return nil, selErr(a, "repeated index")
		}
		seen[a] = true
	}
	if len(seen) == natoms {
		return nil, selErr(-1, "every atom is active, no environment left")
	}
	basis, err := m.BasisAtoms()
	if err != nil {
		return nil, fmt.Errorf("part.New: basis function map: %w", err)
	}
	if len(basis) == 0 {
		return nil, fmt.Errorf("part.New: empty basis function map")
	}
	P := &Partition{natoms: natoms, basisAt: basis}
	P.atoms = append([]int(nil), active...)
	sort.Ints(P.atoms)
	for i, at := range basis {
		if at < 0 || at >= natoms {
			return nil, fmt.Errorf("part.New: basis function %d on atom %d, system has %d atoms", i, at, natoms)
		}
		if seen[at] {
			P.active = append(P.active, i)
		} else {
			P.env = append(P.env, i)
		}
	}
	if len(P.active) == 0 {
		return nil, selErr(-1, "no basis functions on the active atoms")
	}
	if len(P.env) == 0 {
		return nil, selErr(-1, "no basis functions on the environment atoms")
	}
	return P, nil
}

//Active returns the indexes of the basis functions in the active region, in ascending order.
func (P *Partition) Active() []int { return append([]int(nil), P.active...) }

//Environment returns the indexes of the basis functions in the environment, in ascending order.
func (P *Partition) Environment() []int { return append([]int(nil), P.env...) }

//ActiveAtoms returns the indexes of the active atoms, in ascending order.
func (P *Partition) ActiveAtoms() []int { return append([]int(nil), P.atoms...) }

//EnvironmentAtoms returns the indexes of the atoms not in the active region, in ascending order.
func (P *Partition) EnvironmentAtoms() []int {
	ret := make([]int, 0, P.natoms-len(P.atoms))
	k := 0
	for i := 0; i < P.natoms; i++ {
		if k < len(P.atoms) && P.atoms[k] == i {
			k++
			continue
		}
		ret = append(ret, i)
	}
	return ret
}

//BasisAtoms returns the atom each basis function is centered on.
func (P *Partition) BasisAtoms() []int { return append([]int(nil), P.basisAt...) }

//NBasis returns the total number of basis functions.
func (P *Partition) NBasis() int { return len(P.basisAt) }

//NAtoms returns the number of atoms in the system.
func (P *Partition) NAtoms() int { return P.natoms }

//IsActiveAtom returns true if the atom i is in the active region.
func (P *Partition) IsActiveAtom(i int) bool {
	k := sort.SearchInts(P.atoms, i)
	return k < len(P.atoms) && P.atoms[k] == i
}

//MaskFromCount returns the region mask for a system of natoms atoms where the first n
//are active: 1 for active atoms, 2 for the environment.
func MaskFromCount(n, natoms int) ([]int, error) {
	if n <= 0 || n >= natoms {
		return nil, &InvalidSelectionError{Index: -1, Reason: fmt.Sprintf("%d active atoms, need between 1 and %d", n, natoms-1), deco: []string{"part.MaskFromCount"}}
	}
	mask := make([]int, natoms)
	for i := range mask {
		mask[i] = 2
		if i < n {
			mask[i] = 1
		}
	}
	return mask, nil
}

//ActiveFromMask returns the indexes of the atoms with label 1 in the region mask of
//a system of natoms atoms. Only the labels 1 (active) and 2 (environment) are accepted.
func ActiveFromMask(mask []int, natoms int) ([]int, error) {
	if len(mask) != natoms {
		return nil, &InvalidSelectionError{Index: -1, Reason: fmt.Sprintf("region mask for %d atoms, system has %d", len(mask), natoms), deco: []string{"part.ActiveFromMask"}}
	}
	var ret []int
	for i, m := range mask {
		switch m {
		case 1:
			ret = append(ret, i)
		case 2:
		default:
			return nil, &InvalidSelectionError{Index: i, Reason: fmt.Sprintf("region label %d, only 1 and 2 are allowed", m), deco: []string{"part.ActiveFromMask"}}
		}
	}
	return ret, nil
}
