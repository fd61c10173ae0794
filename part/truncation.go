/*
 * truncation.go, part of pbembed.
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

	"github.com/rmera/pbembed/dmat"
)

//Truncation maps matrices between a full basis set and the smaller basis set of
//the atoms kept in a calculation.
type Truncation struct {
	nfull int
	atoms []int //kept atoms, ascending
	basis []int //kept basis functions, ascending
}

//NewTruncation returns the truncation of the basis described by basisAtoms
//(the atom of each basis function) to the functions centered on the atoms in keep.
func NewTruncation(basisAtoms []int, keep []int) (*Truncation, error) {
	if len(keep) == 0 {
		return nil, fmt.Errorf("part.NewTruncation: no atoms to keep")
	}
	T := &Truncation{nfull: len(basisAtoms), atoms: append([]int(nil), keep...)}
	sort.Ints(T.atoms)
	kept := make(map[int]bool, len(keep))
	for _, a := range keep {
		kept[a] = true
	}
	for i, at := range basisAtoms {
		if kept[at] {
			T.basis = append(T.basis, i)
		}
	}
	if len(T.basis) == 0 {
		return nil, fmt.Errorf("part.NewTruncation: the kept atoms have no basis functions")
	}
	return T, nil
}

//Atoms returns the kept atoms, in ascending order.
func (T *Truncation) Atoms() []int { return append([]int(nil), T.atoms...) }

//Basis returns the kept basis functions, in ascending order.
func (T *Truncation) Basis() []int { return append([]int(nil), T.basis...) }

//NFull returns the size of the full basis.
func (T *Truncation) NFull() int { return T.nfull }

//NKept returns the size of the truncated basis.
func (T *Truncation) NKept() int { return len(T.basis) }

//Trivial returns true if nothing is removed.
func (T *Truncation) Trivial() bool { return len(T.basis) == T.nfull }

//Local returns the positions, among the kept atoms, of the atoms given.
//Atoms that are not kept are skipped.
func (T *Truncation) Local(atoms []int) []int {
	var ret []int
	for _, a := range atoms {
		k := sort.SearchInts(T.atoms, a)
		if k < len(T.atoms) && T.atoms[k] == a {
			ret = append(ret, k)
		}
	}
	return ret
}

//Shrink returns the block of the full-basis matrix M on the kept basis functions.
func (T *Truncation) Shrink(M *dmat.Matrix) (*dmat.Matrix, error) {
	if r, c := M.Dims(); r != T.nfull || c != T.nfull {
		return nil, fmt.Errorf("part.Shrink: %dx%d matrix, full basis has %d functions", r, c, T.nfull)
	}
	return dmat.Block(M, T.basis, T.basis)
}

//Expand returns the full-basis matrix with the truncated-basis matrix M in the block of the
//kept basis functions, and zeros elsewhere.
func (T *Truncation) Expand(M *dmat.Matrix) (*dmat.Matrix, error) {
	return dmat.Scatter(M, T.nfull, T.nfull, T.basis, T.basis)
}
