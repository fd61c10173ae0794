/*
 * split.go, part of pbembed.
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
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rmera/pbembed/dmat"
	"gonum.org/v1/gonum/mat"
)

//ErrSplit is returned (wrapped) when a density can't be divided between the regions.
var ErrSplit = errors.New("part: can't split density")

//occThresh separates occupied from virtual eigenvalues of the orthogonalised, halved density.
const occThresh = 0.5

//Split divides the closed-shell density D (with overlap S) into the density of the nact
//doubly occupied orbitals that lie most on the active basis functions of P, and the density
//of the remaining occupied orbitals. DA+DB = D.
//
//The occupied space is obtained in the Lowdin-orthogonalised basis, projected on the active
//basis functions, and rotated with the singular value decomposition of that projection.
//The active orbitals are the nact with the largest singular values.
func Split(D, S *dmat.Matrix, P *Partition, nact int) (DA, DB *dmat.Matrix, err error) {
	n, _ := D.Dims()
	if sn, _ := S.Dims(); sn != n || n != P.NBasis() {
		return nil, nil, fmt.Errorf("%w: density, overlap and partition have %d, %d and %d basis functions", ErrSplit, n, sn, P.NBasis())
	}
	shalf, err := dmat.SymPow(dmat.Overlap, S, 0.5)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: overlap: %w", ErrSplit, err)
	}
	sinvhalf, err := dmat.SymPow(dmat.Overlap, S, -0.5)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: overlap: %w", ErrSplit, err)
	}
	M, err := dmat.Product(dmat.Density, shalf, D, shalf)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrSplit, err)
	}
	vals, vecs, err := dmat.Eigen(dmat.Symmetrize(dmat.Scale(0.5, M)))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: density: %w", ErrSplit, err)
	}
	var occ []int
	for i := len(vals) - 1; i >= 0; i-- {
		if vals[i] > occThresh {
			occ = append(occ, i)
		}
	}
	nocc := len(occ)
	if nact <= 0 || nact > nocc {
		return nil, nil, fmt.Errorf("%w: %d active orbitals requested, %d occupied", ErrSplit, nact, nocc)
	}
	X := mat.NewDense(n, nocc, nil)
	for k, col := range occ {
		for i := 0; i < n; i++ {
			X.Set(i, k, vecs.At(i, col))
		}
	}
	act := P.Active()
	XA := mat.NewDense(len(act), nocc, nil)
	for k, i := range act {
		for j := 0; j < nocc; j++ {
			XA.Set(k, j, X.At(i, j))
		}
	}
	var svd mat.SVD
	if ok := svd.Factorize(XA, mat.SVDFull); !ok {
		return nil, nil, fmt.Errorf("%w: SVD of the active projection failed", ErrSplit)
	}
	var V mat.Dense
	svd.VTo(&V)
	//Rotated occupied orbitals. Singular values come in decreasing order, so the
	//first nact columns are the active ones.
	Y := mat.NewDense(n, nocc, nil)
	Y.Mul(X, &V)
	YA := Y.Slice(0, n, 0, nact)
	PA := mat.NewDense(n, n, nil)
	PA.Mul(YA, YA.T())
	PA.Scale(2, PA)
	DA, err = dmat.Product(dmat.Density, sinvhalf, dmat.FromDense(dmat.Density, PA, nil), sinvhalf)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrSplit, err)
	}
	DA = dmat.Symmetrize(DA)
	DB, err = dmat.Sub(D.As(dmat.Density), DA)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrSplit, err)
	}
	return DA, DB, nil
}

//Charges returns the Mulliken population of each of the natoms atoms, for the density D and the
//overlap S. basisAtoms gives the atom of each basis function.
func Charges(D, S *dmat.Matrix, basisAtoms []int, natoms int) ([]float64, error) {
	DS, err := dmat.Product(dmat.Density, D, S)
	if err != nil {
		return nil, err
	}
	n, _ := DS.Dims()
	if len(basisAtoms) != n {
		return nil, fmt.Errorf("part.Charges: %d basis functions in the map, %d in the density", len(basisAtoms), n)
	}
	pops := make([]float64, natoms)
	for i, at := range basisAtoms {
		if at < 0 || at >= natoms {
			return nil, fmt.Errorf("part.Charges: basis function %d on atom %d, system has %d atoms", i, at, natoms)
		}
		v, _ := DS.At(i, i)
		pops[at] += v
	}
	return pops, nil
}

//Select returns, in ascending order, the active atoms plus every other atom whose
//population (in absolute value) is at least thresh.
func Select(pops []float64, active []int, thresh float64) []int {
	keep := make(map[int]bool, len(pops))
	for _, a := range active {
		keep[a] = true
	}
	for i, q := range pops {
		if math.Abs(q) >= thresh {
			keep[i] = true
		}
	}
	ret := make([]int, 0, len(keep))
	for i := range keep {
		ret = append(ret, i)
	}
	sort.Ints(ret)
	return ret
}
