/*
 * diis.go, part of pbembed.
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
	"gonum.org/v1/gonum/mat"
)

//diis keeps the last Fock matrices and their commutator errors FDS-SDF, and
//extrapolates a new Fock matrix from them.
type diis struct {
	max   int
	focks []*mat.Dense
	errs  []*mat.Dense
}

func newDIIS(max int) *diis {
	if max < 2 {
		max = 2
	}
	return &diis{max: max}
}

//commutator returns FDS-SDF.
func commutator(F, D, S mat.Matrix) *mat.Dense {
	n, _ := F.Dims()
	FDS := mat.NewDense(n, n, nil)
	FDS.Product(F, D, S)
	SDF := mat.NewDense(n, n, nil)
	SDF.Product(S, D, F)
	FDS.Sub(FDS, SDF)
	return FDS
}

func (d *diis) push(F, e *mat.Dense) {
	d.focks = append(d.focks, mat.DenseCopyOf(F))
	d.errs = append(d.errs, mat.DenseCopyOf(e))
	if len(d.focks) > d.max {
		d.focks = d.focks[1:]
		d.errs = d.errs[1:]
	}
}

//extrapolate returns the linear combination of the stored Fock matrices that
//minimizes the norm of the combined error. If the DIIS equations are singular
//the oldest vectors are dropped until they are not. With fewer than 2 vectors
//it returns the last Fock matrix.
func (d *diis) extrapolate() *mat.Dense {
	for len(d.focks) >= 2 {
		m := len(d.focks)
		B := mat.NewDense(m+1, m+1, nil)
		rhs := mat.NewVecDense(m+1, nil)
		for i := 0; i < m; i++ {
			for j := 0; j <= i; j++ {
				v := mat.Sum(elemMul(d.errs[i], d.errs[j]))
				B.Set(i, j, v)
				B.Set(j, i, v)
			}
			B.Set(i, m, -1)
			B.Set(m, i, -1)
		}
		rhs.SetVec(m, -1)
		var c mat.VecDense
		if err := c.SolveVec(B, rhs); err != nil {
			d.focks = d.focks[1:]
			d.errs = d.errs[1:]
			continue
		}
		n, _ := d.focks[0].Dims()
		F := mat.NewDense(n, n, nil)
		tmp := mat.NewDense(n, n, nil)
		for i := 0; i < m; i++ {
			tmp.Scale(c.AtVec(i), d.focks[i])
			F.Add(F, tmp)
		}
		return F
	}
	return mat.DenseCopyOf(d.focks[len(d.focks)-1])
}

func elemMul(a, b *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	ret := mat.NewDense(r, c, nil)
	ret.MulElem(a, b)
	return ret
}
