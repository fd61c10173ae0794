/*
 * linalg.go, part of pbembed.
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

package dmat

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

//ErrNotSymmetric is returned by the functions that need a real symmetric matrix.
var ErrNotSymmetric = errors.New("dmat: matrix is not real symmetric")

//ErrEigen is returned when the eigendecomposition of a matrix fails.
var ErrEigen = errors.New("dmat: eigendecomposition failed")

//symTol is the largest asymmetry accepted for a matrix to be treated as symmetric.
const symTol = 1e-8

//Sym returns the real part of A as a gonum symmetric matrix, or ErrNotSymmetric if A
//is complex or not symmetric.
func Sym(A *Matrix) (*mat.SymDense, error) {
	r, c := A.Dims()
	if r != c || A.im != nil {
		return nil, ErrNotSymmetric
	}
	S := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			a, b := A.re.At(i, j), A.re.At(j, i)
			if math.Abs(a-b) > symTol*math.Max(1, math.Abs(a)) {
				return nil, fmt.Errorf("%w: elements %d,%d and %d,%d differ by %g", ErrNotSymmetric, i, j, j, i, a-b)
			}
			S.SetSym(i, j, (a+b)/2)
		}
	}
	return S, nil
}

//Eigen returns the eigenvalues, in ascending order, and the eigenvectors, as
//columns, of the real symmetric matrix A.
func Eigen(A *Matrix) ([]float64, *mat.Dense, error) {
	S, err := Sym(A)
	if err != nil {
		return nil, nil, err
	}
	var es mat.EigenSym
	if ok := es.Factorize(S, true); !ok {
		return nil, nil, ErrEigen
	}
	vecs := mat.NewDense(S.SymmetricDim(), S.SymmetricDim(), nil)
	es.VectorsTo(vecs)
	return es.Values(nil), vecs, nil
}

//SymFunc returns f(A) = U f(L) U^T for the real symmetric matrix A = U L U^T,
//with the kind given. It fails if f returns NaN or Inf for any eigenvalue.
func SymFunc(kind Kind, A *Matrix, f func(float64) float64) (*Matrix, error) {
	vals, U, err := Eigen(A)
	if err != nil {
		return nil, err
	}
	n := len(vals)
	fl := make([]float64, n)
	for i, v := range vals {
		fl[i] = f(v)
		if math.IsNaN(fl[i]) || math.IsInf(fl[i], 0) {
			return nil, fmt.Errorf("%w: function undefined for eigenvalue %g", ErrEigen, v)
		}
	}
	UL := mat.NewDense(n, n, nil)
	UL.Apply(func(i, j int, v float64) float64 { return v * fl[j] }, U)
	R := mat.NewDense(n, n, nil)
	R.Mul(UL, U.T())
	return &Matrix{kind: kind, re: R}, nil
}

//SymPow returns A^p for the real symmetric, positive definite matrix A.
func SymPow(kind Kind, A *Matrix, p float64) (*Matrix, error) {
	return SymFunc(kind, A, func(v float64) float64 {
		if v <= 0 {
			return math.NaN()
		}
		return math.Pow(v, p)
	})
}
