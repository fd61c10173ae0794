/*
 * matrix.go, part of pbembed.
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
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

//Matrix is a dense, real or complex, kind-tagged matrix. The real and imaginary
//parts are kept in separate gonum matrices; im is nil for real matrices.
//A Matrix owns its data: every function in this package that returns a Matrix
//returns a fresh one.
type Matrix struct {
	kind Kind
	re   *mat.Dense
	im   *mat.Dense
}

//New returns a rows x cols zero matrix of the given kind.
func New(kind Kind, rows, cols int, complex bool) *Matrix {
	M := &Matrix{kind: kind, re: mat.NewDense(rows, cols, nil)}
	if complex {
		M.im = mat.NewDense(rows, cols, nil)
	}
	return M
}

//Zeros returns a square n x n real zero matrix of the given kind.
func Zeros(kind Kind, n int) *Matrix {
	return New(kind, n, n, false)
}

//FromDense builds a Matrix from copies of re and im. im can be nil.
//It panics if re is nil or the dimensions of re and im differ.
func FromDense(kind Kind, re, im mat.Matrix) *Matrix {
	if re == nil {
		panic(ErrNilMatrix)
	}
	M := &Matrix{kind: kind, re: mat.DenseCopyOf(re)}
	if im != nil {
		r, c := re.Dims()
		ir, ic := im.Dims()
		if r != ir || c != ic {
			panic(mat.ErrShape)
		}
		M.im = mat.DenseCopyOf(im)
	}
	return M
}

//FromSlice builds a real rows x cols matrix from row-major data, which is copied.
func FromSlice(kind Kind, rows, cols int, data []float64) *Matrix {
	d := make([]float64, len(data))
	copy(d, data)
	return &Matrix{kind: kind, re: mat.NewDense(rows, cols, d)}
}

//Kind returns the kind tag of the matrix.
func (M *Matrix) Kind() Kind { return M.kind }

//Dims returns the number of rows and columns.
func (M *Matrix) Dims() (int, int) { return M.re.Dims() }

//IsComplex returns true if the matrix has an imaginary part.
func (M *Matrix) IsComplex() bool { return M.im != nil }

//At returns the real and imaginary parts of the element i,j.
func (M *Matrix) At(i, j int) (float64, float64) {
	if M.im == nil {
		return M.re.At(i, j), 0
	}
	return M.re.At(i, j), M.im.At(i, j)
}

//Re returns a copy of the real part.
func (M *Matrix) Re() *mat.Dense { return mat.DenseCopyOf(M.re) }

//Im returns a copy of the imaginary part, or nil for a real matrix.
func (M *Matrix) Im() *mat.Dense {
	if M.im == nil {
		return nil
	}
	return mat.DenseCopyOf(M.im)
}

//Copy returns a deep copy of the matrix.
func (M *Matrix) Copy() *Matrix {
	return FromDense(M.kind, M.re, imOrNil(M.im))
}

//As returns a deep copy of the matrix with the kind tag changed to kind.
func (M *Matrix) As(kind Kind) *Matrix {
	C := M.Copy()
	C.kind = kind
	return C
}

//String returns a compact representation of the matrix, for logs and debugging.
func (M *Matrix) String() string {
	r, c := M.Dims()
	s := fmt.Sprintf("%s %dx%d\n%v", M.kind, r, c, mat.Formatted(M.re, mat.Squeeze()))
	if M.im != nil {
		s += fmt.Sprintf("\nim:\n%v", mat.Formatted(M.im, mat.Squeeze()))
	}
	return s
}

//imOrNil avoids turning a nil *mat.Dense into a non-nil mat.Matrix interface.
func imOrNil(d *mat.Dense) mat.Matrix {
	if d == nil {
		return nil
	}
	return d
}

func sameDims(A, B *Matrix) bool {
	ar, ac := A.Dims()
	br, bc := B.Dims()
	return ar == br && ac == bc
}

func dimErr(op string, A, B *Matrix) error {
	ar, ac := A.Dims()
	br, bc := B.Dims()
	return fmt.Errorf("%w: %s of %dx%d and %dx%d", ErrDimensions, op, ar, ac, br, bc)
}

//Add returns A+B, with the kind of A.
func Add(A, B *Matrix) (*Matrix, error) {
	if !sameDims(A, B) {
		return nil, dimErr("Add", A, B)
	}
	R := A.Copy()
	R.re.Add(R.re, B.re)
	if B.im != nil {
		if R.im == nil {
			r, c := R.Dims()
			R.im = mat.NewDense(r, c, nil)
		}
		R.im.Add(R.im, B.im)
	}
	return R, nil
}

//Sub returns A-B, with the kind of A.
func Sub(A, B *Matrix) (*Matrix, error) {
	if !sameDims(A, B) {
		return nil, dimErr("Sub", A, B)
	}
	return Add(A, Scale(-1, B))
}

//Scale returns f*A.
func Scale(f float64, A *Matrix) *Matrix {
	R := A.Copy()
	R.re.Scale(f, R.re)
	if R.im != nil {
		R.im.Scale(f, R.im)
	}
	return R
}

//mul2 returns the product AB. Complex products are carried out in real
//arithmetic: (a+ib)(c+id) = (ac-bd) + i(ad+bc).
func mul2(A, B *Matrix) (*Matrix, error) {
	ar, ac := A.Dims()
	br, bc := B.Dims()
	if ac != br {
		return nil, dimErr("Product", A, B)
	}
	R := &Matrix{kind: A.kind, re: mat.NewDense(ar, bc, nil)}
	R.re.Mul(A.re, B.re)
	if A.im == nil && B.im == nil {
		return R, nil
	}
	R.im = mat.NewDense(ar, bc, nil)
	tmp := mat.NewDense(ar, bc, nil)
	if A.im != nil && B.im != nil {
		tmp.Mul(A.im, B.im)
		R.re.Sub(R.re, tmp)
	}
	if B.im != nil {
		tmp.Mul(A.re, B.im)
		R.im.Add(R.im, tmp)
	}
	if A.im != nil {
		tmp.Mul(A.im, B.re)
		R.im.Add(R.im, tmp)
	}
	return R, nil
}

//Product returns the chained product of the matrices given, left to right,
//tagged with kind. All accumulation happens in float64.
func Product(kind Kind, ms ...*Matrix) (*Matrix, error) {
	if len(ms) == 0 {
		panic(ErrNilMatrix)
	}
	R := ms[0].Copy()
	var err error
	for _, M := range ms[1:] {
		R, err = mul2(R, M)
		if err != nil {
			return nil, err
		}
	}
	R.kind = kind
	return R, nil
}

//Trace returns the real and imaginary parts of the trace of the square matrix A.
func Trace(A *Matrix) (float64, float64) {
	r, c := A.Dims()
	if r != c {
		panic(mat.ErrSquare)
	}
	var re, im float64
	for i := 0; i < r; i++ {
		x, y := A.At(i, i)
		re += x
		im += y
	}
	return re, im
}

//TraceProduct returns the real part of tr(AB), without forming the product.
func TraceProduct(A, B *Matrix) (float64, error) {
	ar, ac := A.Dims()
	br, bc := B.Dims()
	if ac != br || ar != bc {
		return 0, dimErr("TraceProduct", A, B)
	}
	var t float64
	for i := 0; i < ar; i++ {
		for k := 0; k < ac; k++ {
			are, aim := A.At(i, k)
			bre, bim := B.At(k, i)
			t += are*bre - aim*bim
		}
	}
	return t, nil
}

//Block returns the sub-matrix of A with the rows and columns given, in that order, with
//the kind of A. The block doesn't need to be square, so it can hold, for instance,
//the overlap between two subspaces.
func Block(A *Matrix, rows, cols []int) (*Matrix, error) {
	r, c := A.Dims()
	if len(rows) == 0 || len(cols) == 0 {
		return nil, fmt.Errorf("%w: empty block requested", ErrDimensions)
	}
	for _, i := range rows {
		if i < 0 || i >= r {
			return nil, fmt.Errorf("%w: row %d in a %dx%d matrix", ErrDimensions, i, r, c)
		}
	}
	for _, j := range cols {
		if j < 0 || j >= c {
			return nil, fmt.Errorf("%w: column %d in a %dx%d matrix", ErrDimensions, j, r, c)
		}
	}
	B := New(A.kind, len(rows), len(cols), A.im != nil)
	for bi, i := range rows {
		for bj, j := range cols {
			B.re.Set(bi, bj, A.re.At(i, j))
			if A.im != nil {
				B.im.Set(bi, bj, A.im.At(i, j))
			}
		}
	}
	return B, nil
}

//Scatter is the inverse of Block: it returns a rows x cols matrix, with the kind of A,
//where the element i,j of A is placed at ridx[i],cidx[j] and every other element is zero.
func Scatter(A *Matrix, rows, cols int, ridx, cidx []int) (*Matrix, error) {
	ar, ac := A.Dims()
	if ar != len(ridx) || ac != len(cidx) {
		return nil, fmt.Errorf("%w: scattering a %dx%d matrix with %d row and %d column indexes", ErrDimensions, ar, ac, len(ridx), len(cidx))
	}
	S := New(A.kind, rows, cols, A.im != nil)
	for bi, i := range ridx {
		if i < 0 || i >= rows {
			return nil, fmt.Errorf("%w: row %d in a %dx%d matrix", ErrDimensions, i, rows, cols)
		}
		for bj, j := range cidx {
			if j < 0 || j >= cols {
				return nil, fmt.Errorf("%w: column %d in a %dx%d matrix", ErrDimensions, j, rows, cols)
			}
			S.re.Set(i, j, A.re.At(bi, bj))
			if A.im != nil {
				S.im.Set(i, j, A.im.At(bi, bj))
			}
		}
	}
	return S, nil
}

//Equal returns true if A and B have the same kind, dimensions and
//exactly the same elements.
func Equal(A, B *Matrix) bool {
	if A.kind != B.kind || !sameDims(A, B) || (A.im == nil) != (B.im == nil) {
		return false
	}
	if !mat.Equal(A.re, B.re) {
		return false
	}
	return A.im == nil || mat.Equal(A.im, B.im)
}

//EqualApprox is like Equal, but elements are compared with the absolute
//or relative tolerance tol, and kinds are not compared.
func EqualApprox(A, B *Matrix, tol float64) bool {
	if !sameDims(A, B) {
		return false
	}
	if !floats.EqualApprox(A.re.RawMatrix().Data, B.re.RawMatrix().Data, tol) {
		return false
	}
	aim, bim := A.imag(), B.imag()
	return floats.EqualApprox(aim.RawMatrix().Data, bim.RawMatrix().Data, tol)
}

//imag returns the imaginary part, or a zero matrix for a real matrix.
func (M *Matrix) imag() *mat.Dense {
	if M.im != nil {
		return M.im
	}
	r, c := M.Dims()
	return mat.NewDense(r, c, nil)
}

//Symmetrize returns (A+A^H)/2.
func Symmetrize(A *Matrix) *Matrix {
	r, c := A.Dims()
	if r != c {
		panic(mat.ErrSquare)
	}
	R := A.Copy()
	for i := 0; i < r; i++ {
		for j := 0; j <= i; j++ {
			v := (A.re.At(i, j) + A.re.At(j, i)) / 2
			R.re.Set(i, j, v)
			R.re.Set(j, i, v)
			if A.im != nil {
				w := (A.im.At(i, j) - A.im.At(j, i)) / 2
				R.im.Set(i, j, w)
				R.im.Set(j, i, -w)
			}
		}
	}
	return R
}
