/*
 * dmat_test.go, part of pbembed.
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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

//allContexts returns a context for every combination of layout, storage, complex and precision.
func allContexts(n int) []Context {
	var ret []Context
	for _, l := range []Layout{RowMajor, ColMajor} {
		for _, s := range []Storage{Full, PackedLower, PackedUpper} {
			for _, c := range []bool{false, true} {
				for _, p := range []Precision{Double, Single} {
					name := fmt.Sprintf("%s/%s/complex=%v/%s", l, s, c, p)
					ret = append(ret, Context{Name: name, NBasis: n, Layout: l, Storage: s, Complex: c, Precision: p})
				}
			}
		}
	}
	return ret
}

//filled returns a buffer for C where every value is different.
func filled(C Context) Raw {
	R := C.NewRaw()
	for k := 0; k < C.BufferLen(); k++ {
		v := 0.25*float64(k) - 1.5
		if C.Precision == Single {
			R.Data32[k] = float32(v)
		} else {
			R.Data[k] = v + 1e-13*float64(k)
		}
	}
	return R
}

func TestRoundTrip(Te *testing.T) {
	for _, C := range allContexts(4) {
		Te.Run(C.Name, func(Te *testing.T) {
			buf := filled(C)
			for _, kind := range []Kind{Density, Fock, Overlap, Projection} {
				M, err := C.Wrap(buf, kind)
				require.NoError(Te, err)
				assert.Equal(Te, kind, M.Kind())
				back, err := C.ToNative(M)
				require.NoError(Te, err)
				assert.Equal(Te, buf, back)
			}
		})
	}
}

//A hermitian matrix must come out the same whatever the convention used to store it.
func TestHermitianAllConventions(Te *testing.T) {
	re := mat.NewDense(3, 3, []float64{1, 2, 3, 2, 4, 5, 3, 5, 6})
	im := mat.NewDense(3, 3, []float64{0, -1, 2, 1, 0, 0.5, -2, -0.5, 0})
	H := FromDense(Fock, re, im)
	for _, C := range allContexts(3) {
		if !C.Complex || C.Precision == Single {
			continue
		}
		raw, err := C.ToNative(H)
		require.NoError(Te, err, C.Name)
		back, err := C.Wrap(raw, Fock)
		require.NoError(Te, err, C.Name)
		assert.True(Te, Equal(H, back), C.Name)
	}
}

func TestPackedIndexing(Te *testing.T) {
	//lower triangle, row by row: a00 a10 a11 a20 a21 a22
	C := Context{Name: "t", NBasis: 3, Storage: PackedLower}
	M, err := C.Wrap(Raw{Data: []float64{1, 2, 3, 4, 5, 6}, Rows: 3, Cols: 3}, Density)
	require.NoError(Te, err)
	assert.Equal(Te, []float64{1, 2, 4, 2, 3, 5, 4, 5, 6}, M.Re().RawMatrix().Data)
	//upper triangle, column by column is the same sequence.
	C.Storage = PackedUpper
	C.Layout = ColMajor
	M2, err := C.Wrap(Raw{Data: []float64{1, 2, 3, 4, 5, 6}, Rows: 3, Cols: 3}, Density)
	require.NoError(Te, err)
	assert.True(Te, Equal(M, M2))
	C = Context{Name: "t", NBasis: 2, Layout: ColMajor}
	M3, err := C.Wrap(Raw{Data: []float64{1, 2, 3, 4}, Rows: 2, Cols: 2}, Overlap)
	require.NoError(Te, err)
	re, _ := M3.At(0, 1)
	assert.Equal(Te, 3.0, re)
}

func TestWrapShapeMismatch(Te *testing.T) {
	C := Context{Name: "subsystem", NBasis: 3}
	cases := map[string]Raw{
		"rows":   {Data: make([]float64, 9), Rows: 2, Cols: 3},
		"cols":   {Data: make([]float64, 9), Rows: 3, Cols: 4},
		"short":  {Data: make([]float64, 8), Rows: 3, Cols: 3},
		"long":   {Data: make([]float64, 10), Rows: 3, Cols: 3},
		"single": {Data32: make([]float32, 9), Rows: 3, Cols: 3},
	}
	for name, raw := range cases {
		_, err := C.Wrap(raw, Fock)
		var serr *ShapeMismatchError
		require.True(Te, errors.As(err, &serr), name)
		assert.True(Te, serr.Critical())
		assert.Equal(Te, "subsystem", serr.Context)
		assert.Equal(Te, Fock, serr.Kind)
	}
	_, err := C.ToNative(Zeros(Fock, 4))
	var serr *ShapeMismatchError
	require.ErrorAs(Te, err, &serr)
	assert.Equal(Te, "ToNative", serr.Trace())
}

func TestNoAliasing(Te *testing.T) {
	C := Context{Name: "t", NBasis: 2}
	raw := Raw{Data: []float64{1, 2, 3, 4}, Rows: 2, Cols: 2}
	M, err := C.Wrap(raw, Density)
	require.NoError(Te, err)
	raw.Data[0] = 100
	re, _ := M.At(0, 0)
	assert.Equal(Te, 1.0, re)
	out, err := C.ToNative(M)
	require.NoError(Te, err)
	out.Data[1] = 100
	re, _ = M.At(0, 1)
	assert.Equal(Te, 2.0, re)
	cp := raw.Copy()
	cp.Data[2] = -1
	assert.Equal(Te, 3.0, raw.Data[2])
}

func TestComplexToReal(Te *testing.T) {
	C := Context{Name: "t", NBasis: 2}
	M := New(Fock, 2, 2, true)
	_, err := C.ToNative(M) //zero imaginary part is fine
	require.NoError(Te, err)
	M.im.Set(0, 1, 1)
	_, err = C.ToNative(M)
	assert.ErrorIs(Te, err, ErrComplexToReal)
}

func TestProduct(Te *testing.T) {
	a := []complex128{1 + 2i, 3 - 1i, 0.5i, 2}
	b := []complex128{2 - 1i, 1, 1i, -1 + 1i}
	split := func(z []complex128) *Matrix {
		re := make([]float64, len(z))
		im := make([]float64, len(z))
		for i, v := range z {
			re[i], im[i] = real(v), imag(v)
		}
		return FromDense(Fock, mat.NewDense(2, 2, re), mat.NewDense(2, 2, im))
	}
	P, err := Product(Projection, split(a), split(b))
	require.NoError(Te, err)
	assert.Equal(Te, Projection, P.Kind())
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			var want complex128
			for k := 0; k < 2; k++ {
				want += a[i*2+k] * b[k*2+j]
			}
			re, im := P.At(i, j)
			assert.InDelta(Te, real(want), re, 1e-14)
			assert.InDelta(Te, imag(want), im, 1e-14)
		}
	}
	tp, err := TraceProduct(split(a), split(b))
	require.NoError(Te, err)
	tr, _ := Trace(P)
	assert.InDelta(Te, tr, tp, 1e-14)

	_, err = Product(Fock, Zeros(Fock, 2), Zeros(Fock, 3))
	assert.ErrorIs(Te, err, ErrDimensions)
}

func TestArithmetic(Te *testing.T) {
	A := FromSlice(Fock, 2, 2, []float64{1, 2, 3, 4})
	B := FromSlice(Projection, 2, 2, []float64{1, 1, 1, 1})
	S, err := Add(A, B)
	require.NoError(Te, err)
	assert.Equal(Te, Fock, S.Kind())
	assert.Equal(Te, []float64{2, 3, 4, 5}, S.Re().RawMatrix().Data)
	D, err := Sub(S, B)
	require.NoError(Te, err)
	assert.True(Te, Equal(A, D))
	assert.Equal(Te, []float64{2, 4, 6, 8}, Scale(2, A).Re().RawMatrix().Data)
	_, err = Add(A, Zeros(Fock, 3))
	assert.ErrorIs(Te, err, ErrDimensions)
	Sym := Symmetrize(A)
	assert.Equal(Te, []float64{1, 2.5, 2.5, 4}, Sym.Re().RawMatrix().Data)
	assert.True(Te, EqualApprox(A, A.As(Density), 0))
	assert.False(Te, Equal(A, A.As(Density)))
}

func TestBlock(Te *testing.T) {
	A := FromSlice(Overlap, 3, 3, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	B, err := Block(A, []int{0, 2}, []int{1})
	require.NoError(Te, err)
	r, c := B.Dims()
	assert.Equal(Te, 2, r)
	assert.Equal(Te, 1, c)
	assert.Equal(Te, []float64{2, 8}, B.Re().RawMatrix().Data)
	_, err = Block(A, []int{3}, []int{0})
	assert.ErrorIs(Te, err, ErrDimensions)
	_, err = Block(A, nil, []int{0})
	assert.ErrorIs(Te, err, ErrDimensions)

	sq, err := Block(A, []int{0, 2}, []int{0, 2})
	require.NoError(Te, err)
	back, err := Scatter(sq, 3, 3, []int{0, 2}, []int{0, 2})
	require.NoError(Te, err)
	assert.Equal(Te, []float64{1, 0, 3, 0, 0, 0, 7, 0, 9}, back.Re().RawMatrix().Data)
	_, err = Scatter(sq, 3, 3, []int{0, 3}, []int{0, 2})
	assert.ErrorIs(Te, err, ErrDimensions)
}

func TestSymPow(Te *testing.T) {
	S := FromSlice(Overlap, 2, 2, []float64{1, 0.5, 0.5, 1})
	half, err := SymPow(Overlap, S, 0.5)
	require.NoError(Te, err)
	sq, err := Product(Overlap, half, half)
	require.NoError(Te, err)
	assert.True(Te, EqualApprox(S, sq, 1e-12))
	inv, err := SymPow(Overlap, S, -1)
	require.NoError(Te, err)
	id, err := Product(Overlap, S, inv)
	require.NoError(Te, err)
	assert.True(Te, EqualApprox(FromSlice(Overlap, 2, 2, []float64{1, 0, 0, 1}), id, 1e-12))

	vals, _, err := Eigen(S)
	require.NoError(Te, err)
	assert.InDeltaSlice(Te, []float64{0.5, 1.5}, vals, 1e-12)

	_, err = SymPow(Overlap, FromSlice(Overlap, 2, 2, []float64{1, 2, 2, 1}), 0.5)
	assert.ErrorIs(Te, err, ErrEigen)
	_, err = Sym(FromSlice(Fock, 2, 2, []float64{1, 2, 3, 1}))
	assert.ErrorIs(Te, err, ErrNotSymmetric)
}
