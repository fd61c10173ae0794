/*
 * exchange.go, part of pbembed.
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
)

//ErrComplexToReal is returned when a matrix with a non-zero imaginary part
//is to be written into the buffer of a real calculation.
var ErrComplexToReal = errors.New("dmat: complex matrix for a real context")

//Raw is a native matrix buffer, as a QM program hands it over. Data holds the
//values for double precision contexts and Data32 for single precision ones.
//Complex values are interleaved (re, im).
type Raw struct {
	Data   []float64
	Data32 []float32
	Rows   int
	Cols   int
}

//Len returns the number of values in the buffer.
func (R Raw) Len() int {
	if R.Data32 != nil {
		return len(R.Data32)
	}
	return len(R.Data)
}

//Copy returns a deep copy of the buffer.
func (R Raw) Copy() Raw {
	C := Raw{Rows: R.Rows, Cols: R.Cols}
	if R.Data != nil {
		C.Data = append([]float64(nil), R.Data...)
	}
	if R.Data32 != nil {
		C.Data32 = append([]float32(nil), R.Data32...)
	}
	return C
}

//Context describes how a QM program lays out the matrices of one calculation.
type Context struct {
	Name      string //for errors and logs, e.g. "environment".
	NBasis    int
	Layout    Layout
	Storage   Storage
	Complex   bool
	Precision Precision
}

func (C Context) String() string {
	kind := "real"
	if C.Complex {
		kind = "complex"
	}
	return fmt.Sprintf("%s: %d basis functions, %s %s %s %s", C.Name, C.NBasis, C.Layout, C.Storage, kind, C.Precision)
}

//BufferLen returns the number of values a buffer for a square NBasis matrix
//must have in this context.
func (C Context) BufferLen() int {
	n := C.NBasis * C.NBasis
	if C.Storage != Full {
		n = C.NBasis * (C.NBasis + 1) / 2
	}
	if C.Complex {
		n *= 2
	}
	return n
}

//NewRaw returns a zeroed buffer for this context.
func (C Context) NewRaw() Raw {
	R := Raw{Rows: C.NBasis, Cols: C.NBasis}
	if C.Precision == Single {
		R.Data32 = make([]float32, C.BufferLen())
	} else {
		R.Data = make([]float64, C.BufferLen())
	}
	return R
}

//index returns the position in the buffer of the element i,j (counting complex
//numbers as one element), and whether the stored value is the conjugate
//(or, for real matrices, the transpose) of the element requested.
func (C Context) index(i, j int) (int, bool) {
	n := C.NBasis
	colmajor := C.Layout == ColMajor
	switch C.Storage {
	case PackedLower:
		if i < j {
			i, j = j, i
			return C.lowerIndex(n, i, j, colmajor), true
		}
		return C.lowerIndex(n, i, j, colmajor), false
	case PackedUpper:
		if i > j {
			i, j = j, i
			return C.upperIndex(n, i, j, colmajor), true
		}
		return C.upperIndex(n, i, j, colmajor), false
	}
	if colmajor {
		return j*n + i, false
	}
	return i*n + j, false
}

//lowerIndex requires i>=j.
func (C Context) lowerIndex(n, i, j int, colmajor bool) int {
	if colmajor {
		return j*n - j*(j+1)/2 + i
	}
	return i*(i+1)/2 + j
}

//upperIndex requires i<=j.
func (C Context) upperIndex(n, i, j int, colmajor bool) int {
	if colmajor {
		return j*(j+1)/2 + i
	}
	return i*n - i*(i-1)/2 + j - i
}

func (C Context) shapeError(kind Kind, rows, cols, length int) *ShapeMismatchError {
	return &ShapeMismatchError{Context: C.Name, Kind: kind, Rows: C.NBasis, Cols: C.NBasis, Len: C.BufferLen(),
		GotRows: rows, GotCols: cols, GotLen: length}
}

//Wrap copies the native buffer raw into a new Matrix of the given kind. It returns a
//*ShapeMismatchError if the dimensions of raw are not NBasis x NBasis or if the
//buffer length doesn't match the storage convention of the context.
//Packed buffers are expanded into the full symmetric (hermitian) matrix.
func (C Context) Wrap(raw Raw, kind Kind) (*Matrix, error) {
	var length int
	if C.Precision == Single {
		length = len(raw.Data32)
	} else {
		length = len(raw.Data)
	}
	if raw.Rows != C.NBasis || raw.Cols != C.NBasis || length != C.BufferLen() || C.NBasis <= 0 {
		err := C.shapeError(kind, raw.Rows, raw.Cols, raw.Len())
		err.Decorate("Wrap")
		return nil, err
	}
	val := func(k int) float64 {
		if C.Precision == Single {
			return float64(raw.Data32[k])
		}
		return raw.Data[k]
	}
	n := C.NBasis
	M := New(kind, n, n, C.Complex)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			k, conj := C.index(i, j)
			if !C.Complex {
				M.re.Set(i, j, val(k))
				continue
			}
			im := val(2*k + 1)
			if conj {
				im = -im
			}
			M.re.Set(i, j, val(2*k))
			M.im.Set(i, j, im)
		}
	}
	return M, nil
}

//ToNative writes M into a fresh buffer with the layout, storage and precision of
//the context. For packed storage only the stored triangle of M is used.
//ToNative(Wrap(buf)) reproduces buf exactly.
func (C Context) ToNative(M *Matrix) (Raw, error) {
	r, c := M.Dims()
	if r != C.NBasis || c != C.NBasis {
		err := C.shapeError(M.Kind(), r, c, r*c)
		err.Decorate("ToNative")
		return Raw{}, err
	}
	if M.im != nil && !C.Complex {
		for _, v := range M.im.RawMatrix().Data {
			if v != 0 {
				return Raw{}, fmt.Errorf("%w: %s matrix in context %q", ErrComplexToReal, M.Kind(), C.Name)
			}
		}
	}
	R := C.NewRaw()
	set := func(k int, v float64) {
		if C.Precision == Single {
			R.Data32[k] = float32(v)
			return
		}
		R.Data[k] = v
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			k, conj := C.index(i, j)
			if conj {
				continue //the element stored is the one for j,i
			}
			re, im := M.At(i, j)
			if !C.Complex {
				set(k, re)
				continue
			}
			set(2*k, re)
			set(2*k+1, im)
		}
	}
	return R, nil
}
