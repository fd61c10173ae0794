/*
 * errors.go, part of pbembed.
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
	"strings"
)

//ErrDimensions is returned (wrapped) by the arithmetic functions when the operands
//can't be combined.
var ErrDimensions = errors.New("dmat: dimension mismatch")

//ShapeMismatchError is returned when a native buffer doesn't have the shape
//a calculation context expects. It is always fatal to the calculation: buffers are
//never padded or truncated.
type ShapeMismatchError struct {
	Context string
	Kind    Kind
	Rows    int //expected
	Cols    int
	Len     int
	GotRows int //received
	GotCols int
	GotLen  int
	deco    []string
}

func (err *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch for %s matrix in context %q: expected %dx%d (%d values), got %dx%d (%d values)",
		err.Kind, err.Context, err.Rows, err.Cols, err.Len, err.GotRows, err.GotCols, err.GotLen)
}

//Decorate will add the dec string to the decoration slice of strings of the error,
//and return the resulting slice.
func (err *ShapeMismatchError) Decorate(dec string) []string {
	if dec == "" {
		return err.deco
	}
	err.deco = append(err.deco, dec)
	return err.deco
}

//Trace returns the decoration as a single string.
func (err *ShapeMismatchError) Trace() string {
	return strings.Join(err.deco, " <- ")
}

//Critical is always true, a calculation can't go on with a wrongly shaped matrix.
func (err *ShapeMismatchError) Critical() bool { return true }

//PanicMsg is the type for the messages of the panics in this package.
type PanicMsg string

//Error returns a string with an error message
func (v PanicMsg) Error() string {
	return string(v)
}

const (
	ErrNilMatrix = PanicMsg("dmat: nil matrix")
	ErrIndex     = PanicMsg("dmat: index out of range")
)
