/*
 * kind.go, part of pbembed.
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

//Kind tags a matrix with the quantity it holds.
type Kind int

const (
	Density Kind = iota
	Fock
	Overlap
	Projection
	Potential //embedding potential, F_env-F_sub
)

func (K Kind) String() string {
	switch K {
	case Density:
		return "density"
	case Fock:
		return "fock"
	case Overlap:
		return "overlap"
	case Projection:
		return "projection"
	case Potential:
		return "potential"
	}
	return "unknown"
}

//Layout is the order in which a native buffer stores the elements of a matrix.
type Layout int

const (
	RowMajor Layout = iota
	ColMajor
)

func (L Layout) String() string {
	if L == ColMajor {
		return "colmajor"
	}
	return "rowmajor"
}

//Storage says whether a native buffer holds the whole matrix or only one triangle
//of a symmetric (hermitian, if complex) matrix, packed without gaps.
type Storage int

const (
	Full Storage = iota
	PackedLower
	PackedUpper
)

func (S Storage) String() string {
	switch S {
	case PackedLower:
		return "packed-lower"
	case PackedUpper:
		return "packed-upper"
	}
	return "full"
}

//Precision is the floating point width the solver works with.
type Precision int

const (
	Double Precision = iota
	Single
)

func (P Precision) String() string {
	if P == Single {
		return "single"
	}
	return "double"
}

//ParsePrecision returns the Precision named by s ("single" or "double").
func ParsePrecision(s string) (Precision, bool) {
	switch s {
	case "single":
		return Single, true
	case "double", "":
		return Double, true
	}
	return Double, false
}

//ParseKind returns the Kind whose String is s.
func ParseKind(s string) (Kind, bool) {
	for k := Density; k <= Potential; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return Density, false
}
