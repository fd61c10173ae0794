/*
 * basis.go, part of pbembed.
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
	"fmt"
	"math"

	chem "github.com/rmera/pbembed"
)

//primitive is a normalized s-type Gaussian exp(-alpha*r^2), with its contraction coefficient.
type primitive struct {
	alpha float64
	coeff float64
}

//sfunc is a contracted s-type basis function.
type sfunc struct {
	prims  []primitive
	center [3]float64 //in Bohr
	atom   int
}

//shells for each element, as exponent/coefficient pairs for normalized primitives.
var basisSets = map[string]map[string][][2][]float64{
	"sto-3g": {
		"H": {
			{{3.42525091, 0.62391373, 0.16885540}, {0.15432897, 0.53532814, 0.44463454}},
		},
		"He": {
			{{6.36242139, 1.15892300, 0.31364979}, {0.15432897, 0.53532814, 0.44463454}},
		},
	},
	"6-31g": {
		"H": {
			{{18.7311370, 2.8253937, 0.6401217}, {0.03349460, 0.23472695, 0.81375733}},
			{{0.1612778}, {1.0}},
		},
		"He": {
			{{38.4216340, 5.7780300, 1.2417740}, {0.04013970, 0.26124610, 0.79318500}},
			{{0.2979640}, {1.0}},
		},
	},
}

//norm returns the normalization constant of an s Gaussian with exponent a.
func norm(a float64) float64 {
	return math.Pow(2*a/math.Pi, 0.75)
}

//buildBasis returns the basis functions for the system, in the order of the atoms.
//Coordinates are converted from A to Bohr. Contractions are renormalized.
func buildBasis(name string, S *chem.System) ([]*sfunc, error) {
	set, ok := basisSets[basisName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBasis, name)
	}
	var ret []*sfunc
	for i := 0; i < S.Len(); i++ {
		sym := S.Atom(i).Symbol
		shells, ok := set[sym]
		if !ok {
			return nil, fmt.Errorf("%w: no %s functions for %s", ErrBasis, basisName(name), sym)
		}
		c := S.Coords(i)
		for j := range c {
			c[j] /= chem.Bohr
		}
		for _, sh := range shells {
			f := &sfunc{center: c, atom: i}
			for k, a := range sh[0] {
				f.prims = append(f.prims, primitive{alpha: a, coeff: sh[1][k]})
			}
			s := overlap(f, f)
			for k := range f.prims {
				f.prims[k].coeff /= math.Sqrt(s)
			}
			ret = append(ret, f)
		}
	}
	return ret, nil
}
