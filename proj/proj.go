/*
 * proj.go, part of pbembed.
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

/*Package proj builds the projection operators that keep the orbitals of an
embedded subsystem orthogonal to those of its environment.*/
package proj

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rmera/pbembed/dmat"
)

//DefaultMu is the default level shift, in Hartree.
const DefaultMu = 1e6

//ErrMu is returned for a negative or non-finite level shift.
var ErrMu = errors.New("proj: level shift must be finite and non-negative")

//DimensionError is returned when the matrices used to build a projector don't
//have compatible dimensions.
type DimensionError struct {
	Op   string
	Dims [][2]int //dimensions of the operands, in order
	deco []string
}

func (err *DimensionError) Error() string {
	d := make([]string, len(err.Dims))
	for i, v := range err.Dims {
		d[i] = fmt.Sprintf("%dx%d", v[0], v[1])
	}
	return fmt.Sprintf("%s: incompatible dimensions %s", err.Op, strings.Join(d, ", "))
}

//Decorate will add the dec string to the decoration slice of strings of the error,
//and return the resulting slice.
func (err *DimensionError) Decorate(dec string) []string {
	if dec == "" {
		return err.deco
	}
	err.deco = append(err.deco, dec)
	return err.deco
}

//Critical returns true.
func (err *DimensionError) Critical() bool { return true }

//square checks that all the matrices are square and of the same size.
func square(op string, ms ...*dmat.Matrix) error {
	dims := make([][2]int, len(ms))
	ok := true
	for i, m := range ms {
		r, c := m.Dims()
		dims[i] = [2]int{r, c}
		if r != c || r != dims[0][0] {
			ok = false
		}
	}
	if ok {
		return nil
	}
	return &DimensionError{Op: op, Dims: dims, deco: []string{op}}
}

//LevelShift returns the projection operator P = mu*S*Denv*S, for the environment
//density Denv and the overlap S. The product is always computed in float64, and
//always in the same order, so equal inputs give bit-identical results.
func LevelShift(Denv, S *dmat.Matrix, mu float64) (*dmat.Matrix, error) {
	if err := square("LevelShift", Denv, S); err != nil {
		return nil, err
	}
	if mu < 0 || math.IsNaN(mu) || math.IsInf(mu, 0) {
		return nil, fmt.Errorf("%w: %g", ErrMu, mu)
	}
	SDS, err := dmat.Product(dmat.Projection, S, Denv, S)
	if err != nil {
		return nil, err
	}
	return dmat.Scale(mu, SDS), nil
}

//Huzinaga returns the Huzinaga projector P = -(F*Denv*S + S*Denv*F)/2, for the
//environment density Denv, the Fock matrix F and the overlap S.
func Huzinaga(F, Denv, S *dmat.Matrix) (*dmat.Matrix, error) {
	if err := square("Huzinaga", F, Denv, S); err != nil {
		return nil, err
	}
	FDS, err := dmat.Product(dmat.Projection, F, Denv, S)
	if err != nil {
		return nil, err
	}
	SDF, err := dmat.Product(dmat.Projection, S, Denv, F)
	if err != nil {
		return nil, err
	}
	P, err := dmat.Add(FDS, SDF)
	if err != nil {
		return nil, err
	}
	return dmat.Scale(-0.5, P), nil
}

//Population returns tr(S*D), the number of electrons described by the density D.
func Population(S, D *dmat.Matrix) (float64, error) {
	if err := square("Population", S, D); err != nil {
		return 0, err
	}
	return dmat.TraceProduct(S, D)
}
