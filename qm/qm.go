/*
 * qm.go, part of pbembed.
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
/***Dedicated to the long life of the Ven. Khenpo Phuntzok Tenzin Rinpoche***/

package qm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rmera/pbembed/dmat"
)

//ErrOpenShell is returned for systems that are not closed-shell singlets.
var ErrOpenShell = errors.New("qm: only closed-shell singlets are supported")

//ErrBasis is returned for unknown basis sets or elements not in a basis set.
var ErrBasis = errors.New("qm: basis set not available")

//Calc contains the settings of a calculation, as separated as possible from the
//program that runs it.
type Calc struct {
	Method             string  //"HF", or "Hartree" for Hartree-Fock without exchange
	Basis              string  //"sto-3g" or "6-31g"
	SCFConvergence     float64 //energy change, in Hartree, below which the SCF is converged
	DensityConvergence float64 //RMS density change below which the SCF is converged
	MaxIterations      int
	DIIS               bool //Pulay's DIIS extrapolation of the Fock matrix (on in SetDefaults).
	DIISVectors        int
	//How matrices are handed over in callbacks.
	Layout    dmat.Layout
	Storage   dmat.Storage
	Precision dmat.Precision
}

//SetDefaults sets the default values for the calculation.
//They are not part of the API and can change.
func (Q *Calc) SetDefaults() {
	Q.Method = "HF"
	Q.Basis = "sto-3g"
	Q.SCFConvergence = 1e-10
	Q.DensityConvergence = 1e-8
	Q.MaxIterations = 100
	Q.DIIS = true
	Q.DIISVectors = 6
}

//ErrMethod is returned for methods the program can't run.
var ErrMethod = errors.New("qm: method not supported")

//exchange returns the fraction of exact exchange of the method.
func exchange(method string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "hf", "rhf":
		return 1, nil
	case "hartree":
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrMethod, method)
}

//basisName normalizes a basis set name.
func basisName(b string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(b)), "*", "")
}
