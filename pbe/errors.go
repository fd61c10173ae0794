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

package pbe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rmera/pbembed/bridge"
)

var (
	//ErrCancelled is wrapped by the cause of a Failure when the run's context is cancelled.
	ErrCancelled = bridge.ErrCancelled

	//ErrSCFNotConverged is returned when the environment or the subsystem calculation
	//does not converge.
	ErrSCFNotConverged = errors.New("pbe: SCF did not converge")

	//ErrActiveElectrons is returned when the active region does not hold a positive,
	//even number of electrons.
	ErrActiveElectrons = errors.New("pbe: bad electron count for the active region")

	//ErrPrecision is returned when the solver works at a precision other than the configured one.
	ErrPrecision = errors.New("pbe: solver precision differs from the configured one")

	//ErrResume is returned when a State lacks the data needed to resume from it.
	ErrResume = errors.New("pbe: can't resume from state")

	//ErrLevels is returned when the high-level solver can't be embedded in the low-level one.
	ErrLevels = errors.New("pbe: incompatible levels of theory")
)

//ConvergenceError is the cause of a Failure when the outer iterations are exhausted.
type ConvergenceError struct {
	LastDelta  float64 //last change in the subsystem energy
	Iterations int
}

func (err *ConvergenceError) Error() string {
	return fmt.Sprintf("pbe: no convergence after %d outer iterations, last energy change %g", err.Iterations, err.LastDelta)
}

//IncompleteStateError is returned by Assemble for a State that is neither converged nor failed,
//or that does not contain a finished subsystem calculation.
type IncompleteStateError struct {
	Status Status
	deco   []string
}

func (err *IncompleteStateError) Error() string {
	return fmt.Sprintf("pbe: can't assemble results from a state in %s", err.Status)
}

//Decorate adds dec to the decoration of the error and returns the result.
func (err *IncompleteStateError) Decorate(dec string) []string {
	if dec != "" {
		err.deco = append(err.deco, dec)
	}
	return err.deco
}

//Failure is returned when an embedding run ends in the Failed state. State is the
//State committed at the end of the last complete outer iteration (an empty State
//if none was completed). Pending, if not nil, also contains the converged environment
//of the iteration that failed, and can be given to Driver.Resume.
type Failure struct {
	Status  Status //state in which the run failed
	Cause   error
	State   *State
	Pending *State
	deco    []string
}

func (err *Failure) Error() string {
	return fmt.Sprintf("pbe: embedding failed in %s: %v", err.Status, err.Cause)
}

func (err *Failure) Unwrap() error { return err.Cause }

//Decorate adds dec to the decoration of the error and returns the result.
func (err *Failure) Decorate(dec string) []string {
	if dec != "" {
		err.deco = append(err.deco, dec)
	}
	return err.deco
}

//Trace returns the decoration as a single string, outermost caller last.
func (err *Failure) Trace() string {
	return strings.Join(err.deco, " <- ")
}

//Critical always returns true.
func (err *Failure) Critical() bool { return true }
