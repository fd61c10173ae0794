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

package bridge

import (
	"errors"
	"fmt"
	"strings"
)

var (
	//ErrInFlight is returned when a calculation is requested, or handlers registered,
	//while another calculation is running.
	ErrInFlight = errors.New("bridge: a calculation is already in flight")

	//ErrCancelled is the cause of the failure when the context of a calculation is cancelled.
	ErrCancelled = errors.New("bridge: calculation cancelled")

	//ErrPhaseOrder is the cause of the failure when a solver calls back out of order.
	ErrPhaseOrder = errors.New("bridge: callback out of order")

	//ErrNoEvaluator is returned by Evaluate when the solver can't evaluate fixed-density energies.
	ErrNoEvaluator = errors.New("bridge: solver can't evaluate energies at a fixed density")

	//ErrNoFockBuilder is returned by FockAt when the solver can't build Fock matrices at a fixed density.
	ErrNoFockBuilder = errors.New("bridge: solver can't build Fock matrices at a fixed density")

	//ErrHandlerPanic is the cause of the failure when a handler panics.
	ErrHandlerPanic = errors.New("bridge: handler panicked")

	//ErrAborted is what a callback returns to the solver after a failure has been recorded.
	ErrAborted = errors.New("bridge: calculation aborted after a callback failure")
)

//CallbackFailure is returned by RunCalculation when something went wrong inside
//a callback: a handler error, a wrongly shaped buffer, a cancellation or a
//callback out of order. The solver call has been aborted and every callback
//unregistered when the error reaches the caller.
type CallbackFailure struct {
	Calc  string
	Phase Phase
	Iter  int
	Cause error
	deco  []string
}

func (err *CallbackFailure) Error() string {
	return fmt.Sprintf("callback failure in %s, %s, SCF iteration %d: %v", err.Calc, err.Phase, err.Iter, err.Cause)
}

func (err *CallbackFailure) Unwrap() error { return err.Cause }

//Decorate will add the dec string to the decoration slice of strings of the error,
//and return the resulting slice.
func (err *CallbackFailure) Decorate(dec string) []string {
	if dec == "" {
		return err.deco
	}
	err.deco = append(err.deco, dec)
	return err.deco
}

//Trace returns the decoration as a single string.
func (err *CallbackFailure) Trace() string {
	return strings.Join(err.deco, " <- ")
}

//Critical returns true: the calculation that produced the error can't be used.
func (err *CallbackFailure) Critical() bool { return true }
