/*
 * doc.go, part of pbembed.
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

/*Package pbe performs projection-based embedding: a subsystem calculation embedded,
through a projection operator and an embedding potential, in the Hartree-Fock (or
similar) density of the whole system.

A Driver runs the two-level SCF as a state machine:

	Init -> EnvRunning -> EnvConverged -> SubRunning -> SubConverged -> Converged
	                ^                                        |
	                +--------------- Iterating <-------------+

with Failed as the other terminal state. The environment calculation runs on the whole
system. Its density is split into the density of the active orbitals and that of the
environment; the latter gives the projection operator, which the driver adds, together
with the embedding potential, to every Fock matrix the solver builds during the subsystem
calculation. With the frozen environment policy (the default) one pass is done. With the
refresh policy the environment is recomputed each outer iteration, starting from the last
embedded density, until the subsystem energy stops changing.

Results of an outer iteration are committed to the State only once the subsystem
calculation has converged, so a failure leaves the State of the last complete iteration
intact. Assemble turns a final State into the embedded total energy.
*/
package pbe
