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

/*Package bridge drives a QM program through its SCF callbacks.

A Solver exposes three callback slots (overlap_ready, fock_requested, density_ready),
an atom to basis function map and a Run method. A Bridge installs a set of Handlers
for exactly one calculation, checks that the solver calls back in the expected order,
copies every matrix across the boundary with package dmat, and makes sure that
no callback stays registered once the calculation returns, whether it succeeded or not.

The solver is treated as non-reentrant: a Bridge refuses to start a calculation
while another one is in flight, including from inside a handler.
*/
package bridge
