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
/***Dedicated to the long life of the Ven. Khenpo Phuntzok Tenzin Rinpoche***/

/*Package chem is the main package of the pbembed library. It provides the atomic
system (atoms plus coordinates, charge and multiplicity) that embedding calculations
are set up on, and facilities to read and write it in XYZ format.


	**pbembed packages**


    dmat: kind-tagged dense matrices (density, Fock, overlap, projection) and their
	conversion to and from a QM program's native buffers.

    bridge: drives a QM program through its callback interface, one calculation at a time.

    part: partitions the basis into active and environment sets, splits densities,
	truncates bases.

    proj: projection operators that keep the active subsystem orthogonal to the environment.

    pbe: the projection-based embedding driver, its state and results.

    ckpt: compressed checkpoint files for matrices.

    qm: a small reference Hartree-Fock program that implements the callback interface.

*/
package chem
