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

/*Package dmat contains the dense matrices that cross the boundary between pbembed and
a QM program: density, Fock, overlap and projection matrices, each tagged with its kind.

A Context describes how a QM program lays out the matrices of one calculation in memory
(basis size, row or column major, full or packed triangular storage, real or complex,
single or double precision). Context.Wrap copies a native buffer into a Matrix after
checking its shape, and Context.ToNative produces a fresh buffer from a Matrix. Nothing is
ever shared by reference across the boundary, since the QM program may reuse its buffers
as soon as a callback returns.

*/
package dmat
