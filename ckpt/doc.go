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

/*Package ckpt reads and writes checkpoint files: a set of named matrices plus
some metadata, so an embedding run can be restarted or inspected.

******************** Format ***************************************************

A checkpoint file is compressed with z-standard (zstd) and contains only ASCII.

The file starts with a header. Each header line is a key=value pair, and the header
ends with a line that starts with "**" followed by one or more spaces and the
number of matrices in the file. Keys are written in lexical order.

Each matrix starts with a line

* name kind rows cols [complex]

where kind is one of density, fock, overlap, projection or potential. Then come
rows lines of cols numbers, the real part, and, for complex matrices, rows more
lines with the imaginary part. Numbers are written with the shortest representation
that reads back to exactly the same float64.

The "**" sequence only appears as the header terminator.

*******************************************************************************/
package ckpt
