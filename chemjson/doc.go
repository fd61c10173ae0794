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

//Package chemjson implements the exchange of embedding jobs and results, as
//line-delimited JSON, with independent programs, which can be written in any language
//able to read and write JSON. A typical use is to drive pbembed through UNIX pipes.
//
//The calling program writes one line with the Options, followed, for each atom,
//by one line with the atom and one line with its coordinates (in A). It then reads
//one line, which contains either an Info with the results or an Error.
package chemjson
