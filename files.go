/*
 * files.go, part of pbembed.
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

package chem

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	v3 "github.com/rmera/pbembed/v3"
)

//XYZFileRead reads an xyz file and returns a System with the given charge and multiplicity.
func XYZFileRead(xyzname string, charge, multi int) (*System, error) {
	xyzfile, err := os.Open(xyzname)
	if err != nil {
		return nil, CError{err.Error(), []string{"os.Open", "XYZFileRead"}}
	}
	defer xyzfile.Close()
	S, err := XYZRead(xyzfile, charge, multi)
	if err != nil {
		return nil, errDecorate(err, "XYZFileRead "+xyzname)
	}
	return S, nil
}

//XYZRead reads an xyz-formatted stream and returns a System with the given charge and multiplicity.
//Only the first frame is read.
func XYZRead(r io.Reader, charge, multi int) (*System, error) {
	xyz := bufio.NewReader(r)
	line, err := xyz.ReadString('\n')
	if err != nil && line == "" {
		return nil, CError{"Ill formatted XYZ file: missing atom count", []string{"XYZRead"}}
	}
	natoms, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || natoms <= 0 {
		return nil, CError{"Ill formatted XYZ file: bad atom count", []string{"XYZRead"}}
	}
	atoms := make([]*Atom, natoms)
	coords := make([]float64, natoms*3)
	if _, err = xyz.ReadString('\n'); err != nil { //We dont care about this line
		return nil, CError{"Ill formatted XYZ file: missing comment line", []string{"XYZRead"}}
	}
	for i := 0; i < natoms; i++ {
		line, err = xyz.ReadString('\n')
		if err != nil && (err != io.EOF || strings.TrimSpace(line) == "") {
			return nil, CError{fmt.Sprintf("Expected %d atoms, found %d", natoms, i), []string{"XYZRead"}}
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return nil, CError{fmt.Sprintf("Line number %d ill formed", i+3), []string{"XYZRead"}}
		}
		atoms[i] = &Atom{Symbol: fields[0]}
		for j := 0; j < 3; j++ {
			coords[i*3+j], err = strconv.ParseFloat(fields[j+1], 64)
			if err != nil {
				return nil, CError{fmt.Sprintf("Line number %d: %s", i+3, err.Error()), []string{"strconv.ParseFloat", "XYZRead"}}
			}
		}
	}
	mcoords, err := v3.NewMatrix(coords)
	if err != nil {
		return nil, errDecorate(err, "XYZRead")
	}
	return NewSystem(atoms, mcoords, charge, multi)
}

//XYZWrite writes the system S in xyz format to w.
func XYZWrite(w io.Writer, S *System) error {
	if _, err := fmt.Fprintf(w, "%-4d\n\n", S.Len()); err != nil {
		return err
	}
	for i := 0; i < S.Len(); i++ {
		c := S.Coords(i)
		if _, err := fmt.Fprintf(w, "%-2s  %12.6f%12.6f%12.6f\n", S.atoms[i].Symbol, c[0], c[1], c[2]); err != nil {
			return err
		}
	}
	return nil
}
