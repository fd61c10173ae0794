/*
 * json.go, part of pbembed.
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

package chemjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	chem "github.com/rmera/pbembed"
	"github.com/rmera/pbembed/pbe"
	v3 "github.com/rmera/pbembed/v3"
)

//Coords is a ready-to-serialize container for the coordinates of one atom.
type Coords struct {
	Coords []float64
}

//Error is an easily JSON-serializable error type.
type Error struct {
	deco          []string
	IsError       bool //If this is false (no error) all the other fields will be at their zero-values.
	InOptions     bool //If error, was it in parsing the options?
	InSystem      bool //Was it in reading the atoms?
	InProcess     bool
	InPostProcess bool //was it in preparing the output?
	Function      string
	Message       string
}

func (err *Error) Error() string { return fmt.Sprintf("In %s: %s", err.Function, err.Message) }

//Decorate will add the dec string to the decoration slice of strings of the error,
//and return the resulting slice.
func (err *Error) Decorate(dec string) []string {
	if dec == "" {
		return err.deco
	}
	err.deco = append(err.deco, dec)
	return err.deco
}

//Marshal serializes the error. Panics on failure.
func (err *Error) Marshal() []byte {
	ret, err2 := json.Marshal(err)
	if err2 != nil {
		panic(strings.Join([]string{err.Error(), err2.Error()}, " - "))
	}
	return ret
}

//Send writes the serialized error, as one line, to out.
func (err *Error) Send(out io.Writer) error {
	_, werr := out.Write(append(err.Marshal(), '\n'))
	return werr
}

//NewError takes an error and some additional info to create a json-marshal-able error.
//where is one of "options", "system", "postprocess", anything else is taken to be
//the embedding process itself.
func NewError(where, function string, err error) *Error {
	jerr := new(Error)
	jerr.IsError = true
	switch where {
	case "options":
		jerr.InOptions = true
	case "system":
		jerr.InSystem = true
	case "postprocess":
		jerr.InPostProcess = true
	default:
		jerr.InProcess = true
	}
	jerr.Function = function
	jerr.Message = err.Error()
	return jerr
}

//Options of an embedding job, passed from the calling program.
type Options struct {
	Atoms     int //atoms that follow the options
	Charge    int
	Method    string
	Basis     string
	//Method for the subsystem, empty to compute everything with Method.
	HighMethod string
	Embedding  pbe.Config
}

//DecodeOptions reads one line from stdin and decodes the Options in it.
//Embedding options not given take their default values.
func DecodeOptions(stdin *bufio.Reader) (*Options, *Error) {
	line, err := stdin.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, NewError("options", "DecodeOptions", err)
	}
	ret := &Options{Embedding: pbe.DefaultConfig()}
	if err = json.Unmarshal(line, ret); err != nil {
		return nil, NewError("options", "DecodeOptions", err)
	}
	if ret.Atoms <= 0 {
		return nil, NewError("options", "DecodeOptions", fmt.Errorf("%d atoms announced", ret.Atoms))
	}
	if err = ret.Embedding.Validate(); err != nil {
		return nil, NewError("options", "DecodeOptions", err)
	}
	return ret, nil
}

//DecodeSystem reads atomnumber atoms, each one a line with the atom followed by a line
//with its coordinates, and returns them as a closed-shell System with the given charge.
func DecodeSystem(stream *bufio.Reader, atomnumber, charge int) (*chem.System, *Error) {
	const funcname = "DecodeSystem" //for the error
	atoms := make([]*chem.Atom, 0, atomnumber)
	rawcoords := make([]float64, 0, 3*atomnumber)
	for i := 0; i < atomnumber; i++ {
		line, err := stream.ReadBytes('\n')
		if err != nil && len(line) == 0 {
			return nil, NewError("system", funcname, fmt.Errorf("expected %d atoms, found %d", atomnumber, i))
		}
		at := new(chem.Atom)
		if err = json.Unmarshal(line, at); err != nil {
			return nil, NewError("system", funcname, err)
		}
		atoms = append(atoms, at)
		line, err = stream.ReadBytes('\n')
		if err != nil && len(line) == 0 {
			return nil, NewError("system", funcname, fmt.Errorf("no coordinates for atom %d", i))
		}
		ctemp := new(Coords)
		if err = json.Unmarshal(line, ctemp); err != nil {
			return nil, NewError("system", funcname, err)
		}
		if len(ctemp.Coords) != 3 {
			return nil, NewError("system", funcname, fmt.Errorf("atom %d has %d coordinates", i, len(ctemp.Coords)))
		}
		rawcoords = append(rawcoords, ctemp.Coords...)
	}
	coords, err := v3.NewMatrix(rawcoords)
	if err != nil {
		return nil, NewError("system", funcname, err)
	}
	S, err := chem.NewSystem(atoms, coords, charge, 1)
	if err != nil {
		return nil, NewError("system", funcname, err)
	}
	return S, nil
}

//SendSystem encodes the atoms and coordinates of S, in the format read by DecodeSystem.
func SendSystem(S *chem.System, out io.Writer) *Error {
	enc := json.NewEncoder(out)
	c := new(Coords)
	for i := 0; i < S.Len(); i++ {
		if err := enc.Encode(S.Atom(i)); err != nil {
			return NewError("postprocess", "SendSystem", err)
		}
		v := S.Coords(i)
		c.Coords = v[:]
		if err := enc.Encode(c); err != nil {
			return NewError("postprocess", "SendSystem", err)
		}
	}
	return nil
}

//Info holds the results passed back to the calling program. Energies are in Hartree.
type Info struct {
	Status                string
	Converged             bool
	Corrected             bool
	Iterations            int
	TotalEnergy           float64
	SubsystemEnergy       float64
	ReferenceEnergy       float64
	EnvironmentEnergy     float64
	PotentialEnergy       float64
	ProjectionEnergy      float64
	ActivePopulation      float64
	EnvironmentPopulation float64
	SubsystemDensity      [][]float64 `json:",omitempty"`
}

//NewInfo collects the results of an embedding run. The embedded density is
//included only if density is true.
func NewInfo(st *pbe.State, R *pbe.Result, density bool) *Info {
	J := &Info{
		Status:                st.Status.String(),
		Converged:             R.Converged,
		Corrected:             R.Corrected,
		Iterations:            R.Iterations,
		TotalEnergy:           R.TotalEnergy,
		SubsystemEnergy:       R.SubsystemEnergy,
		ReferenceEnergy:       R.ReferenceEnergy,
		EnvironmentEnergy:     R.EnvironmentEnergy,
		PotentialEnergy:       R.PotentialEnergy,
		ProjectionEnergy:      R.ProjectionEnergy,
		ActivePopulation:      R.ActivePopulation,
		EnvironmentPopulation: R.EnvironmentPopulation,
	}
	if density && R.SubsystemDensity != nil {
		r, c := R.SubsystemDensity.Dims()
		J.SubsystemDensity = make([][]float64, r)
		for i := range J.SubsystemDensity {
			J.SubsystemDensity[i] = make([]float64, c)
			for j := range J.SubsystemDensity[i] {
				J.SubsystemDensity[i][j], _ = R.SubsystemDensity.At(i, j)
			}
		}
	}
	return J
}

//Send Marshals the info and writes it, as one line, to out.
func (J *Info) Send(out io.Writer) *Error {
	enc := json.NewEncoder(out)
	if err := enc.Encode(J); err != nil {
		return NewError("postprocess", "Info.Send", err)
	}
	return nil
}
