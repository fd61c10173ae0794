/*
 * json_test.go, part of pbembed.
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
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	chem "github.com/rmera/pbembed"
	"github.com/rmera/pbembed/dmat"
	"github.com/rmera/pbembed/pbe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemRoundTrip(Te *testing.T) {
	S, err := chem.XYZFileRead("../testdata/h4.xyz", 0, 1)
	require.NoError(Te, err)
	var buf bytes.Buffer
	require.Nil(Te, SendSystem(S, &buf))
	S2, jerr := DecodeSystem(bufio.NewReader(&buf), S.Len(), 0)
	require.Nil(Te, jerr)
	assert.Equal(Te, S.Len(), S2.Len())
	for i := 0; i < S.Len(); i++ {
		assert.Equal(Te, S.Atom(i), S2.Atom(i))
		assert.Equal(Te, S.Coords(i), S2.Coords(i))
	}
}

func TestDecodeSystemErrors(Te *testing.T) {
	in := map[string]string{
		"missing atom":   `{"Symbol":"H"}` + "\n" + `{"Coords":[0,0,0]}` + "\n",
		"missing coords": `{"Symbol":"H"}` + "\n" + `{"Coords":[0,0,0]}` + "\n" + `{"Symbol":"H"}` + "\n",
		"short coords":   `{"Symbol":"H"}` + "\n" + `{"Coords":[0,0]}` + "\n" + `{"Symbol":"H"}` + "\n" + `{"Coords":[0,0,1]}` + "\n",
		"bad element":    `{"Symbol":"Qq"}` + "\n" + `{"Coords":[0,0,0]}` + "\n" + `{"Symbol":"H"}` + "\n" + `{"Coords":[0,0,1]}` + "\n",
	}
	for name, s := range in {
		_, jerr := DecodeSystem(bufio.NewReader(strings.NewReader(s)), 2, 0)
		require.NotNil(Te, jerr, name)
		assert.True(Te, jerr.InSystem, name)
	}
}

func TestDecodeOptions(Te *testing.T) {
	O, jerr := DecodeOptions(bufio.NewReader(strings.NewReader(`{"Atoms":4,"Basis":"6-31g","Embedding":{"ActiveAtoms":[0,1],"Environment":"refresh"}}` + "\n")))
	require.Nil(Te, jerr)
	assert.Equal(Te, 4, O.Atoms)
	assert.Equal(Te, "6-31g", O.Basis)
	assert.Equal(Te, []int{0, 1}, O.Embedding.ActiveAtoms)
	assert.Equal(Te, pbe.Refresh, O.Embedding.Environment)
	assert.Equal(Te, pbe.DefaultConfig().LevelShift, O.Embedding.LevelShift)

	for _, bad := range []string{"", "{", `{"Atoms":0,"Embedding":{"ActiveAtoms":[0]}}`, `{"Atoms":2,"Embedding":{"Environment":"thawed"}}`, `{"Atoms":2,"Embedding":{"ActiveAtoms":[0],"ActiveCount":1}}`} {
		_, jerr := DecodeOptions(bufio.NewReader(strings.NewReader(bad + "\n")))
		require.NotNil(Te, jerr, bad)
		assert.True(Te, jerr.InOptions, bad)
	}
}

func TestError(Te *testing.T) {
	jerr := NewError("process", "Run", assert.AnError)
	var buf bytes.Buffer
	require.NoError(Te, jerr.Send(&buf))
	var back Error
	require.NoError(Te, json.Unmarshal(buf.Bytes(), &back))
	assert.True(Te, back.IsError)
	assert.True(Te, back.InProcess)
	assert.Equal(Te, assert.AnError.Error(), back.Message)
	assert.Equal(Te, []string{"main"}, jerr.Decorate("main"))
}

func TestInfo(Te *testing.T) {
	st := &pbe.State{Status: pbe.Converged}
	R := &pbe.Result{TotalEnergy: -2, Converged: true, Iterations: 1,
		SubsystemDensity: dmat.FromSlice(dmat.Density, 2, 2, []float64{1, 0.5, 0.5, 1})}
	var buf bytes.Buffer
	require.Nil(Te, NewInfo(st, R, true).Send(&buf))
	var back Info
	require.NoError(Te, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(Te, "converged", back.Status)
	assert.Equal(Te, -2.0, back.TotalEnergy)
	assert.Equal(Te, [][]float64{{1, 0.5}, {0.5, 1}}, back.SubsystemDensity)
	assert.Nil(Te, NewInfo(st, R, false).SubsystemDensity)
}
