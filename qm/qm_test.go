/*
 * qm_test.go, part of pbembed.
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

package qm

import (
	"errors"
	"testing"

	chem "github.com/rmera/pbembed"
	"github.com/rmera/pbembed/bridge"
	"github.com/rmera/pbembed/dmat"
	v3 "github.com/rmera/pbembed/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func system(Te *testing.T, symbols []string, xs []float64, charge int) *chem.System {
	ats := make([]*chem.Atom, len(symbols))
	coords := make([]float64, 0, 3*len(xs))
	for i, s := range symbols {
		ats[i] = &chem.Atom{Symbol: s}
		coords = append(coords, xs[i], 0, 0)
	}
	c, err := v3.NewMatrix(coords)
	require.NoError(Te, err)
	S, err := chem.NewSystem(ats, c, charge, 1)
	require.NoError(Te, err)
	return S
}

func TestBoys(Te *testing.T) {
	assert.InDelta(Te, 1.0, boys0(0), 1e-15)
	assert.InDelta(Te, 0.746824132812427, boys0(1), 1e-12)
	assert.InDelta(Te, boys0(1e-13), boys0(2e-12), 1e-11)
}

func TestReferenceEnergies(Te *testing.T) {
	cases := []struct {
		name    string
		basis   string
		symbols []string
		xs      []float64
		energy  float64
		tol     float64
	}{
		{"H2 sto-3g", "sto-3g", []string{"H", "H"}, []float64{0, 0.7408}, -1.1167, 2e-4},
		{"He sto-3g", "sto-3g", []string{"He"}, []float64{0}, -2.807784, 1e-5},
		{"H2 6-31g", "6-31G", []string{"H", "H"}, []float64{0, 0.7408}, -1.1268, 1e-3},
	}
	for _, c := range cases {
		R := NewRHF(&Calc{Basis: c.basis})
		rep, err := R.Run(bridge.Spec{Name: c.name, System: system(Te, c.symbols, c.xs, 0)})
		require.NoError(Te, err, c.name)
		assert.True(Te, rep.Converged, c.name)
		assert.InDelta(Te, c.energy, rep.Energy, c.tol, c.name)
		require.NotNil(Te, rep.Fock)
	}
}

func TestCallbackOrder(Te *testing.T) {
	R := NewRHF(nil)
	type call struct {
		phase bridge.Phase
		iter  int
	}
	var calls []call
	for _, p := range bridge.Phases {
		phase := p
		R.SetCallback(phase, func(iter int, raw dmat.Raw) (*dmat.Raw, error) {
			calls = append(calls, call{phase, iter})
			return nil, nil
		})
	}
	rep, err := R.Run(bridge.Spec{Name: "h4", System: system(Te, []string{"H", "H", "H", "H"}, []float64{0, 0.74, 2.74, 3.48}, 0)})
	require.NoError(Te, err)
	require.True(Te, rep.Converged)
	require.Len(Te, calls, 1+2*rep.Iterations)
	assert.Equal(Te, call{bridge.OverlapReady, 0}, calls[0])
	for i := 1; i <= rep.Iterations; i++ {
		assert.Equal(Te, call{bridge.FockRequested, i}, calls[2*i-1])
		assert.Equal(Te, call{bridge.DensityReady, i}, calls[2*i])
	}
}

//Adding a multiple of the overlap to the Fock matrix shifts every orbital energy
//by the same amount, so the density and the energy must not change.
func TestFockReplacement(Te *testing.T) {
	S := system(Te, []string{"H", "H"}, []float64{0, 0.7408}, 0)
	plain, err := NewRHF(nil).Run(bridge.Spec{Name: "plain", System: S})
	require.NoError(Te, err)
	R := NewRHF(nil)
	ctx, err := R.Context(bridge.Spec{Name: "shifted", System: S})
	require.NoError(Te, err)
	var ovl *dmat.Matrix
	R.SetCallback(bridge.OverlapReady, func(iter int, raw dmat.Raw) (*dmat.Raw, error) {
		var err error
		ovl, err = ctx.Wrap(raw, dmat.Overlap)
		return nil, err
	})
	R.SetCallback(bridge.FockRequested, func(iter int, raw dmat.Raw) (*dmat.Raw, error) {
		F, err := ctx.Wrap(raw, dmat.Fock)
		if err != nil {
			return nil, err
		}
		F, err = dmat.Add(F, dmat.Scale(3, ovl))
		if err != nil {
			return nil, err
		}
		out, err := ctx.ToNative(F)
		return &out, err
	})
	shifted, err := R.Run(bridge.Spec{Name: "shifted", System: S})
	require.NoError(Te, err)
	assert.InDelta(Te, plain.Energy, shifted.Energy, 1e-9)
}

func TestCallbackAbort(Te *testing.T) {
	boom := errors.New("boom")
	R := NewRHF(nil)
	n := 0
	R.SetCallback(bridge.DensityReady, func(iter int, raw dmat.Raw) (*dmat.Raw, error) {
		n++
		if iter == 2 {
			return nil, boom
		}
		return nil, nil
	})
	_, err := R.Run(bridge.Spec{Name: "h2", System: system(Te, []string{"H", "H"}, []float64{0, 0.74}, 0)})
	assert.ErrorIs(Te, err, boom)
	assert.Equal(Te, 2, n)

	//A replacement Fock matrix of the wrong size stops the calculation.
	R = NewRHF(nil)
	R.SetCallback(bridge.FockRequested, func(iter int, raw dmat.Raw) (*dmat.Raw, error) {
		return &dmat.Raw{Data: []float64{1}, Rows: 1, Cols: 1}, nil
	})
	_, err = R.Run(bridge.Spec{Name: "h2", System: system(Te, []string{"H", "H"}, []float64{0, 0.74}, 0)})
	var serr *dmat.ShapeMismatchError
	assert.ErrorAs(Te, err, &serr)
}

func TestNotReentrant(Te *testing.T) {
	R := NewRHF(nil)
	S := system(Te, []string{"H", "H"}, []float64{0, 0.74}, 0)
	var inner error
	R.SetCallback(bridge.OverlapReady, func(iter int, raw dmat.Raw) (*dmat.Raw, error) {
		_, inner = R.Run(bridge.Spec{Name: "inner", System: S})
		return nil, nil
	})
	_, err := R.Run(bridge.Spec{Name: "outer", System: S})
	require.NoError(Te, err)
	assert.ErrorIs(Te, inner, ErrBusy)
}

func TestGhosts(Te *testing.T) {
	He := system(Te, []string{"He"}, []float64{0}, 0)
	HeH := system(Te, []string{"He", "H"}, []float64{0, 1.0}, 0)
	alone, err := NewRHF(nil).Run(bridge.Spec{Name: "He", System: He})
	require.NoError(Te, err)
	R := NewRHF(nil)
	ghost, err := R.Run(bridge.Spec{Name: "He+ghost", System: HeH, Ghosts: []int{1}})
	require.NoError(Te, err)
	assert.True(Te, ghost.Converged)
	//The ghost functions can only lower the variational energy.
	assert.LessOrEqual(Te, ghost.Energy, alone.Energy+1e-10)
	assert.Greater(Te, ghost.Energy, alone.Energy-0.01)
	ctx, err := R.Context(bridge.Spec{Name: "He+ghost", System: HeH})
	require.NoError(Te, err)
	assert.Equal(Te, 2, ctx.NBasis)

	_, err = R.Run(bridge.Spec{Name: "odd", System: system(Te, []string{"H", "H"}, []float64{0, 0.74}, 0), Ghosts: []int{0}})
	assert.ErrorIs(Te, err, ErrOpenShell)
	_, err = R.Run(bridge.Spec{Name: "bad", System: HeH, Ghosts: []int{2}})
	assert.Error(Te, err)
}

func TestEnergyAt(Te *testing.T) {
	S := system(Te, []string{"H", "H", "H", "H"}, []float64{0, 0.74, 2.74, 3.48}, 0)
	R := NewRHF(nil)
	var last dmat.Raw
	R.SetCallback(bridge.DensityReady, func(iter int, raw dmat.Raw) (*dmat.Raw, error) {
		last = raw.Copy()
		return nil, nil
	})
	spec := bridge.Spec{Name: "h4", System: S}
	rep, err := R.Run(spec)
	require.NoError(Te, err)
	e, err := R.EnergyAt(spec, last)
	require.NoError(Te, err)
	assert.InDelta(Te, rep.Energy, e, 1e-12)

	_, err = R.EnergyAt(spec, dmat.Raw{Data: make([]float64, 4), Rows: 2, Cols: 2})
	var serr *dmat.ShapeMismatchError
	assert.ErrorAs(Te, err, &serr)
}

func TestNativeConventions(Te *testing.T) {
	S := system(Te, []string{"H", "H", "H", "H"}, []float64{0, 0.74, 2.74, 3.48}, 0)
	ref, err := NewRHF(nil).Run(bridge.Spec{Name: "ref", System: S})
	require.NoError(Te, err)
	calcs := []Calc{
		{Layout: dmat.ColMajor, Storage: dmat.PackedLower},
		{Storage: dmat.PackedUpper},
		{Precision: dmat.Single},
	}
	for _, c := range calcs {
		c := c
		R := NewRHF(&c)
		spec := bridge.Spec{Name: "conv", System: S}
		ctx, err := R.Context(spec)
		require.NoError(Te, err)
		assert.Equal(Te, c.Storage, ctx.Storage)
		R.SetCallback(bridge.FockRequested, func(iter int, raw dmat.Raw) (*dmat.Raw, error) {
			F, err := ctx.Wrap(raw, dmat.Fock)
			if err != nil {
				return nil, err
			}
			out, err := ctx.ToNative(F)
			return &out, err
		})
		rep, err := R.Run(spec)
		require.NoError(Te, err)
		tol := 1e-9
		if c.Precision == dmat.Single {
			tol = 1e-5
		}
		assert.InDelta(Te, ref.Energy, rep.Energy, tol)
	}
}

func TestBasisAtoms(Te *testing.T) {
	S := system(Te, []string{"H", "H", "He"}, []float64{0, 0.74, 3}, 0)
	ba, err := NewRHF(&Calc{Basis: "6-31g"}).BasisAtoms(bridge.Spec{System: S})
	require.NoError(Te, err)
	assert.Equal(Te, []int{0, 0, 1, 1, 2, 2}, ba)
	_, err = NewRHF(&Calc{Basis: "cc-pvdz"}).BasisAtoms(bridge.Spec{System: S})
	assert.ErrorIs(Te, err, ErrBasis)
	_, err = NewRHF(nil).BasisAtoms(bridge.Spec{System: system(Te, []string{"C"}, []float64{0}, 0)})
	assert.ErrorIs(Te, err, ErrBasis)
}

func TestHartree(Te *testing.T) {
	He := system(Te, []string{"He"}, []float64{0}, 0)
	spec := bridge.Spec{Name: "he", System: He}
	hf, err := NewRHF(nil).Run(spec)
	require.NoError(Te, err)
	R := NewRHF(&Calc{Method: "Hartree"})
	rep, err := R.Run(spec)
	require.NoError(Te, err)
	assert.True(Te, rep.Converged)
	//the self-interaction is not cancelled without exchange
	assert.Greater(Te, rep.Energy, hf.Energy+0.1)

	_, err = NewRHF(&Calc{Method: "MP2"}).Run(spec)
	assert.ErrorIs(Te, err, ErrMethod)
}

func TestFockAt(Te *testing.T) {
	S := system(Te, []string{"H", "H", "H", "H"}, []float64{0, 0.74, 2.74, 3.48}, 0)
	R := NewRHF(nil)
	var last dmat.Raw
	R.SetCallback(bridge.DensityReady, func(iter int, raw dmat.Raw) (*dmat.Raw, error) {
		last = raw.Copy()
		return nil, nil
	})
	spec := bridge.Spec{Name: "h4", System: S}
	rep, err := R.Run(spec)
	require.NoError(Te, err)
	F, err := R.FockAt(spec, last)
	require.NoError(Te, err)
	assert.InDeltaSlice(Te, rep.Fock.Data, F.Data, 1e-12)

	//without exchange the diagonal is less attractive
	FH, err := NewRHF(&Calc{Method: "hartree"}).FockAt(spec, last)
	require.NoError(Te, err)
	for i := 0; i < 4; i++ {
		assert.Greater(Te, FH.Data[i*4+i], F.Data[i*4+i])
	}
	_, err = R.FockAt(spec, dmat.Raw{Data: make([]float64, 4), Rows: 2, Cols: 2})
	var serr *dmat.ShapeMismatchError
	assert.ErrorAs(Te, err, &serr)
}
