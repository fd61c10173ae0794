/*
 * checkpoint.go, part of pbembed.
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

package pbe

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rmera/pbembed/ckpt"
	"github.com/rmera/pbembed/dmat"
)

//Names of the matrices in a checkpoint.
const (
	ckOverlap     = "overlap"
	ckEnvFock     = "environment_fock"
	ckActive      = "active_density"
	ckEnvironment = "environment_density"
	ckProjection  = "projection"
	ckPotential   = "potential"
	ckSubsystem   = "subsystem_density"
)

func formatInts(s []int) string {
	f := make([]string, len(s))
	for i, v := range s {
		f[i] = strconv.Itoa(v)
	}
	return strings.Join(f, ",")
}

func parseInts(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	f := strings.Split(s, ",")
	ret := make([]int, len(f))
	var err error
	for i, v := range f {
		if ret[i], err = strconv.Atoi(v); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

//SaveState writes st to the checkpoint file name.
func SaveState(name string, st *State) error {
	g := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	header := map[string]string{
		"run_id":             st.RunID,
		"status":             st.Status.String(),
		"active_atoms":       formatInts(st.ActiveAtoms),
		"nactive":            strconv.Itoa(st.NActive),
		"natoms":             strconv.Itoa(st.NAtoms),
		"high_level":         strconv.FormatBool(st.HighLevel),
		"environment_energy": g(st.EnvironmentEnergy),
		"reference_energy":   g(st.ReferenceEnergy),
		"subsystem_energy":   g(st.SubsystemEnergy),
		"corrected":          strconv.FormatBool(st.Corrected),
		"iterations":         strconv.Itoa(st.Iterations),
		"converged":          strconv.FormatBool(st.Converged),
		"last_delta":         g(st.LastDelta),
	}
	if st.KeptAtoms != nil {
		header["kept_atoms"] = formatInts(st.KeptAtoms)
	}
	if st.BasisAtoms != nil {
		header["basis_atoms"] = formatInts(st.BasisAtoms)
	}
	mats := []struct {
		name string
		M    *dmat.Matrix
	}{
		{ckOverlap, st.Overlap},
		{ckEnvFock, st.EnvironmentFock},
		{ckActive, st.ActiveDensity},
		{ckEnvironment, st.EnvironmentDensity},
		{ckProjection, st.Projection},
		{ckPotential, st.Potential},
		{ckSubsystem, st.SubsystemDensity},
	}
	n := 0
	for _, m := range mats {
		if m.M != nil {
			n++
		}
	}
	W, err := ckpt.NewWriter(name, n, header)
	if err != nil {
		return err
	}
	for _, m := range mats {
		if m.M == nil {
			continue
		}
		if err := W.WNext(m.name, m.M); err != nil {
			W.Close()
			return err
		}
	}
	return W.Close()
}

//LoadState reads a State from the checkpoint file name.
func LoadState(name string) (*State, error) {
	R, header, err := ckpt.New(name)
	if err != nil {
		return nil, err
	}
	defer R.Close()
	mats, err := R.ReadAll()
	if err != nil {
		return nil, err
	}
	st := &State{RunID: header["run_id"]}
	var ok bool
	if st.Status, ok = ParseStatus(header["status"]); !ok {
		return nil, fmt.Errorf("pbe.LoadState: unknown status %q in %s", header["status"], name)
	}
	var perr error
	float := func(key string) float64 {
		v, err := strconv.ParseFloat(header[key], 64)
		if err != nil && perr == nil {
			perr = fmt.Errorf("pbe.LoadState: %s in %s: %w", key, name, err)
		}
		return v
	}
	integer := func(key string) int {
		v, err := strconv.Atoi(header[key])
		if err != nil && perr == nil {
			perr = fmt.Errorf("pbe.LoadState: %s in %s: %w", key, name, err)
		}
		return v
	}
	boolean := func(key string) bool {
		v, err := strconv.ParseBool(header[key])
		if err != nil && perr == nil {
			perr = fmt.Errorf("pbe.LoadState: %s in %s: %w", key, name, err)
		}
		return v
	}
	st.NActive = integer("nactive")
	if header["natoms"] != "" {
		st.NAtoms = integer("natoms")
	}
	if header["high_level"] != "" {
		st.HighLevel = boolean("high_level")
	}
	st.Iterations = integer("iterations")
	st.EnvironmentEnergy = float("environment_energy")
	st.ReferenceEnergy = float("reference_energy")
	st.SubsystemEnergy = float("subsystem_energy")
	st.LastDelta = float("last_delta")
	st.Corrected = boolean("corrected")
	st.Converged = boolean("converged")
	if perr != nil {
		return nil, perr
	}
	if st.ActiveAtoms, err = parseInts(header["active_atoms"]); err != nil {
		return nil, fmt.Errorf("pbe.LoadState: active_atoms in %s: %w", name, err)
	}
	if st.KeptAtoms, err = parseInts(header["kept_atoms"]); err != nil {
		return nil, fmt.Errorf("pbe.LoadState: kept_atoms in %s: %w", name, err)
	}
	if st.BasisAtoms, err = parseInts(header["basis_atoms"]); err != nil {
		return nil, fmt.Errorf("pbe.LoadState: basis_atoms in %s: %w", name, err)
	}
	st.Overlap = mats[ckOverlap]
	st.EnvironmentFock = mats[ckEnvFock]
	st.ActiveDensity = mats[ckActive]
	st.EnvironmentDensity = mats[ckEnvironment]
	st.Projection = mats[ckProjection]
	st.Potential = mats[ckPotential]
	st.SubsystemDensity = mats[ckSubsystem]
	return st, nil
}
