/*
 * input.go, part of pbembed.
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

package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/rmera/pbembed/pbe"
	"github.com/rmera/pbembed/qm"
	"gopkg.in/yaml.v3"
)

//input is the yaml input of the run command.
type input struct {
	Geometry           string     `yaml:"geometry" validate:"required"`
	Charge             int        `yaml:"charge"`
	Method             string     `yaml:"method"`
	Basis              string     `yaml:"basis"`
	SCFConvergence     float64    `yaml:"scf_convergence" validate:"gte=0"`
	DensityConvergence float64    `yaml:"density_convergence" validate:"gte=0"`
	DIIS               *bool      `yaml:"diis"`
	Embedding          pbe.Config `yaml:"embedding"`
	//Optional method for the subsystem. The basis must be the one of the whole system.
	HighLevel *level `yaml:"high_level"`
}

type level struct {
	Method string `yaml:"method" validate:"required"`
	Basis  string `yaml:"basis"`
}

func readInput(path string) (*input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	in := &input{Embedding: pbe.DefaultConfig()}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(in); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(in); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := in.Embedding.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if !filepath.IsAbs(in.Geometry) {
		in.Geometry = filepath.Join(dir, in.Geometry)
	}
	if c := in.Embedding.Checkpoint; c != "" && !filepath.IsAbs(c) {
		in.Embedding.Checkpoint = filepath.Join(dir, c)
	}
	return in, nil
}

//calc returns the solver options for the input. Zero values are filled by the solver.
func (I *input) calc() *qm.Calc {
	C := &qm.Calc{
		Method:             I.Method,
		Basis:              I.Basis,
		SCFConvergence:     I.SCFConvergence,
		DensityConvergence: I.DensityConvergence,
		MaxIterations:      I.Embedding.MaxSCFIterations,
		Precision:          I.Embedding.WorkingPrecision(),
		DIIS:               true,
	}
	if I.DIIS != nil {
		C.DIIS = *I.DIIS
	}
	return C
}

//highCalc returns the solver options for the subsystem, or nil if the
//whole run is at one level.
func (I *input) highCalc() *qm.Calc {
	if I.HighLevel == nil {
		return nil
	}
	C := I.calc()
	C.Method = I.HighLevel.Method
	if I.HighLevel.Basis != "" {
		C.Basis = I.HighLevel.Basis
	}
	return C
}
