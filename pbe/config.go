/*
 * config.go, part of pbembed.
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
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rmera/pbembed/dmat"
	"github.com/rmera/pbembed/part"
	"github.com/rmera/pbembed/proj"
	"gopkg.in/yaml.v3"
)

//Environment policies
const (
	Frozen  = "frozen"  //one environment calculation, one embedded subsystem calculation
	Refresh = "refresh" //the environment is recomputed every outer iteration
)

//Projectors
const (
	LevelShift = "levelshift"
	Huzinaga   = "huzinaga"
)

//Config holds the options of an embedding run.
type Config struct {
	//The active region is given by one of ActiveAtoms, ActiveCount (the first atoms
	//of the system) or EmbedMask (a region label per atom, 1 active and 2 environment).
	ActiveAtoms         []int   `yaml:"active_atoms"`
	ActiveCount         int     `yaml:"active_count"`
	EmbedMask           []int   `yaml:"embed_mask"`
	LevelShift          float64 `yaml:"level_shift" validate:"gte=0"`
	Threshold           float64 `yaml:"threshold" validate:"gt=0"`
	MaxOuterIterations  int     `yaml:"max_outer_iterations" validate:"gte=0"`
	Precision           string  `yaml:"precision" validate:"oneof=single double"`
	Environment         string  `yaml:"environment" validate:"oneof=frozen refresh"`
	Projector           string  `yaml:"projector" validate:"oneof=levelshift huzinaga"`
	EmbeddingPotential  bool    `yaml:"embedding_potential"`
	FragmentCharge      int     `yaml:"fragment_charge"`
	TruncationThreshold float64 `yaml:"truncation_threshold" validate:"gte=0"`
	MaxSCFIterations    int     `yaml:"max_scf_iterations" validate:"gte=0"`
	Checkpoint          string  `yaml:"checkpoint"` //file to save the State after every outer iteration
}

//DefaultConfig returns the default options. The active region has no default.
func DefaultConfig() Config {
	return Config{
		LevelShift:         proj.DefaultMu,
		Threshold:          1e-6,
		MaxOuterIterations: 50,
		Precision:          "double",
		Environment:        Frozen,
		Projector:          LevelShift,
		EmbeddingPotential: true,
		MaxSCFIterations:   100,
	}
}

//ErrConfig is wrapped by every configuration error.
var ErrConfig = errors.New("pbe: invalid configuration")

var validate = validator.New(validator.WithRequiredStructEnabled())

//Validate checks the configuration.
func (C Config) Validate() error {
	if err := validate.Struct(C); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			v := verrs[0]
			return fmt.Errorf("%w: %s fails %q (%v)", ErrConfig, v.Namespace(), v.Tag(), v.Value())
		}
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	given := 0
	for _, set := range []bool{len(C.ActiveAtoms) > 0, C.ActiveCount != 0, len(C.EmbedMask) > 0} {
		if set {
			given++
		}
	}
	if given > 1 {
		return fmt.Errorf("%w: only one of active_atoms, active_count and embed_mask can be given", ErrConfig)
	}
	return nil
}

//Selection returns the indexes of the active atoms, for a system of natoms atoms.
//Errors in masks are *part.InvalidSelectionError. The indexes themselves are
//checked when the basis is partitioned.
func (C Config) Selection(natoms int) ([]int, error) {
	switch {
	case len(C.EmbedMask) > 0:
		return part.ActiveFromMask(C.EmbedMask, natoms)
	case C.ActiveCount != 0:
		mask, err := part.MaskFromCount(C.ActiveCount, natoms)
		if err != nil {
			return nil, err
		}
		return part.ActiveFromMask(mask, natoms)
	}
	return append([]int(nil), C.ActiveAtoms...), nil
}

//WorkingPrecision returns the precision in the configuration.
func (C Config) WorkingPrecision() dmat.Precision {
	p, _ := dmat.ParsePrecision(C.Precision)
	return p
}

//ParseConfig reads a yaml configuration. Options not given keep their default values.
//Unknown keys are an error.
func ParseConfig(data []byte) (Config, error) {
	C := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&C); err != nil {
		return C, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err := C.Validate(); err != nil {
		return C, err
	}
	return C, nil
}

//LoadConfig reads the yaml configuration file path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return ParseConfig(data)
}
