/*
 * commands.go, part of pbembed.
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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	chem "github.com/rmera/pbembed"
	"github.com/rmera/pbembed/chemjson"
	"github.com/rmera/pbembed/chemplot"
	"github.com/rmera/pbembed/pbe"
	"github.com/rmera/pbembed/qm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type options struct {
	verbose    bool
	restart    string
	metricsOut string
	timeout    time.Duration
	log        *zap.Logger
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "pbembed",
		Short:         "Projection-based embedding of a subsystem in a whole-system SCF",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config := zap.NewProductionConfig()
			if o.verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			o.log, err = config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if o.log != nil {
				_ = o.log.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "log every SCF iteration and state transition")

	run := &cobra.Command{
		Use:   "run input.yaml",
		Short: "Run an embedding calculation",
		Long: `Runs the embedding calculation described by a yaml input file:

  geometry: h4.xyz      # xyz file, relative to the input file
  charge: 0
  basis: sto-3g
  embedding:
    active_atoms: [0, 1]
    environment: frozen  # or refresh
    projector: levelshift
    checkpoint: h4.pbe`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmbedding(cmd, args[0], o)
		},
	}
	run.Flags().StringVar(&o.restart, "restart", "", "resume from the environment stored in this checkpoint")
	run.Flags().StringVar(&o.metricsOut, "metrics", "", "write the run's metrics, in prometheus text format, to this file")
	run.Flags().DurationVar(&o.timeout, "timeout", 0, "abort the calculation after this long")

	var plotFile string
	inspect := &cobra.Command{
		Use:   "inspect checkpoint",
		Short: "Print the contents of a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectCheckpoint(cmd.OutOrStdout(), args[0], plotFile)
		},
	}
	inspect.Flags().StringVar(&plotFile, "plot", "", "plot the population of each atom to this file (png, svg, pdf)")
	var density bool
	pipe := &cobra.Command{
		Use:   "json",
		Short: "Read a job as line-delimited JSON from stdin, write the results as JSON to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJSON(cmd, o, density)
		},
	}
	pipe.Flags().BoolVar(&density, "density", false, "include the embedded density in the results")
	root.AddCommand(run, inspect, pipe)
	return root
}

func runEmbedding(cmd *cobra.Command, path string, o *options) error {
	in, err := readInput(path)
	if err != nil {
		return err
	}
	sys, err := chem.XYZFileRead(in.Geometry, in.Charge, 1)
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	solver := qm.NewRHF(in.calc(), qm.WithLogger(o.log))
	dopts := []pbe.Option{pbe.WithLogger(o.log), pbe.WithMetrics(pbe.NewMetrics(reg))}
	if hc := in.highCalc(); hc != nil {
		dopts = append(dopts, pbe.WithHighLevel(qm.NewRHF(hc, qm.WithLogger(o.log.Named("high")))))
	}
	D := pbe.New(solver, in.Embedding, dopts...)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	var st *pbe.State
	if o.restart != "" {
		var prev *pbe.State
		if prev, err = pbe.LoadState(o.restart); err != nil {
			return err
		}
		st, err = D.Resume(ctx, sys, prev)
	} else {
		st, err = D.Run(ctx, sys)
	}
	if o.metricsOut != "" {
		if merr := prometheus.WriteToTextfile(o.metricsOut, reg); merr != nil {
			o.log.Warn("metrics not written", zap.String("file", o.metricsOut), zap.Error(merr))
		}
	}
	out := cmd.OutOrStdout()
	if err != nil {
		var f *pbe.Failure
		if errors.As(err, &f) && f.State.HasSubsystem() {
			fmt.Fprintf(out, "Embedding failed in %s. Results of the last complete iteration:\n", f.Status)
			if R, aerr := pbe.Assemble(f.State); aerr == nil {
				printResult(out, f.State, R)
			}
		}
		return err
	}
	R, err := pbe.Assemble(st)
	if err != nil {
		return err
	}
	printResult(out, st, R)
	return nil
}

//runJSON runs a job received through chemjson. Errors are also sent to the caller as JSON.
func runJSON(cmd *cobra.Command, o *options, density bool) error {
	out := cmd.OutOrStdout()
	fail := func(jerr *chemjson.Error) error {
		jerr.Decorate("runJSON")
		if err := jerr.Send(out); err != nil {
			o.log.Error("can't send error", zap.Error(err))
		}
		return jerr
	}
	in := bufio.NewReader(cmd.InOrStdin())
	opts, jerr := chemjson.DecodeOptions(in)
	if jerr != nil {
		return fail(jerr)
	}
	sys, jerr := chemjson.DecodeSystem(in, opts.Atoms, opts.Charge)
	if jerr != nil {
		return fail(jerr)
	}
	calc := &qm.Calc{Method: opts.Method, Basis: opts.Basis, MaxIterations: opts.Embedding.MaxSCFIterations,
		Precision: opts.Embedding.WorkingPrecision(), DIIS: true}
	dopts := []pbe.Option{pbe.WithLogger(o.log)}
	if opts.HighMethod != "" {
		hc := *calc
		hc.Method = opts.HighMethod
		dopts = append(dopts, pbe.WithHighLevel(qm.NewRHF(&hc, qm.WithLogger(o.log.Named("high")))))
	}
	D := pbe.New(qm.NewRHF(calc, qm.WithLogger(o.log)), opts.Embedding, dopts...)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	st, err := D.Run(ctx, sys)
	if err != nil {
		return fail(chemjson.NewError("process", "pbe.Driver.Run", err))
	}
	R, err := pbe.Assemble(st)
	if err != nil {
		return fail(chemjson.NewError("postprocess", "pbe.Assemble", err))
	}
	if jerr := chemjson.NewInfo(st, R, density).Send(out); jerr != nil {
		return fail(jerr)
	}
	return nil
}

func inspectCheckpoint(out io.Writer, name, plotFile string) error {
	st, err := pbe.LoadState(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Run:            %s\n", st.RunID)
	fmt.Fprintf(out, "Status:         %s\n", st.Status)
	fmt.Fprintf(out, "Active atoms:   %v (%d orbitals)\n", st.ActiveAtoms, st.NActive)
	if st.KeptAtoms != nil {
		fmt.Fprintf(out, "Kept atoms:     %v\n", st.KeptAtoms)
	}
	fmt.Fprintf(out, "Iterations:     %d\n", st.Iterations)
	if st.Overlap != nil {
		n, _ := st.Overlap.Dims()
		fmt.Fprintf(out, "Basis:          %d functions\n", n)
	}
	if !st.Status.Terminal() || !st.HasSubsystem() {
		return nil
	}
	R, err := pbe.Assemble(st)
	if err != nil {
		return err
	}
	printResult(out, st, R)
	if plotFile == "" {
		return nil
	}
	if R.ActiveCharges == nil {
		return fmt.Errorf("%s has no basis function map, can't compute atomic populations", name)
	}
	return chemplot.PopulationPlot(R.ActiveCharges, R.EnvironmentCharges, nil, "Run "+st.RunID, plotFile)
}

func printResult(out io.Writer, st *pbe.State, R *pbe.Result) {
	line := func(name string, e float64) {
		fmt.Fprintf(out, "%-22s %20.10f Eh %18.6f eV\n", name, e, e*chem.Hartree2eV)
	}
	line("Environment energy", R.EnvironmentEnergy)
	line("Subsystem energy", R.SubsystemEnergy)
	if st.HighLevel {
		fmt.Fprintln(out, "Subsystem computed at the high level")
	}
	if R.Corrected {
		line("Reference energy", R.ReferenceEnergy)
		line("Potential energy", R.PotentialEnergy)
	}
	line("Projection energy", R.ProjectionEnergy)
	line("Total energy", R.TotalEnergy)
	fmt.Fprintf(out, "Electrons: %.6f active, %.6f environment\n", R.ActivePopulation, R.EnvironmentPopulation)
	fmt.Fprintf(out, "Converged: %t after %d outer iterations (last change %g)\n", R.Converged, R.Iterations, st.LastDelta)
	if !R.Corrected {
		fmt.Fprintln(out, "The solver could not evaluate the reference energy: total energy uncorrected")
	}
}
