/*
 * plot.go, part of pbembed.
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

//Package chemplot draws plots of embedding results.
package chemplot

import (
	"fmt"
	"image/color"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

//PopulationPlot draws, side by side for each atom, the Mulliken populations of the
//embedded subsystem density (active) and of the environment density (env), and saves
//the plot to filename. The format is taken from the extension (png, svg, pdf, ...).
//If labels is nil, atoms are labeled by their index.
func PopulationPlot(active, env []float64, labels []string, title, filename string) error {
	if len(active) == 0 || len(active) != len(env) {
		return fmt.Errorf("chemplot: %d active and %d environment populations", len(active), len(env))
	}
	if labels == nil {
		labels = make([]string, len(active))
		for i := range labels {
			labels[i] = strconv.Itoa(i)
		}
	}
	if len(labels) != len(active) {
		return fmt.Errorf("chemplot: %d labels for %d atoms", len(labels), len(active))
	}
	p := plot.New()
	p.Title.Padding = 3 * vg.Millimeter
	p.Title.Text = title
	p.X.Label.Text = "Atom"
	p.Y.Label.Text = "Electrons"
	w := vg.Points(10)
	a, err := plotter.NewBarChart(plotter.Values(active), w)
	if err != nil {
		return err
	}
	a.Color = color.RGBA{R: 200, G: 60, B: 40, A: 255}
	a.LineStyle.Width = vg.Length(0)
	a.Offset = -w / 2
	e, err := plotter.NewBarChart(plotter.Values(env), w)
	if err != nil {
		return err
	}
	e.Color = color.RGBA{R: 40, G: 90, B: 200, A: 255}
	e.LineStyle.Width = vg.Length(0)
	e.Offset = w / 2
	p.Add(plotter.NewGrid(), a, e)
	p.Legend.Add("subsystem", a)
	p.Legend.Add("environment", e)
	p.Legend.Top = true
	p.NominalX(labels...)
	width := vg.Length(len(active))*3*w + 2*vg.Inch
	return p.Save(width, 3*vg.Inch, filename)
}
