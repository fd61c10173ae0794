/*
 * integrals.go, part of pbembed.
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
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext"
)

//nucleus is a point charge, in Bohr.
type nucleus struct {
	z      float64
	center [3]float64
}

func dist2(a, b [3]float64) float64 {
	x, y, z := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return x*x + y*y + z*z
}

//gaussianCenter returns the center of the product of two Gaussians.
func gaussianCenter(a float64, A [3]float64, b float64, B [3]float64) [3]float64 {
	p := a + b
	return [3]float64{(a*A[0] + b*B[0]) / p, (a*A[1] + b*B[1]) / p, (a*A[2] + b*B[2]) / p}
}

//boys0 is the zeroth order Boys function.
func boys0(x float64) float64 {
	if x < 1e-12 {
		return 1 - x/3
	}
	return mathext.GammaIncReg(0.5, x) * math.Gamma(0.5) / (2 * math.Sqrt(x))
}

//primitive pair loop, with normalization and contraction coefficients included.
func pairs(f, g *sfunc, fn func(a, b, w float64) float64) float64 {
	var ret float64
	for _, p := range f.prims {
		for _, q := range g.prims {
			w := p.coeff * q.coeff * norm(p.alpha) * norm(q.alpha)
			ret += fn(p.alpha, q.alpha, w)
		}
	}
	return ret
}

func overlap(f, g *sfunc) float64 {
	r2 := dist2(f.center, g.center)
	return pairs(f, g, func(a, b, w float64) float64 {
		p := a + b
		return w * math.Pow(math.Pi/p, 1.5) * math.Exp(-a*b/p*r2)
	})
}

func kinetic(f, g *sfunc) float64 {
	r2 := dist2(f.center, g.center)
	return pairs(f, g, func(a, b, w float64) float64 {
		p := a + b
		q := a * b / p
		s := math.Pow(math.Pi/p, 1.5) * math.Exp(-q*r2)
		return w * q * (3 - 2*q*r2) * s
	})
}

func attraction(f, g *sfunc, nuclei []nucleus) float64 {
	r2 := dist2(f.center, g.center)
	return pairs(f, g, func(a, b, w float64) float64 {
		p := a + b
		P := gaussianCenter(a, f.center, b, g.center)
		pre := 2 * math.Pi / p * math.Exp(-a*b/p*r2)
		var v float64
		for _, n := range nuclei {
			v -= n.z * boys0(p*dist2(P, n.center))
		}
		return w * pre * v
	})
}

//repulsion returns the two-electron integral (fg|hk).
func repulsion(f, g, h, k *sfunc) float64 {
	rfg := dist2(f.center, g.center)
	rhk := dist2(h.center, k.center)
	var ret float64
	for _, pf := range f.prims {
		for _, pg := range g.prims {
			p := pf.alpha + pg.alpha
			P := gaussianCenter(pf.alpha, f.center, pg.alpha, g.center)
			efg := math.Exp(-pf.alpha * pg.alpha / p * rfg)
			wfg := pf.coeff * pg.coeff * norm(pf.alpha) * norm(pg.alpha)
			for _, ph := range h.prims {
				for _, pk := range k.prims {
					q := ph.alpha + pk.alpha
					Q := gaussianCenter(ph.alpha, h.center, pk.alpha, k.center)
					ehk := math.Exp(-ph.alpha * pk.alpha / q * rhk)
					w := wfg * ph.coeff * pk.coeff * norm(ph.alpha) * norm(pk.alpha)
					pre := 2 * math.Pow(math.Pi, 2.5) / (p * q * math.Sqrt(p+q))
					ret += w * pre * efg * ehk * boys0(p*q/(p+q)*dist2(P, Q))
				}
			}
		}
	}
	return ret
}

//integrals holds every integral needed for an SCF.
type integrals struct {
	s    *mat.SymDense
	h    *mat.SymDense //kinetic plus nuclear attraction
	eri  []float64     //(ij|kl) at ((i*n+j)*n+k)*n+l
	n    int
	enuc float64
	kx   float64 //fraction of exchange: 1 for Hartree-Fock, 0 for Hartree
}

func (I *integrals) at(i, j, k, l int) float64 {
	n := I.n
	return I.eri[((i*n+j)*n+k)*n+l]
}

func computeIntegrals(basis []*sfunc, nuclei []nucleus, kx float64) *integrals {
	n := len(basis)
	I := &integrals{n: n, s: mat.NewSymDense(n, nil), h: mat.NewSymDense(n, nil), eri: make([]float64, n*n*n*n), kx: kx}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			I.s.SetSym(i, j, overlap(basis[i], basis[j]))
			I.h.SetSym(i, j, kinetic(basis[i], basis[j])+attraction(basis[i], basis[j], nuclei))
		}
	}
	//8-fold permutational symmetry of real s functions.
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			for k := 0; k < n; k++ {
				for l := 0; l <= k; l++ {
					if i*(i+1)/2+j < k*(k+1)/2+l {
						continue
					}
					v := repulsion(basis[i], basis[j], basis[k], basis[l])
					for _, idx := range [][4]int{{i, j, k, l}, {j, i, k, l}, {i, j, l, k}, {j, i, l, k},
						{k, l, i, j}, {l, k, i, j}, {k, l, j, i}, {l, k, j, i}} {
						I.eri[((idx[0]*n+idx[1])*n+idx[2])*n+idx[3]] = v
					}
				}
			}
		}
	}
	for a := range nuclei {
		for b := 0; b < a; b++ {
			I.enuc += nuclei[a].z * nuclei[b].z / math.Sqrt(dist2(nuclei[a].center, nuclei[b].center))
		}
	}
	return I
}

//twoElectron returns G(D) = J(D) - kx*K(D)/2, for the closed-shell density D.
func (I *integrals) twoElectron(D mat.Matrix) *mat.Dense {
	n := I.n
	G := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var g float64
			for k := 0; k < n; k++ {
				for l := 0; l < n; l++ {
					g += D.At(k, l) * (I.at(i, j, k, l) - 0.5*I.kx*I.at(i, l, k, j))
				}
			}
			G.Set(i, j, g)
		}
	}
	return G
}

//fock returns F(D) = h + G(D).
func (I *integrals) fock(D mat.Matrix) *mat.Dense {
	F := I.twoElectron(D)
	F.Add(F, I.h)
	return F
}

//energy returns the electronic plus nuclear energy for the density D, given F = F(D).
func (I *integrals) energy(D, F mat.Matrix) float64 {
	var e float64
	n := I.n
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			e += D.At(j, i) * (I.h.At(i, j) + F.At(i, j))
		}
	}
	return e/2 + I.enuc
}
