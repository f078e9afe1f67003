package lime

import (
	"fmt"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// buildLaplacian assembles the 4-neighbor weighted graph Laplacian F of an
// n×m pixel grid from the directional weight maps. Each undirected edge
// carries a single weight (wx at the right cell for horizontal edges, wy at
// the lower cell for vertical edges), so F is symmetric and every row sums
// to zero. Neighbors outside the grid contribute no edge.
//
// Entries are accumulated as coordinate triples and compacted once into CSR.
func buildLaplacian(wx, wy *mat.Dense) (*sparse.CSR, error) {
	if wx == nil || wy == nil {
		return nil, fmt.Errorf("%w: nil weight map", ErrShapeMismatch)
	}
	n, m := wx.Dims()
	if yn, ym := wy.Dims(); yn != n || ym != m {
		return nil, fmt.Errorf("%w: weight maps disagree: %dx%d vs %dx%d", ErrShapeMismatch, n, m, yn, ym)
	}

	nm := n * m
	rows := make([]int, 0, 5*nm)
	cols := make([]int, 0, 5*nm)
	data := make([]float64, 0, 5*nm)
	edge := func(p, q int, w float64) {
		rows = append(rows, p)
		cols = append(cols, q)
		data = append(data, -w)
	}

	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			p := i*m + j
			var diag float64
			if i > 0 { // up: the edge weight lives at the lower cell, p itself
				w := wy.At(i, j)
				edge(p, p-m, w)
				diag += w
			}
			if i < n-1 { // down
				w := wy.At(i+1, j)
				edge(p, p+m, w)
				diag += w
			}
			if j > 0 { // left: the edge weight lives at the right cell, p itself
				w := wx.At(i, j)
				edge(p, p-1, w)
				diag += w
			}
			if j < m-1 { // right
				w := wx.At(i, j+1)
				edge(p, p+1, w)
				diag += w
			}
			rows = append(rows, p)
			cols = append(cols, p)
			data = append(data, diag)
		}
	}
	return sparse.NewCOO(nm, nm, rows, cols, data).ToCSR(), nil
}

// solveSystem solves (I + lambda*F) x = flat(lum) and reshapes x back to
// n×m, row-major. F only couples 4-neighbors, so the system is banded with
// bandwidth m and a banded Cholesky factorization solves it directly; the
// factorization's working memory lives and dies inside this call.
func solveSystem(f *sparse.CSR, lambda float64, lum *mat.Dense) (*mat.Dense, error) {
	if lambda < 0 {
		return nil, fmt.Errorf("%w: lambda must be non-negative, got %g", ErrInvalidParameter, lambda)
	}
	n, m := lum.Dims()
	nm := n * m
	flat := make([]float64, nm)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			flat[i*m+j] = lum.At(i, j)
		}
	}
	if lambda == 0 {
		// A degenerates to the identity; the solve is a copy.
		return mat.NewDense(n, m, flat), nil
	}
	if fr, fc := f.Dims(); fr != nm || fc != nm {
		return nil, fmt.Errorf("%w: laplacian is %dx%d, want %dx%d", ErrShapeMismatch, fr, fc, nm, nm)
	}

	band := min(m, nm-1)
	a := mat.NewSymBandDense(nm, band, nil)
	for i := 0; i < nm; i++ {
		a.SetSymBand(i, i, 1)
	}
	f.DoNonZero(func(i, j int, v float64) {
		if j < i {
			return // F is symmetric, the upper triangle is enough
		}
		a.SetSymBand(i, j, a.At(i, j)+lambda*v)
	})

	var ch mat.BandCholesky
	if ok := ch.Factorize(a); !ok {
		// Cannot happen for strictly positive weights and lambda > 0; a
		// failure here means the Laplacian construction is broken.
		return nil, fmt.Errorf("%w: banded Cholesky factorization failed", ErrSingularSystem)
	}
	x := mat.NewVecDense(nm, nil)
	if err := ch.SolveVecTo(x, mat.NewVecDense(nm, flat)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularSystem, err)
	}

	out := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			out.Set(i, j, x.AtVec(i*m+j))
		}
	}
	if !allFinite(out) {
		return nil, fmt.Errorf("%w: non-finite solver output", ErrNumericalDegeneracy)
	}
	return out, nil
}
