// Package lime estimates a smooth, edge-preserving illumination map from a
// single image and uses it to brighten low-light photographs. The map is
// refined by a weighted-least-squares solve: edge-stopping weights computed
// from luminance gradients, a sparse graph Laplacian over the pixel grid, one
// symmetric positive-definite linear system, and a gamma curve.
//
// The core works on in-memory float grids; decoding, luminance extraction
// and the final division live in the utils package.
package lime

import (
	"fmt"
	"math"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

type Options struct {
	// Gamma correction exponent applied to the refined map.
	// Ideal start: 0.6. Lower lifts shadows harder.
	Gamma float64
	// Balance between fidelity to the initial map and smoothness.
	// Ideal start: 0.15-0.3. Higher => smoother illumination, flatter detail.
	Lambda float64
	// Standard deviation of the Gaussian spatial affinity kernel.
	// Ideal start: 3. Larger pools gradients over a wider neighborhood.
	SpatialSigma float64
	// Side of the spatial affinity kernel. Must be odd.
	// Ideal start: 15. Weight pooling cost grows with its square.
	KernelSize int
	// Guard added to denominators; also the lower clip bound before gamma
	// correction. Keep small.
	Eps float64
}

func DefaultOptions() Options {
	return Options{
		Gamma:        0.6,
		Lambda:       0.2,
		SpatialSigma: 3,
		KernelSize:   15,
		Eps:          1e-3,
	}
}

// Refiner holds the intermediate products of one illumination refinement.
// Every stage reads its inputs and produces a fresh grid; nothing is mutated
// after it is built, and nothing persists across invocations.
type Refiner struct {
	Luminance    *mat.Dense  // caller-owned input, values in [0,1]
	Kernel       *mat.Dense  // spatial affinity kernel
	Wx, Wy       *mat.Dense  // directional smoothness weight maps
	Laplacian    *sparse.CSR // 4-neighbor weighted graph Laplacian
	Refined      *mat.Dense  // solution of (I+λF)x = flat(Luminance)
	Illumination *mat.Dense  // Refined, clipped to [eps,1] and gamma-corrected
}

func NewRefiner(lum *mat.Dense) *Refiner {
	return &Refiner{Luminance: lum}
}

// Build runs the full pipeline: weights, Laplacian, solve, gamma. A kernel
// already present on the Refiner is reused; otherwise one is built from
// opt.SpatialSigma and opt.KernelSize. Parameters are validated up front and
// never clamped.
func (r *Refiner) Build(opt Options) error {
	if r.Luminance == nil {
		return fmt.Errorf("%w: nil luminance map", ErrShapeMismatch)
	}
	if opt.Gamma <= 0 {
		return fmt.Errorf("%w: gamma must be positive, got %g", ErrInvalidParameter, opt.Gamma)
	}
	if opt.Lambda < 0 {
		return fmt.Errorf("%w: lambda must be non-negative, got %g", ErrInvalidParameter, opt.Lambda)
	}
	if opt.Eps <= 0 {
		return fmt.Errorf("%w: eps must be positive, got %g", ErrInvalidParameter, opt.Eps)
	}

	if r.Kernel == nil {
		kernel, err := NewSpatialKernel(opt.SpatialSigma, opt.KernelSize)
		if err != nil {
			return err
		}
		r.Kernel = kernel
	}

	wx, wy, err := ConvolutionWeights{Kernel: r.Kernel, Eps: opt.Eps}.Weights(r.Luminance)
	if err != nil {
		return err
	}
	r.Wx, r.Wy = wx, wy

	f, err := buildLaplacian(wx, wy)
	if err != nil {
		return err
	}
	r.Laplacian = f

	refined, err := solveSystem(f, opt.Lambda, r.Luminance)
	if err != nil {
		return err
	}
	r.Refined = refined

	illum, err := CorrectGamma(refined, opt.Gamma, opt.Eps)
	if err != nil {
		return err
	}
	r.Illumination = illum
	return nil
}

// RefineIlluminationMap is the one-call form of the pipeline. It returns a
// map with the shape of lum, clipped to [eps,1] and gamma-corrected. The
// kernel must come from NewSpatialKernel or satisfy the same contract.
func RefineIlluminationMap(lum *mat.Dense, gamma, lambda float64, kernel *mat.Dense, eps float64) (*mat.Dense, error) {
	r := &Refiner{Luminance: lum, Kernel: kernel}
	if err := r.Build(Options{Gamma: gamma, Lambda: lambda, Eps: eps}); err != nil {
		return nil, err
	}
	return r.Illumination, nil
}

// CorrectGamma clips x to [eps,1] and raises it to gamma elementwise. The
// clip runs first, so no value can leave the power's domain.
func CorrectGamma(x *mat.Dense, gamma, eps float64) (*mat.Dense, error) {
	if gamma <= 0 {
		return nil, fmt.Errorf("%w: gamma must be positive, got %g", ErrInvalidParameter, gamma)
	}
	if eps <= 0 {
		return nil, fmt.Errorf("%w: eps must be positive, got %g", ErrInvalidParameter, eps)
	}
	if x == nil {
		return nil, fmt.Errorf("%w: nil map", ErrShapeMismatch)
	}

	n, m := x.Dims()
	out := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			v := min(1, max(eps, x.At(i, j)))
			out.Set(i, j, math.Pow(v, gamma))
		}
	}
	return out, nil
}

func allFinite(a *mat.Dense) bool {
	n, m := a.Dims()
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			v := a.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
