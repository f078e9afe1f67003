package lime

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Axis selects the direction of a derivative or weight map.
type Axis int

const (
	Horizontal Axis = iota
	Vertical
)

// Tensor is a dense H×W×C grid stored as an interleaved float64 buffer,
// len(Pix) = H*W*C.
type Tensor struct {
	H, W, C int
	Pix     []float64
}

func NewTensor(h, w, c int) *Tensor {
	return &Tensor{H: h, W: w, C: c, Pix: make([]float64, h*w*c)}
}

func (t *Tensor) At(i, j, k int) float64 {
	return t.Pix[(i*t.W+j)*t.C+k]
}

func (t *Tensor) Set(i, j, k int, v float64) {
	t.Pix[(i*t.W+j)*t.C+k] = v
}

// WeightEstimator produces horizontal and vertical edge-stopping smoothness
// weight maps from a single-channel luminance map. Implementations differ in
// boundary policy on purpose: ConvolutionWeights keeps the input shape by
// zero-padding, LogGradientWeights shrinks each map by one cell along its
// axis. Do not unify them.
type WeightEstimator interface {
	Weights(lum *mat.Dense) (wx, wy *mat.Dense, err error)
}

// ConvolutionWeights pools directional derivatives with a spatial affinity
// kernel: T = conv(1)/(|conv(Lp)|+eps), W = T/(|Lp|+eps). Large where the
// neighborhood is locally smooth, small across a coherent edge.
type ConvolutionWeights struct {
	// Spatial affinity kernel, square with an odd side. See NewSpatialKernel.
	Kernel *mat.Dense
	// Denominator guard. Typically 1e-3.
	Eps float64
}

func (cw ConvolutionWeights) Weights(lum *mat.Dense) (wx, wy *mat.Dense, err error) {
	if cw.Eps <= 0 {
		return nil, nil, fmt.Errorf("%w: eps must be positive, got %g", ErrInvalidParameter, cw.Eps)
	}
	if cw.Kernel == nil {
		return nil, nil, fmt.Errorf("%w: nil spatial kernel", ErrInvalidParameter)
	}
	if kr, kc := cw.Kernel.Dims(); kr != kc || kr%2 == 0 {
		return nil, nil, fmt.Errorf("%w: spatial kernel must be square with an odd side, got %dx%d", ErrShapeMismatch, kr, kc)
	}
	if lum == nil {
		return nil, nil, fmt.Errorf("%w: nil luminance map", ErrShapeMismatch)
	}

	n, m := lum.Dims()
	ones := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			ones.Set(i, j, 1)
		}
	}
	norm := convolve(ones, cw.Kernel)

	for _, axis := range []Axis{Horizontal, Vertical} {
		lp := derivative(lum, axis)
		pooled := convolve(lp, cw.Kernel)
		w := mat.NewDense(n, m, nil)
		for i := 0; i < n; i++ {
			for j := 0; j < m; j++ {
				t := norm.At(i, j) / (math.Abs(pooled.At(i, j)) + cw.Eps)
				w.Set(i, j, t/(math.Abs(lp.At(i, j))+cw.Eps))
			}
		}
		if !allFinite(w) {
			return nil, nil, fmt.Errorf("%w: non-finite smoothness weight", ErrNumericalDegeneracy)
		}
		if axis == Horizontal {
			wx = w
		} else {
			wy = w
		}
	}
	return wx, wy, nil
}

// derivative is the ksize-1 Sobel along axis: a central difference with zero
// padding, so border cells see the bare neighbor value. The padding rule
// determines edge-pixel magnitudes and is part of the contract.
func derivative(src *mat.Dense, axis Axis) *mat.Dense {
	n, m := src.Dims()
	out := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			var prev, next float64
			if axis == Horizontal {
				if j > 0 {
					prev = src.At(i, j-1)
				}
				if j < m-1 {
					next = src.At(i, j+1)
				}
			} else {
				if i > 0 {
					prev = src.At(i-1, j)
				}
				if i < n-1 {
					next = src.At(i+1, j)
				}
			}
			out.Set(i, j, next-prev)
		}
	}
	return out
}

// convolve correlates src with kernel under zero padding. The spatial
// affinity kernel is symmetric around its center, so correlation and
// convolution coincide.
func convolve(src, kernel *mat.Dense) *mat.Dense {
	n, m := src.Dims()
	kn, km := kernel.Dims()
	cy, cx := kn/2, km/2
	out := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			var sum float64
			for u := 0; u < kn; u++ {
				y := i + u - cy
				if y < 0 || y >= n {
					continue
				}
				for v := 0; v < km; v++ {
					x := j + v - cx
					if x < 0 || x >= m {
						continue
					}
					sum += kernel.At(u, v) * src.At(y, x)
				}
			}
			out.Set(i, j, sum)
		}
	}
	return out
}

// LogGradientWeights derives edge-stopping weights from log-domain
// directional differences, 1/(epsilon + |diff|^alpha). Unlike
// ConvolutionWeights it does not pad: each map is one cell narrower along
// its own axis.
type LogGradientWeights struct {
	// Log offset and denominator guard. Typically 0.01.
	Epsilon float64
	// Inverse-power decay exponent. Typically 1.2.
	Alpha float64
}

func (lg LogGradientWeights) Weights(lum *mat.Dense) (wx, wy *mat.Dense, err error) {
	if lum == nil {
		return nil, nil, fmt.Errorf("%w: nil luminance map", ErrShapeMismatch)
	}
	n, m := lum.Dims()
	g := NewTensor(n, m, 1)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			g.Set(i, j, 0, lum.At(i, j))
		}
	}
	return EdgeWeights(g, lg.Epsilon, lg.Alpha)
}

// EdgeWeights computes edge-aware smoothness weights from a non-negative
// gradient tensor: 1/(epsilon + |Δ log(g+epsilon)|^alpha) along each axis,
// averaged over channels. The horizontal map is one column narrower than g
// and the vertical map one row shorter.
func EdgeWeights(g *Tensor, epsilon, alpha float64) (wx, wy *mat.Dense, err error) {
	if epsilon <= 0 {
		return nil, nil, fmt.Errorf("%w: epsilon must be positive, got %g", ErrInvalidParameter, epsilon)
	}
	if alpha <= 0 {
		return nil, nil, fmt.Errorf("%w: alpha must be positive, got %g", ErrInvalidParameter, alpha)
	}
	if g == nil || g.C <= 0 || len(g.Pix) != g.H*g.W*g.C {
		return nil, nil, fmt.Errorf("%w: malformed gradient tensor", ErrShapeMismatch)
	}
	if g.H < 2 || g.W < 2 {
		return nil, nil, fmt.Errorf("%w: gradient tensor must be at least 2x2, got %dx%d", ErrShapeMismatch, g.H, g.W)
	}

	glog := NewTensor(g.H, g.W, g.C)
	for i, v := range g.Pix {
		glog.Pix[i] = math.Log(v + epsilon)
	}
	invC := 1 / float64(g.C)

	wx = mat.NewDense(g.H, g.W-1, nil)
	for i := 0; i < g.H; i++ {
		for j := 0; j < g.W-1; j++ {
			var sum float64
			for k := 0; k < g.C; k++ {
				d := glog.At(i, j, k) - glog.At(i, j+1, k)
				sum += 1 / (epsilon + math.Pow(math.Abs(d), alpha))
			}
			wx.Set(i, j, sum*invC)
		}
	}

	wy = mat.NewDense(g.H-1, g.W, nil)
	for i := 0; i < g.H-1; i++ {
		for j := 0; j < g.W; j++ {
			var sum float64
			for k := 0; k < g.C; k++ {
				d := glog.At(i, j, k) - glog.At(i+1, j, k)
				sum += 1 / (epsilon + math.Pow(math.Abs(d), alpha))
			}
			wy.Set(i, j, sum*invC)
		}
	}
	return wx, wy, nil
}
