package lime

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// identityKernel is a 3x3 spatial kernel that leaves convolution inputs
// unchanged, which makes weight values predictable in closed form.
func identityKernel() *mat.Dense {
	k := mat.NewDense(3, 3, nil)
	k.Set(1, 1, 1)
	return k
}

func constantGrid(n, m int, v float64) *mat.Dense {
	g := mat.NewDense(n, m, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			g.Set(i, j, v)
		}
	}
	return g
}

func TestConvolutionWeights_FlatRegion(t *testing.T) {
	const eps = 1e-3
	lum := constantGrid(6, 6, 0.5)
	cw := ConvolutionWeights{Kernel: identityKernel(), Eps: eps}

	wx, wy, err := cw.Weights(lum)
	if err != nil {
		t.Fatal(err)
	}
	for _, w := range []*mat.Dense{wx, wy} {
		if n, m := w.Dims(); n != 6 || m != 6 {
			t.Fatalf("weight map is %dx%d; want 6x6", n, m)
		}
	}

	// Interior: the derivative is zero, so with the identity kernel
	// T = 1/eps and W = 1/eps².
	want := 1 / (eps * eps)
	if got := wx.At(2, 3); math.Abs(got-want) > 1e-6*want {
		t.Errorf("interior wx = %g; want %g", got, want)
	}
	if got := wy.At(3, 2); math.Abs(got-want) > 1e-6*want {
		t.Errorf("interior wy = %g; want %g", got, want)
	}

	// Border: the zero padding makes the central difference see the bare
	// neighbor value 0.5, so T = 1/(0.5+eps) and W = T/(0.5+eps).
	wantBorder := 1 / ((0.5 + eps) * (0.5 + eps))
	if got := wx.At(2, 0); math.Abs(got-wantBorder) > 1e-9 {
		t.Errorf("border wx = %g; want %g", got, wantBorder)
	}
	if got := wy.At(0, 2); math.Abs(got-wantBorder) > 1e-9 {
		t.Errorf("border wy = %g; want %g", got, wantBorder)
	}
}

func TestConvolutionWeights_StrictlyPositive(t *testing.T) {
	lum := mat.NewDense(5, 4, nil)
	for i := 0; i < 5; i++ {
		for j := 0; j < 4; j++ {
			lum.Set(i, j, 0.5+0.5*math.Sin(float64(3*i+7*j)))
		}
	}
	kernel, err := NewSpatialKernel(1, 3)
	if err != nil {
		t.Fatal(err)
	}
	wx, wy, err := ConvolutionWeights{Kernel: kernel, Eps: 1e-3}.Weights(lum)
	if err != nil {
		t.Fatal(err)
	}
	for _, w := range []*mat.Dense{wx, wy} {
		n, m := w.Dims()
		for i := 0; i < n; i++ {
			for j := 0; j < m; j++ {
				if w.At(i, j) <= 0 {
					t.Fatalf("weight (%d,%d) = %g; want strictly positive", i, j, w.At(i, j))
				}
			}
		}
	}
}

func TestConvolutionWeights_InvalidInputs(t *testing.T) {
	lum := constantGrid(4, 4, 0.5)

	if _, _, err := (ConvolutionWeights{Kernel: identityKernel(), Eps: 0}).Weights(lum); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("zero eps: want ErrInvalidParameter, got %v", err)
	}
	if _, _, err := (ConvolutionWeights{Kernel: nil, Eps: 1e-3}).Weights(lum); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("nil kernel: want ErrInvalidParameter, got %v", err)
	}
	even := mat.NewDense(4, 4, nil)
	if _, _, err := (ConvolutionWeights{Kernel: even, Eps: 1e-3}).Weights(lum); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("even kernel: want ErrShapeMismatch, got %v", err)
	}
	rect := mat.NewDense(3, 5, nil)
	if _, _, err := (ConvolutionWeights{Kernel: rect, Eps: 1e-3}).Weights(lum); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("non-square kernel: want ErrShapeMismatch, got %v", err)
	}
}

func TestEdgeWeights_ShrinkingShapes(t *testing.T) {
	g := NewTensor(4, 5, 3)
	for i := 0; i < 4; i++ {
		for j := 0; j < 5; j++ {
			for k := 0; k < 3; k++ {
				g.Set(i, j, k, float64(i+2*j+3*k)/30)
			}
		}
	}
	wx, wy, err := EdgeWeights(g, 0.01, 1.2)
	if err != nil {
		t.Fatal(err)
	}
	if n, m := wx.Dims(); n != 4 || m != 4 {
		t.Errorf("wx is %dx%d; want 4x4", n, m)
	}
	if n, m := wy.Dims(); n != 3 || m != 5 {
		t.Errorf("wy is %dx%d; want 3x5", n, m)
	}
}

func TestEdgeWeights_CheckerboardGolden(t *testing.T) {
	const (
		eps   = 0.01
		alpha = 1.2
	)
	// 2x2 checkerboard repeated across all three channels.
	g := NewTensor(2, 2, 3)
	for k := 0; k < 3; k++ {
		g.Set(0, 0, k, 0)
		g.Set(0, 1, k, 1)
		g.Set(1, 0, k, 1)
		g.Set(1, 1, k, 0)
	}

	wx, wy, err := EdgeWeights(g, eps, alpha)
	if err != nil {
		t.Fatal(err)
	}

	// Every difference is |log(1+eps) - log(0+eps)| regardless of sign.
	want := 1 / (eps + math.Pow(math.Abs(math.Log(1+eps)-math.Log(0+eps)), alpha))
	for i := 0; i < 2; i++ {
		if got := wx.At(i, 0); math.Abs(got-want) > 1e-12*want {
			t.Errorf("wx(%d,0) = %g; want %g", i, got, want)
		}
	}
	for j := 0; j < 2; j++ {
		if got := wy.At(0, j); math.Abs(got-want) > 1e-12*want {
			t.Errorf("wy(0,%d) = %g; want %g", j, got, want)
		}
	}
}

func TestEdgeWeights_InvalidInputs(t *testing.T) {
	g := NewTensor(2, 2, 1)
	if _, _, err := EdgeWeights(g, 0, 1.2); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("zero epsilon: want ErrInvalidParameter, got %v", err)
	}
	if _, _, err := EdgeWeights(g, 0.01, -1); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("negative alpha: want ErrInvalidParameter, got %v", err)
	}
	if _, _, err := EdgeWeights(nil, 0.01, 1.2); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("nil tensor: want ErrShapeMismatch, got %v", err)
	}
	if _, _, err := EdgeWeights(NewTensor(3, 1, 1), 0.01, 1.2); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("single column: want ErrShapeMismatch, got %v", err)
	}
	bad := NewTensor(2, 2, 1)
	bad.Pix = bad.Pix[:3]
	if _, _, err := EdgeWeights(bad, 0.01, 1.2); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("short buffer: want ErrShapeMismatch, got %v", err)
	}
}

func TestLogGradientWeights_Interface(t *testing.T) {
	var est WeightEstimator = LogGradientWeights{Epsilon: 0.01, Alpha: 1.2}
	lum := constantGrid(3, 4, 0.25)
	wx, wy, err := est.Weights(lum)
	if err != nil {
		t.Fatal(err)
	}
	if n, m := wx.Dims(); n != 3 || m != 3 {
		t.Errorf("wx is %dx%d; want 3x3", n, m)
	}
	if n, m := wy.Dims(); n != 2 || m != 4 {
		t.Errorf("wy is %dx%d; want 2x4", n, m)
	}
	// Flat input: every difference is zero, weight saturates at 1/epsilon.
	if got, want := wx.At(0, 0), 1/0.01; math.Abs(got-want) > 1e-9 {
		t.Errorf("flat weight = %g; want %g", got, want)
	}
}
