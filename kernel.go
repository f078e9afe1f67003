package lime

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// NewSpatialKernel builds the size×size Gaussian spatial affinity kernel
// used to pool gradient information. Cell (i,j) holds exp(-0.5*d²/sigma²)
// where d is the Euclidean pixel distance to the center cell, so the center
// is always 1 and the kernel is symmetric around it.
func NewSpatialKernel(sigma float64, size int) (*mat.Dense, error) {
	if sigma <= 0 {
		return nil, fmt.Errorf("%w: spatial sigma must be positive, got %g", ErrInvalidParameter, sigma)
	}
	if size <= 0 || size%2 == 0 {
		return nil, fmt.Errorf("%w: kernel size must be odd and positive, got %d", ErrInvalidParameter, size)
	}

	c := size / 2
	kernel := mat.NewDense(size, size, nil)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			d2 := float64((i-c)*(i-c) + (j-c)*(j-c))
			kernel.Set(i, j, math.Exp(-0.5*d2/(sigma*sigma)))
		}
	}
	return kernel, nil
}
