package utils

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"log"
	"math"
	"os"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
	"gonum.org/v1/gonum/mat"

	_ "golang.org/x/image/tiff"

	"github.com/setanarut/lime"
)

// Luminance extracts the initial illumination estimate: the maximum over the
// RGB channels of every pixel, normalized to [0,1].
func Luminance(img image.Image) *mat.Dense {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	lum := mat.NewDense(h, w, nil)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			lum.Set(y, x, float64(max(r>>8, g>>8, bl>>8))/255.0)
		}
	}
	return lum
}

// LabLightness is an alternative initial estimate using CIE Lab lightness.
// Softer than the max-channel estimate on heavily saturated scenes.
func LabLightness(img image.Image) *mat.Dense {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	lum := mat.NewDense(h, w, nil)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c, ok := colorful.MakeColor(img.At(b.Min.X+x, b.Min.Y+y))
			if !ok { // fully transparent pixel
				continue
			}
			l, _, _ := c.Lab()
			lum.Set(y, x, min(1, max(0, l)))
		}
	}
	return lum
}

// Enhance divides the original image by the illumination map channel by
// channel. The map is rescaled to [0.01, 1] first so fully dark pixels
// cannot blow the division up.
func Enhance(img image.Image, illum *mat.Dense) (*image.RGBA, error) {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	n, m := illum.Dims()
	if n != h || m != w {
		return nil, fmt.Errorf("%w: illumination map is %dx%d, image is %dx%d", lime.ErrShapeMismatch, n, m, h, w)
	}

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			d := illum.At(y, x)*0.99 + 0.01
			out.SetRGBA(x, y, color.RGBA{
				uint8(max(0, min(255, float64(r>>8)/d))),
				uint8(max(0, min(255, float64(g>>8)/d))),
				uint8(max(0, min(255, float64(bl>>8)/d))),
				255,
			})
		}
	}
	return out, nil
}

// IlluminationImage renders a refined illumination map as a grayscale image
// for inspection.
func IlluminationImage(illum *mat.Dense) *image.Gray {
	n, m := illum.Dims()
	out := image.NewGray(image.Rect(0, 0, m, n))
	for y := 0; y < n; y++ {
		for x := 0; x < m; x++ {
			out.SetGray(x, y, color.Gray{Y: uint8(max(0, min(255, illum.At(y, x)*255)))})
		}
	}
	return out
}

// SuggestOptions picks enhancement parameters from the luminance
// distribution of the image. Dark scenes get a lower gamma (a stronger lift)
// and a lower lambda; well-exposed scenes stay near the defaults.
func SuggestOptions(img image.Image) lime.Options {
	opt := lime.DefaultOptions()
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return opt
	}

	// Subsample to keep kmeans tractable on large images.
	maxSamples := 8000
	step := 1
	if w*h > maxSamples {
		step = int(math.Sqrt(float64(w*h)/float64(maxSamples))) + 1
	}
	dataset := make(clusters.Observations, 0, min(w*h, maxSamples))
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			r, g, bl, a := img.At(x, y).RGBA()
			if a == 0 {
				continue
			}
			dataset = append(dataset, clusters.Coordinates{float64(max(r, g, bl)) / 65535.0})
		}
	}
	if len(dataset) < 6 {
		return opt
	}

	km := kmeans.New()
	cc, err := km.Partition(dataset, 3)
	if err != nil || len(cc) == 0 {
		log.Println("lime warning: luminance clustering failed, using default options")
		return opt
	}

	// Population-weighted mean of the cluster centers is the scene key.
	var key, total float64
	for _, c := range cc {
		n := float64(len(c.Observations))
		key += c.Center[0] * n
		total += n
	}
	if total == 0 {
		return opt
	}
	key = min(1, max(0, key/total))

	// Map the scene key to gamma: 0.45 for very dark scenes up to 0.8 near
	// normal exposure. Lambda follows it down so heavy lifts stay smooth.
	opt.Gamma = 0.45 + 0.35*key
	opt.Lambda = 0.15 + 0.1*key
	return opt
}

func ReadImage(path string) image.Image {
	file, err := os.Open(path)
	if err != nil {
		panic(err)
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		panic(err)
	}
	return img
}

func SaveImage(img image.Image, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
