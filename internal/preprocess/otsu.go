package preprocess

import "image"

// otsuThreshold picks the global threshold maximizing between-class variance
// over the grayscale histogram.
func otsuThreshold(img *image.Gray) uint8 {
	var hist [256]int
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride : (y-b.Min.Y)*img.Stride+b.Dx()]
		for _, v := range row {
			hist[v]++
		}
	}

	var sum float64
	for i, n := range hist {
		sum += float64(i) * float64(n)
	}

	var sumB, wB float64
	var maxVar float64
	// A bimodal histogram yields a flat variance plateau between the two
	// modes; ties are averaged so the threshold lands mid-plateau instead
	// of hugging the darker mode.
	var bestSum, bestN int
	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		switch {
		case between > maxVar:
			maxVar = between
			bestSum, bestN = t, 1
		case between == maxVar && bestN > 0:
			bestSum += t
			bestN++
		}
	}
	if bestN == 0 {
		return 0
	}
	return uint8(bestSum / bestN)
}

// binarize maps pixels above the threshold to white and the rest to black.
func binarize(img *image.Gray, threshold uint8) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+b.Dx()]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()]
		for x, v := range src {
			if v > threshold {
				dst[x] = 255
			} else {
				dst[x] = 0
			}
		}
	}
	return out
}
