// Command framegen generates a raw sensor byte stream for replaying through
// the capture pipeline without hardware. The output is suitable for the
// service's -replay flag.
package main

import (
	"flag"
	"log"
	"math"
	"math/rand"
	"os"

	"github.com/banshee-data/mmwave.report/internal/mmwave"
)

func main() {
	output := flag.String("o", "sample.mmw", "output path")
	frames := flag.Int("n", 100, "number of frames")
	points := flag.Int("points", 10, "mean points per frame")
	seed := flag.Int64("seed", 1, "random seed")
	noise := flag.Int("noise", 0, "junk bytes injected between frames")
	zeros := flag.Bool("zeros", true, "append a zeroed pad record to each frame")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	var stream []byte
	for i := 0; i < *frames; i++ {
		stream = append(stream, syntheticFrame(rng, uint32(i+1), *points, *zeros)...)
		for j := 0; j < *noise; j++ {
			stream = append(stream, byte(rng.Intn(256)))
		}
		if (i+1)%50 == 0 {
			log.Printf("%d/%d frames", i+1, *frames)
		}
	}

	if err := os.WriteFile(*output, stream, 0o644); err != nil {
		log.Fatalf("failed to write %s: %v", *output, err)
	}
	log.Printf("✓ Created: %s (%d bytes)", *output, len(stream))
}

// syntheticFrame encodes one frame of points drifting across the field of
// view, so replayed captures look like a moving target rather than static
// noise.
func syntheticFrame(rng *rand.Rand, frameNumber uint32, mean int, pad bool) []byte {
	n := mean/2 + rng.Intn(mean+1)
	phase := float64(frameNumber) / 20.0
	pts := make([]mmwave.Point, 0, n+1)
	for j := 0; j < n; j++ {
		pts = append(pts, mmwave.Point{
			X:        float32(3*math.Sin(phase)) + rng.Float32()*0.4 - 0.2,
			Y:        float32(4+2*math.Cos(phase)) + rng.Float32()*0.4 - 0.2,
			Z:        rng.Float32()*0.6 - 0.3,
			Velocity: float32(1.5 * math.Cos(phase)),
		})
	}
	if pad {
		pts = append(pts, mmwave.Point{})
	}
	return mmwave.EncodeFrame(mmwave.FrameHeader{
		Version:     0x03060000,
		Platform:    0xa1843,
		FrameNumber: frameNumber,
		CPUCycles:   rng.Uint32(),
	}, mmwave.TypePointCloud, pts)
}
