// Package leap implements the ONNX neural landmark detector: a fixed
// 112x112 CNN predicts 7 eye landmarks, which are smoothed with a One-Euro
// filter and reduced to a pupil center plus a blink score derived from the
// lid-landmark separation relative to its recent history.
package leap

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"gocv.io/x/gocv"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/etvr-go/trackingd/internal/detect"
	"github.com/etvr-go/trackingd/internal/detect/oneeuro"
)

const (
	inputSize        = 112
	landmarkCount    = 7
	openHistoryLimit = 5000
	minCutoff        = 0.9
	beta             = 5.0
)

// Params configures the detector.
type Params struct {
	ModelPath      string
	BlinkThreshold float64
}

// Detector implements detect.Algorithm using an ONNX Runtime session.
type Detector struct {
	mu sync.Mutex

	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]

	filter  *oneeuro.Bank
	opening []float64

	params Params
	t      float64
}

// New loads the ONNX model at params.ModelPath and prepares a detector.
// The caller (the detector worker) is responsible for running at most one
// detection at a time; ONNX Runtime sessions are not safe for concurrent
// Run calls sharing the same input/output tensors.
func New(params Params) (*Detector, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("leap: initializing onnxruntime environment: %w", err)
		}
	}

	inputShape := ort.NewShape(1, 3, inputSize, inputSize)
	input, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("leap: allocating input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, landmarkCount, 2)
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("leap: allocating output tensor: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("leap: creating session options: %w", err)
	}
	defer opts.Destroy()
	_ = opts.SetIntraOpNumThreads(1)
	_ = opts.SetInterOpNumThreads(1)

	session, err := ort.NewAdvancedSession(params.ModelPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}, opts)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("leap: creating session from %s: %w", params.ModelPath, err)
	}

	return &Detector{
		session: session,
		input:   input,
		output:  output,
		filter:  oneeuro.NewBank(landmarkCount, minCutoff, beta),
		params:  params,
	}, nil
}

func (d *Detector) Name() string { return "LEAP" }

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		d.session.Destroy()
	}
	if d.input != nil {
		d.input.Destroy()
	}
	if d.output != nil {
		d.output.Destroy()
	}
	return nil
}

func (d *Detector) Run(frame gocv.Mat, position string) (detect.EyeData, gocv.Mat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.preprocess(frame); err != nil {
		return detect.EyeData{}, gocv.NewMat(), fmt.Errorf("leap: preprocessing: %w", err)
	}

	if err := d.session.Run(); err != nil {
		return detect.EyeData{}, gocv.NewMat(), fmt.Errorf("leap: inference: %w", err)
	}

	xs, ys := d.extractLandmarks()

	d.t += 1.0 / 60.0
	d.filter.Filter(d.t, xs, ys)

	blink := d.blinkFromLidDistance(xs, ys)
	if blink <= d.params.BlinkThreshold {
		blink = 0
	}

	annotated := gocv.NewMat()
	if frame.Channels() == 3 {
		frame.CopyTo(&annotated)
	} else {
		gocv.CvtColor(frame, &annotated, gocv.ColorGrayToBGR)
	}
	cx := int(xs[6] * float64(frame.Cols()))
	cy := int(ys[6] * float64(frame.Rows()))
	gocv.Circle(&annotated, image.Pt(cx, cy), 2, color.RGBA{B: 255, A: 255}, 2)

	return detect.EyeData{
		X:        xs[6],
		Y:        ys[6],
		Blink:    blink,
		Position: position,
	}, annotated, nil
}

// preprocess resizes frame to 112x112, converts BGR to RGB, normalizes to
// [0,1], and writes it into the input tensor in CHW order.
func (d *Detector) preprocess(frame gocv.Mat) error {
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(frame, &resized, image.Pt(inputSize, inputSize), 0, 0, gocv.InterpolationLinear)

	rgb := gocv.NewMat()
	defer rgb.Close()
	if resized.Channels() == 3 {
		gocv.CvtColor(resized, &rgb, gocv.ColorBGRToRGB)
	} else {
		gocv.CvtColor(resized, &rgb, gocv.ColorGrayToBGR)
		gocv.CvtColor(rgb, &rgb, gocv.ColorBGRToRGB)
	}

	data := d.input.GetData()
	for c := 0; c < 3; c++ {
		for y := 0; y < inputSize; y++ {
			for x := 0; x < inputSize; x++ {
				v := rgb.GetVecbAt(y, x)[c]
				data[c*inputSize*inputSize+y*inputSize+x] = float32(v) / 255.0
			}
		}
	}
	return nil
}

func (d *Detector) extractLandmarks() (xs, ys []float64) {
	data := d.output.GetData()
	xs = make([]float64, landmarkCount)
	ys = make([]float64, landmarkCount)
	for i := 0; i < landmarkCount; i++ {
		xs[i] = float64(data[i*2])
		ys[i] = float64(data[i*2+1])
	}
	return xs, ys
}

// blinkFromLidDistance tracks the distance between the upper and lower lid
// landmarks (indices 1 and 3) against its own rolling history: a distance
// near the historical maximum means the eye is wide open (blink -> 1), a
// distance near the historical minimum means it is closed (blink -> 0).
func (d *Detector) blinkFromLidDistance(xs, ys []float64) float64 {
	dx := xs[1] - xs[3]
	dy := ys[1] - ys[3]
	distance := math.Hypot(dx, dy)

	d.opening = append(d.opening, distance)
	if len(d.opening) > openHistoryLimit {
		d.opening = d.opening[1:]
	}

	maxV, minV := d.opening[0], d.opening[0]
	for _, v := range d.opening {
		if v > maxV {
			maxV = v
		}
		if v < minV {
			minV = v
		}
	}
	if maxV == minV {
		return 1
	}

	blink := (distance - maxV) / (minV - maxV)
	return 1 - blink
}
