package detection

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/zdex/zdex-go/internal/errors"
	"github.com/zdex/zdex-go/internal/species"
)

// DNNEngine runs ONNX detector and classifier networks through OpenCV's
// DNN module. Calls are serialized by the pipeline; no internal locking.
type DNNEngine struct {
	detector   gocv.Net
	classifier gocv.Net
	labels     *species.Index
	inputSize  int
	threshold  float64
}

// NewDNNEngine loads both networks from disk. The detector is expected to
// produce SSD-style output rows (class, confidence, normalized box); the
// classifier a flat score vector indexed by label position.
func NewDNNEngine(detectorPath, classifierPath string, labels *species.Index, inputSize int, threshold float64) (*DNNEngine, error) {
	detector := gocv.ReadNet(detectorPath, "")
	if detector.Empty() {
		return nil, errors.New(fmt.Errorf("loading detector model from %s", detectorPath)).
			Component("detection").
			Category(errors.CategoryInference).
			Build()
	}
	detector.SetPreferableBackend(gocv.NetBackendDefault)
	detector.SetPreferableTarget(gocv.NetTargetCPU)

	classifier := gocv.ReadNet(classifierPath, "")
	if classifier.Empty() {
		_ = detector.Close()
		return nil, errors.New(fmt.Errorf("loading classifier model from %s", classifierPath)).
			Component("detection").
			Category(errors.CategoryInference).
			Build()
	}
	classifier.SetPreferableBackend(gocv.NetBackendDefault)
	classifier.SetPreferableTarget(gocv.NetTargetCPU)

	return &DNNEngine{
		detector:   detector,
		classifier: classifier,
		labels:     labels,
		inputSize:  inputSize,
		threshold:  threshold,
	}, nil
}

// Detect runs the detector over the full frame.
func (e *DNNEngine) Detect(frame gocv.Mat) ([]Candidate, error) {
	if frame.Empty() {
		return nil, errors.New(fmt.Errorf("empty frame")).
			Component("detection").
			Category(errors.CategoryInference).
			Build()
	}

	blob := gocv.BlobFromImage(frame, 1.0/255.0,
		image.Pt(e.inputSize, e.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	e.detector.SetInput(blob, "")
	output := e.detector.Forward("")
	defer output.Close()

	// SSD output: one row per detection, [_, classID, confidence, x1, y1,
	// x2, y2] with coordinates normalized to the frame.
	rows := gocv.GetBlobChannel(output, 0, 0)
	defer rows.Close()

	width := float32(frame.Cols())
	height := float32(frame.Rows())
	frameBounds := image.Rect(0, 0, frame.Cols(), frame.Rows())

	var candidates []Candidate
	for i := 0; i < rows.Rows(); i++ {
		confidence := float64(rows.GetFloatAt(i, 2))
		if confidence < e.threshold {
			continue
		}
		classID := int(rows.GetFloatAt(i, 1))
		box := image.Rect(
			int(rows.GetFloatAt(i, 3)*width),
			int(rows.GetFloatAt(i, 4)*height),
			int(rows.GetFloatAt(i, 5)*width),
			int(rows.GetFloatAt(i, 6)*height),
		).Intersect(frameBounds)
		if box.Empty() {
			continue
		}
		candidates = append(candidates, Candidate{
			Box:        box,
			ClassID:    classID,
			Confidence: confidence,
		})
	}
	return candidates, nil
}

// Classify crops the candidate region and runs the classifier over it.
func (e *DNNEngine) Classify(frame gocv.Mat, box image.Rectangle) (Classification, error) {
	region := box.Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if region.Empty() {
		return Classification{}, errors.New(fmt.Errorf("candidate box outside frame")).
			Component("detection").
			Category(errors.CategoryInference).
			Build()
	}

	crop := frame.Region(region)
	defer crop.Close()

	blob := gocv.BlobFromImage(crop, 1.0/255.0,
		image.Pt(e.inputSize, e.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	e.classifier.SetInput(blob, "")
	scores := e.classifier.Forward("")
	defer scores.Close()

	_, maxVal, _, maxLoc := gocv.MinMaxLoc(scores)
	label := e.labels.Get(maxLoc.X)

	return Classification{
		SpeciesID:      label.UUID,
		CommonName:     label.DisplayName(),
		ScientificName: label.ScientificName(),
		Score:          float64(maxVal),
	}, nil
}

// Close releases both networks.
func (e *DNNEngine) Close() error {
	return errors.Join(e.detector.Close(), e.classifier.Close())
}
