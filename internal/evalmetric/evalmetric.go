// internal/evalmetric/evalmetric.go
// Package evalmetric compares per-category average precision computed with
// IoU matching against the same computation with IoP (intersection over the
// predicted box's area) matching. A large IoP-IoU gap points at predictions
// that cover objects but are badly sized.
package evalmetric

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
)

// DefaultThreshold is the overlap a prediction must exceed to match.
const DefaultThreshold = 0.5

const epsilon = 1e-8

// Metric selects how overlap between a prediction and a ground-truth box is scored.
type Metric string

const (
	MetricIoU Metric = "iou"
	MetricIoP Metric = "iop"
)

// ImageID accepts both numeric and string image ids. Numbers are keyed by
// their value, so 1 and 1.0 are the same image. A string id that spells a
// number ("1") also names the same image as that number.
type ImageID string

func (id *ImageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ImageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("image_id must be a number or string: %w", err)
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*id = ImageID(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return fmt.Errorf("image_id %s: %w", n, err)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		*id = ImageID(strconv.FormatInt(int64(f), 10))
		return nil
	}
	*id = ImageID(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

// Box is a COCO [x, y, width, height] box.
type Box [4]float64

// Area returns the box area, zero for negative extents.
func (b Box) Area() float64 {
	if b[2] < 0 || b[3] < 0 {
		return 0
	}
	return b[2] * b[3]
}

// Intersection returns the overlapping area of a and b.
func Intersection(a, b Box) float64 {
	ix1 := math.Max(a[0], b[0])
	iy1 := math.Max(a[1], b[1])
	ix2 := math.Min(a[0]+a[2], b[0]+b[2])
	iy2 := math.Min(a[1]+a[3], b[1]+b[3])
	return math.Max(ix2-ix1, 0) * math.Max(iy2-iy1, 0)
}

// Overlap scores pred against gt with the given metric.
func Overlap(metric Metric, pred, gt Box) (float64, error) {
	inter := Intersection(pred, gt)
	switch metric {
	case MetricIoU:
		union := pred.Area() + gt.Area() - inter
		return inter / (union + epsilon), nil
	case MetricIoP:
		return inter / (pred.Area() + epsilon), nil
	default:
		return 0, fmt.Errorf("unknown metric: %s", metric)
	}
}

// Annotation is a ground-truth object.
type Annotation struct {
	ImageID    ImageID `json:"image_id"`
	CategoryID int     `json:"category_id"`
	BBox       Box     `json:"bbox"`
	IsCrowd    int     `json:"iscrowd"`
}

// Category names a category id.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// GroundTruth is the subset of a COCO annotation file used here.
type GroundTruth struct {
	Annotations []Annotation `json:"annotations"`
	Categories  []Category   `json:"categories"`
}

// Prediction is one entry of a COCO results file.
type Prediction struct {
	ImageID    ImageID `json:"image_id"`
	CategoryID int     `json:"category_id"`
	BBox       Box     `json:"bbox"`
	Score      float64 `json:"score"`
}

// LoadGroundTruth reads a COCO annotation file.
func LoadGroundTruth(path string) (*GroundTruth, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ground truth: %w", err)
	}
	var gt GroundTruth
	if err := json.Unmarshal(data, &gt); err != nil {
		return nil, fmt.Errorf("parse ground truth %s: %w", path, err)
	}
	return &gt, nil
}

// LoadPredictions reads a COCO results file.
func LoadPredictions(path string) ([]Prediction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read predictions: %w", err)
	}
	var preds []Prediction
	if err := json.Unmarshal(data, &preds); err != nil {
		return nil, fmt.Errorf("parse predictions %s: %w", path, err)
	}
	return preds, nil
}

// AveragePrecision evaluates the predictions of one category against that
// category's ground truth (boxes keyed by image). Predictions are taken in
// descending score order; each matches the ground-truth box of its image with
// the highest overlap strictly above threshold. Matching an already detected
// box counts as a false positive.
func AveragePrecision(gts map[ImageID][]Box, preds []Prediction, metric Metric, threshold float64) (float64, error) {
	type gtState struct {
		box      Box
		detected bool
	}
	byImage := make(map[ImageID][]*gtState, len(gts))
	totalGT := 0
	for img, boxes := range gts {
		for _, b := range boxes {
			byImage[img] = append(byImage[img], &gtState{box: b})
		}
		totalGT += len(boxes)
	}

	sorted := append([]Prediction(nil), preds...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	tp := make([]float64, 0, len(sorted))
	fp := make([]float64, 0, len(sorted))
	for _, pred := range sorted {
		candidates := byImage[pred.ImageID]
		best := -1
		bestOverlap := threshold
		for i, g := range candidates {
			o, err := Overlap(metric, pred.BBox, g.box)
			if err != nil {
				return 0, err
			}
			if o > bestOverlap {
				bestOverlap = o
				best = i
			}
		}
		if best >= 0 && !candidates[best].detected {
			candidates[best].detected = true
			tp = append(tp, 1)
			fp = append(fp, 0)
			continue
		}
		tp = append(tp, 0)
		fp = append(fp, 1)
	}

	if totalGT == 0 {
		if len(preds) > 0 {
			return 0, nil
		}
		return 1, nil
	}

	recalls := make([]float64, len(tp))
	precisions := make([]float64, len(tp))
	accTP, accFP := 0.0, 0.0
	for i := range tp {
		accTP += tp[i]
		accFP += fp[i]
		recalls[i] = accTP / float64(totalGT)
		precisions[i] = accTP / (accFP + accTP + epsilon)
	}
	return interpolatedAP(recalls, precisions), nil
}

// interpolatedAP is the area under the monotone precision envelope, summed at
// every point where recall changes.
func interpolatedAP(recalls, precisions []float64) float64 {
	r := append([]float64{0}, recalls...)
	p := append([]float64{1}, precisions...)
	for i := len(p) - 2; i >= 0; i-- {
		p[i] = math.Max(p[i], p[i+1])
	}
	ap := 0.0
	for i := 1; i < len(r); i++ {
		if r[i] != r[i-1] {
			ap += (r[i] - r[i-1]) * p[i]
		}
	}
	return ap
}

// CategoryResult is the comparison for one category.
type CategoryResult struct {
	CategoryID  int     `json:"categoryId"`
	Name        string  `json:"name,omitempty"`
	GroundTruth int     `json:"groundTruth"`
	Predictions int     `json:"predictions"`
	APIoU       float64 `json:"apIoU"`
	APIoP       float64 `json:"apIoP"`
	Diff        float64 `json:"diff"`
}

// Report is the full comparison.
type Report struct {
	Threshold  float64          `json:"threshold"`
	Categories []CategoryResult `json:"categories"`
	MeanIoU    float64          `json:"meanApIoU"`
	MeanIoP    float64          `json:"meanApIoP"`
	Diff       float64          `json:"diff"`
}

// Evaluate compares AP@IoU and AP@IoP for every category that has non-crowd
// ground truth, in ascending category id order.
func Evaluate(gt *GroundTruth, preds []Prediction, threshold float64) (Report, error) {
	names := make(map[int]string, len(gt.Categories))
	for _, c := range gt.Categories {
		names[c.ID] = c.Name
	}

	gtByCat := make(map[int]map[ImageID][]Box)
	for _, ann := range gt.Annotations {
		if ann.IsCrowd == 1 {
			continue
		}
		if gtByCat[ann.CategoryID] == nil {
			gtByCat[ann.CategoryID] = make(map[ImageID][]Box)
		}
		gtByCat[ann.CategoryID][ann.ImageID] = append(gtByCat[ann.CategoryID][ann.ImageID], ann.BBox)
	}
	predsByCat := make(map[int][]Prediction)
	for _, p := range preds {
		predsByCat[p.CategoryID] = append(predsByCat[p.CategoryID], p)
	}

	ids := make([]int, 0, len(gtByCat))
	for id := range gtByCat {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	report := Report{Threshold: threshold}
	for _, id := range ids {
		apIoU, err := AveragePrecision(gtByCat[id], predsByCat[id], MetricIoU, threshold)
		if err != nil {
			return Report{}, err
		}
		apIoP, err := AveragePrecision(gtByCat[id], predsByCat[id], MetricIoP, threshold)
		if err != nil {
			return Report{}, err
		}
		count := 0
		for _, boxes := range gtByCat[id] {
			count += len(boxes)
		}
		report.Categories = append(report.Categories, CategoryResult{
			CategoryID:  id,
			Name:        names[id],
			GroundTruth: count,
			Predictions: len(predsByCat[id]),
			APIoU:       apIoU,
			APIoP:       apIoP,
			Diff:        apIoP - apIoU,
		})
		report.MeanIoU += apIoU
		report.MeanIoP += apIoP
	}
	if n := len(report.Categories); n > 0 {
		report.MeanIoU /= float64(n)
		report.MeanIoP /= float64(n)
	}
	report.Diff = report.MeanIoP - report.MeanIoU
	return report, nil
}

// Label returns "id (name)" or just the id.
func (c CategoryResult) Label() string {
	if c.Name == "" {
		return strconv.Itoa(c.CategoryID)
	}
	return fmt.Sprintf("%d (%s)", c.CategoryID, c.Name)
}
