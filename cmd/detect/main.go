// Command detect runs an exported detection model over a directory of
// images and prints per-image results in original-image coordinates.
// With a ground-truth file it also reports dataset-level mean average
// precision.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/stereomatchingkiss/yolov5-rt-stack/common"
	"github.com/stereomatchingkiss/yolov5-rt-stack/data"
	"github.com/stereomatchingkiss/yolov5-rt-stack/eval"
	"github.com/stereomatchingkiss/yolov5-rt-stack/inference"
	"github.com/stereomatchingkiss/yolov5-rt-stack/onnx"
	"github.com/stereomatchingkiss/yolov5-rt-stack/util"
)

// groundTruth is the on-disk annotation format: base file name to boxes
// (x1,y1,x2,y2 in original coordinates) and labels, index-aligned.
type groundTruth map[string]struct {
	Boxes  [][4]float32 `json:"boxes"`
	Labels []int64      `json:"labels"`
}

func main() {
	var (
		modelPath  = flag.String("model", "yolov5s.onnx", "path to the ONNX model")
		ortLib     = flag.String("ort-lib", "", "path to the onnxruntime shared library (optional)")
		imageDir   = flag.String("images", "", "directory of images to run on")
		gtPath     = flag.String("gt", "", "ground-truth JSON for mAP evaluation (optional)")
		minSize    = flag.Int("min-size", 320, "lower bound for the smaller image side")
		maxSize    = flag.Int("max-size", 416, "upper bound for the larger image side")
		numClasses = flag.Int("num-classes", 80, "number of detection classes")
		confThr    = flag.Float64("conf", onnx.DefaultConfidenceThreshold, "confidence threshold")
		nmsThr     = flag.Float64("nms", onnx.DefaultNMSThreshold, "NMS IoU threshold")
		batchSize  = flag.Int("batch", 1, "images per forward pass")
	)
	flag.Parse()

	if *imageDir == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *batchSize < 1 {
		*batchSize = 1
	}

	files, err := util.LoadDirectoryImageFiles(*imageDir)
	if err != nil {
		log.Fatalf("load images: %v", err)
	}
	if len(files) == 0 {
		log.Fatalf("no images found in %s", *imageDir)
	}

	detector, err := onnx.NewDetector(onnx.Config{
		ModelPath:           *modelPath,
		LibraryPath:         *ortLib,
		ConfidenceThreshold: float32(*confThr),
		NMSThreshold:        float32(*nmsThr),
	})
	if err != nil {
		log.Fatalf("open model: %v", err)
	}
	defer detector.Close()

	module, err := inference.New(detector, inference.Config{
		MinSize:    *minSize,
		MaxSize:    *maxSize,
		NumClasses: *numClasses,
	})
	if err != nil {
		log.Fatalf("build module: %v", err)
	}

	var annotations groundTruth
	if *gtPath != "" {
		buf, err := os.ReadFile(*gtPath)
		if err != nil {
			log.Fatalf("read ground truth: %v", err)
		}
		if err := json.Unmarshal(buf, &annotations); err != nil {
			log.Fatalf("parse ground truth: %v", err)
		}
	}
	evaluator := eval.NewDatasetEvaluator()
	pipeline := data.DefaultPipeline()

	for start := 0; start < len(files); start += *batchSize {
		end := min(start+*batchSize, len(files))
		chunk := files[start:end]

		raw := make([][]byte, len(chunk))
		for i, f := range chunk {
			raw[i] = f.Data
		}
		images, _, err := pipeline.Collate(raw)
		if err != nil {
			log.Fatalf("collate batch at %s: %v", chunk[0].Path, err)
		}

		detections, err := module.Infer(images)
		if err != nil {
			log.Fatalf("infer batch at %s: %v", chunk[0].Path, err)
		}

		for i, det := range detections {
			fmt.Printf("%s: %d objects\n", chunk[i].Path, det.Len())
			for j := range det.Boxes {
				fmt.Printf("  label=%d score=%.3f box=%s\n",
					det.Labels[j], det.Scores[j], det.Boxes[j])
			}
		}

		if annotations != nil {
			targets := make([]common.Target, len(chunk))
			for i, f := range chunk {
				ann := annotations[filepath.Base(f.Path)]
				for _, b := range ann.Boxes {
					targets[i].Boxes = append(targets[i].Boxes,
						common.Box{X1: b[0], Y1: b[1], X2: b[2], Y2: b[3]})
				}
				targets[i].Labels = ann.Labels
			}
			rec, err := evaluator.Accumulate(detections, targets)
			if err != nil {
				log.Fatalf("accumulate: %v", err)
			}
			log.Printf("accumulated %d images (%d predictions, %d ground truths)",
				rec.Images, rec.Predictions, rec.GroundTruths)
		}
	}

	if annotations != nil {
		report, err := evaluator.Finalize()
		if err != nil {
			log.Fatalf("finalize: %v", err)
		}
		fmt.Printf("images=%d mAP=%.4f AP50=%.4f AP75=%.4f\n",
			report.Images, report.MeanAP, report.AP50, report.AP75)
	}
}
