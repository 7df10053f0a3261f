package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/kalambet/stockwise/internal/inference"
)

const (
	// ImageRecognitionName is the tool name advertised to the model.
	ImageRecognitionName = "image_recognition"
	// ClassifierModel is the registry name of the product classifier.
	ClassifierModel = "product_classifier"
)

// Predictor is the inference capability image_recognition needs.
type Predictor interface {
	Predict(ctx context.Context, modelName string, input any, preprocess bool) (inference.PredictionRecord, error)
}

// ImageRecognition identifies the product shown in an image file.
type ImageRecognition struct {
	predictor Predictor
}

// NewImageRecognition creates the tool. predictor may be nil, in which case
// every call reports that inference is not configured.
func NewImageRecognition(predictor Predictor) *ImageRecognition {
	return &ImageRecognition{predictor: predictor}
}

func (t *ImageRecognition) Name() string { return ImageRecognitionName }

func (t *ImageRecognition) Description() string {
	return "Analyzes an image to identify the product shown. " +
		"Use this tool when the user provides an image path or asks 'what is in this image?'. " +
		"Returns the name of the product identified."
}

func (t *ImageRecognition) Parameters() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"image_path": {
				Type:        jsonschema.String,
				Description: "The file path of the image to analyze.",
			},
		},
		Required: []string{"image_path"},
	}
}

type imageRecognitionArgs struct {
	ImagePath string `json:"image_path"`
}

// Invoke parses {"image_path": ...} and classifies the image.
func (t *ImageRecognition) Invoke(ctx context.Context, args json.RawMessage) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	var a imageRecognitionArgs
	if err := decodeArgs(args, &a); err != nil {
		return Result{Text: fmt.Sprintf("Error: invalid arguments: %v", err)}, nil
	}
	return t.Recognize(ctx, a.ImagePath)
}

// Recognize classifies the image at path.
func (t *ImageRecognition) Recognize(ctx context.Context, path string) (Result, error) {
	if t.predictor == nil {
		return Result{Text: "Error: Inference service not configured"}, nil
	}
	rec, err := t.predictor.Predict(ctx, ClassifierModel, path, false)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{Text: fmt.Sprintf("Error analyzing image: %v", err)}, nil
	}

	confidence := "N/A"
	if rec.Confidence != nil {
		confidence = fmt.Sprintf("%.2f%%", *rec.Confidence*100)
	}
	return Result{Text: fmt.Sprintf("Image Analysis Result:\nDetected Product: %v\nConfidence: %s", rec.Prediction, confidence)}, nil
}
