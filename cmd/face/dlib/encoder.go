// Package dlib encodes faces with dlib's ResNet model through go-face.
//
// The model directory must contain shape_predictor_5_face_landmarks.dat and
// dlib_face_recognition_resnet_model_v1.dat.
package dlib

import (
	"context"
	"fmt"
	"sync"

	"timeclock/cmd/face"
	"timeclock/cmd/utils"

	goface "github.com/Kagami/go-face"
)

type Encoder struct {
	mu  sync.Mutex
	rec *goface.Recognizer
}

func NewEncoder(modelPath string) (*Encoder, error) {
	utils.PrintLog("Loading face recognition models from %v", modelPath)
	rec, err := goface.NewRecognizer(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load face models: %w", err)
	}
	return &Encoder{rec: rec}, nil
}

func (e *Encoder) Encode(ctx context.Context, image []byte) ([]face.Encoding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frame, err := face.NormalizeJPEG(image, face.FrameWidth)
	if err != nil {
		return nil, err
	}

	// The recognizer is not safe for concurrent use.
	e.mu.Lock()
	faces, err := e.rec.Recognize(frame)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}
	if len(faces) == 0 {
		return nil, face.ErrNoFace
	}

	encodings := make([]face.Encoding, len(faces))
	for i, f := range faces {
		enc := make(face.Encoding, len(f.Descriptor))
		for j, v := range f.Descriptor {
			enc[j] = float64(v)
		}
		encodings[i] = enc
	}
	utils.PrintDebug("Detected %d face(s)", len(encodings))
	return encodings, nil
}

func (e *Encoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec != nil {
		e.rec.Close()
		e.rec = nil
	}
}
