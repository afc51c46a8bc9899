// Package face compares face encodings against registered references.
//
// Encodings are produced by an Encoder (see the dlib subpackage) and stored
// as text in the employee workbook, e.g. "[-0.09, 0.11, ...]".
package face

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var ErrNoFace = errors.New("no face detected")

// Encoding is a face feature vector.
type Encoding []float64

// Encoder extracts one encoding per face found in an image.
type Encoder interface {
	Encode(ctx context.Context, image []byte) ([]Encoding, error)
}

// ParseEncoding reads the stored text form of an encoding.
func ParseEncoding(s string) (Encoding, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("empty face encoding")
	}
	parts := strings.Split(s, ",")
	enc := make(Encoding, 0, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("face encoding value %d: %w", i, err)
		}
		enc = append(enc, v)
	}
	return enc, nil
}

func (e Encoding) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range e {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

// Distance is the Euclidean distance between two encodings. Encodings of
// different length never match.
func Distance(a, b Encoding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
