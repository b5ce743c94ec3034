// Package discover derives the staging schema for a collection by
// sampling the source store.
package discover

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/carewell-health/datahub-sync/pkg/coerce"
	"github.com/carewell-health/datahub-sync/pkg/models"
)

// Sampler is the slice of the source store discovery needs.
type Sampler interface {
	FieldNames(ctx context.Context, collection string) ([]string, error)
	SampleWithField(ctx context.Context, collection, field string) (map[string]any, error)
}

// Fields returns the ordered descriptor list for a collection. For each
// top-level field name it samples one document containing the field,
// coerces it, and pins the coerced value's kind for the cycle.
//
// Dotted subfield names are skipped; only top-level names participate.
// Names colliding case-insensitively keep the first occurrence in
// enumeration order and drop the later one with a warning.
func Fields(ctx context.Context, src Sampler, collection string, logger *zap.Logger) ([]models.FieldDescriptor, error) {
	names, err := src.FieldNames(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", collection, err)
	}

	seen := make(map[string]string, len(names))
	descriptors := make([]models.FieldDescriptor, 0, len(names))
	for _, name := range names {
		if strings.Contains(name, ".") {
			continue
		}
		lower := strings.ToLower(name)
		if kept, ok := seen[lower]; ok {
			logger.Warn("field name case collision, dropping later occurrence",
				zap.String("collection", collection),
				zap.String("kept", kept),
				zap.String("dropped", name))
			continue
		}
		seen[lower] = name

		kind, err := inferKind(ctx, src, collection, name)
		if err != nil {
			return nil, fmt.Errorf("discover %s.%s: %w", collection, name, err)
		}
		descriptors = append(descriptors, models.FieldDescriptor{Name: name, Kind: kind})
	}
	return descriptors, nil
}

func inferKind(ctx context.Context, src Sampler, collection, name string) (models.FieldKind, error) {
	doc, err := src.SampleWithField(ctx, collection, name)
	if err != nil {
		return "", err
	}
	coerced, err := coerce.Document(doc)
	if err != nil {
		return "", err
	}
	return coerce.Kind(coerced[name]), nil
}
