package model

import "context"

// Classifier maps a feature vector to a verdict. Implementations are opaque
// to the pipeline; the model itself lives behind this boundary.
type Classifier interface {
	Classify(ctx context.Context, features FeatureVector) (Verdict, error)
}

// ClassifierFunc adapts a plain function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, features FeatureVector) (Verdict, error)

func (f ClassifierFunc) Classify(ctx context.Context, features FeatureVector) (Verdict, error) {
	return f(ctx, features)
}
