package domain

import "time"

// LayerRecord is a layer cache entry: the image produced by a stage whose
// inputs hash to Key.
type LayerRecord struct {
	Key       string    `json:"key,omitzero"`
	Stage     string    `json:"stage,omitzero"`
	ImageID   string    `json:"image_id,omitzero"`
	Parent    string    `json:"parent,omitzero"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// StageResult reports what happened to a single stage.
type StageResult struct {
	Name    string
	Kind    StageKind
	Key     string
	ImageID string
	Status  VertexStatus
}

// BuildResult reports the outcome of a build.
type BuildResult struct {
	// ImageID is the final image. Empty when the build failed.
	ImageID string

	// Tag is the reference applied to ImageID, if any.
	Tag string

	// Stages lists the stages that were reached, in order.
	Stages []StageResult
}

// Cached returns the number of stages served from the layer cache.
func (r *BuildResult) Cached() int {
	n := 0
	for _, s := range r.Stages {
		if s.Status == VertexStatusCached {
			n++
		}
	}
	return n
}
