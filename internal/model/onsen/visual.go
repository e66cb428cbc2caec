package onsen

// NoConcept marks that no generated image has been selected.
const NoConcept = -1

// VisualState tracks the generated onsen concepts and the looping video.
type VisualState struct {
	IsGeneratingImage bool     `json:"isGeneratingImage"`
	Images            []string `json:"images,omitempty"`
	SelectedConcept   int      `json:"selectedConcept"`
	IsGeneratingVideo bool     `json:"isGeneratingVideo"`
	VideoURL          string   `json:"videoUrl,omitempty"`
	VideoLoadingMsg   string   `json:"videoLoadingMsg,omitempty"`
	Error             string   `json:"error,omitempty"`
}

// NewVisualState returns the initial, empty state.
func NewVisualState() VisualState {
	return VisualState{SelectedConcept: NoConcept}
}

// Clone copies the state so callers cannot alias the image slice.
func (v VisualState) Clone() VisualState {
	v.Images = append([]string(nil), v.Images...)
	return v
}
