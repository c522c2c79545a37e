package pipeline

// Stage is the closed set of pipeline stage names. Routing is an
// exhaustive switch over this type; an unrecognized step name never
// reaches a handler.
type Stage string

const (
	StageInit    Stage = "init"
	StageSong    Stage = "callSongGenerator"
	StageScript  Stage = "generateMusicScript"
	StageImages  Stage = "callImagesGenerator"
	StageVideo   Stage = "callVideoGenerator"
	StageCompile Stage = "compileVideo"
)

// ParseStage maps a step name onto the closed stage set.
func ParseStage(name string) (Stage, bool) {
	switch s := Stage(name); s {
	case StageInit, StageSong, StageScript, StageImages, StageVideo, StageCompile:
		return s, true
	}
	return "", false
}

// SuccessorChain is the fixed order of stages the init step
// synthesizes, first to last.
func SuccessorChain() []Stage {
	return []Stage{StageSong, StageScript, StageImages, StageVideo, StageCompile}
}
