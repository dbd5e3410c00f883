package analysis

import (
	"errors"
	"fmt"
)

// Kind classifies an analysis failure for the caller.
type Kind string

const (
	KindInvalidImage         Kind = "invalid_image"
	KindFaceNotFound         Kind = "face_not_found"
	KindRegionAnalysisFailed Kind = "region_analysis_failed"
)

// Stage names the pipeline step that failed.
type Stage string

const (
	StageDecode    Stage = "decode"
	StageLocate    Stage = "locate"
	StageLandmarks Stage = "landmarks"
	StageHair      Stage = "hair"
	StageSkin      Stage = "skin"
	StageLips      Stage = "lips"
)

var messages = map[Kind]string{
	KindInvalidImage:         "Unable to read the uploaded image, please upload a JPEG or PNG photo.",
	KindFaceNotFound:         "Unable to detect face, please upload a clear front-facing face photo.",
	KindRegionAnalysisFailed: "Unable to correctly analyze facial features, please ensure the face is clearly visible in the photo.",
}

// ErrNoFace is wrapped by face_not_found errors.
var ErrNoFace = errors.New("no face detected")

// Error is a failed analysis. It is data for the caller, not a crash.
type Error struct {
	Kind  Kind
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s at %s", e.Kind, e.Stage)
	}
	return fmt.Sprintf("%s at %s: %v", e.Kind, e.Stage, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Message is the user-facing text for the failure.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return messages[e.Kind]
}

// KindOf returns the kind of an analysis error anywhere in err's chain, or "" for
// anything else.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

func fail(kind Kind, stage Stage, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}
