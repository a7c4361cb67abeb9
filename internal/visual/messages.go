package visual

import (
	"errors"
	"fmt"

	"photo-library-finder/internal/scanner"
	"photo-library-finder/internal/similarity"
)

// RequestType tags a message sent to the worker.
type RequestType string

const (
	ProcessThumbnails RequestType = "PROCESS_THUMBNAILS"
	CompareHashes     RequestType = "COMPARE_HASHES"
)

// ResponseType tags a message sent back by the worker.
type ResponseType string

const (
	Progress           ResponseType = "PROGRESS"
	ThumbnailsComplete ResponseType = "THUMBNAILS_COMPLETE"
	ComparisonComplete ResponseType = "COMPARISON_COMPLETE"
	Error              ResponseType = "ERROR"
)

// Phase names the stage a progress update belongs to.
type Phase string

const (
	PhaseProcessing Phase = "processing"
	PhaseComparing  Phase = "comparing"
)

var errInvalidMessage = errors.New("invalid worker message")

// Request is a tagged union: exactly the payload matching Type is set.
type Request struct {
	Type    RequestType
	Process *ProcessRequest
	Compare *CompareRequest
}

type ProcessRequest struct {
	Files     []scanner.ImageRecord
	BatchSize int
}

type CompareRequest struct {
	Hashes    []similarity.PerceptualHash
	Threshold float64
}

// NewProcessRequest builds a PROCESS_THUMBNAILS request.
func NewProcessRequest(files []scanner.ImageRecord, batchSize int) Request {
	return Request{Type: ProcessThumbnails, Process: &ProcessRequest{Files: files, BatchSize: batchSize}}
}

// NewCompareRequest builds a COMPARE_HASHES request.
func NewCompareRequest(hashes []similarity.PerceptualHash, threshold float64) Request {
	return Request{Type: CompareHashes, Compare: &CompareRequest{Hashes: hashes, Threshold: threshold}}
}

// Validate checks that the payload matches the tag.
func (r Request) Validate() error {
	switch r.Type {
	case ProcessThumbnails:
		if r.Process == nil || r.Compare != nil {
			return fmt.Errorf("%w: %s needs only a process payload", errInvalidMessage, r.Type)
		}
		if r.Process.BatchSize < 0 {
			return fmt.Errorf("%w: negative batch size %d", errInvalidMessage, r.Process.BatchSize)
		}
	case CompareHashes:
		if r.Compare == nil || r.Process != nil {
			return fmt.Errorf("%w: %s needs only a compare payload", errInvalidMessage, r.Type)
		}
		if r.Compare.Threshold < 0 || r.Compare.Threshold > 100 {
			return fmt.Errorf("%w: threshold %.2f outside 0-100", errInvalidMessage, r.Compare.Threshold)
		}
	default:
		return fmt.Errorf("%w: unknown request type %q", errInvalidMessage, r.Type)
	}
	return nil
}

// ProgressUpdate is the payload of a PROGRESS response.
type ProgressUpdate struct {
	Phase     Phase   `json:"phase"`
	Progress  float64 `json:"progress"`
	Processed int     `json:"processed"`
	Total     int     `json:"total"`
	Found     int     `json:"found"`
}

// Response is a tagged union mirroring Request.
type Response struct {
	Type        ResponseType
	Progress    *ProgressUpdate
	Hashes      []similarity.PerceptualHash
	Groups      []similarity.SimilarityGroup
	Comparisons int
	Err         string
}

// Validate checks that the payload matches the tag.
func (r Response) Validate() error {
	switch r.Type {
	case Progress:
		if r.Progress == nil {
			return fmt.Errorf("%w: progress without payload", errInvalidMessage)
		}
	case ThumbnailsComplete, ComparisonComplete:
	case Error:
		if r.Err == "" {
			return fmt.Errorf("%w: error without message", errInvalidMessage)
		}
	default:
		return fmt.Errorf("%w: unknown response type %q", errInvalidMessage, r.Type)
	}
	return nil
}

// Terminal reports whether no further responses follow this one.
func (r Response) Terminal() bool {
	return r.Type != Progress
}

func progressResponse(u ProgressUpdate) Response {
	return Response{Type: Progress, Progress: &u}
}

func errorResponse(err error) Response {
	return Response{Type: Error, Err: err.Error()}
}
