package threats

import "errors"

var (
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidSBOM marks an SBOM document that cannot be decoded.
	ErrInvalidSBOM = errors.New("invalid sbom")
	// ErrInvalidStatus marks an unknown threat status.
	ErrInvalidStatus = errors.New("invalid threat status")
	// ErrScannerFailed marks a vulnerability scanner that could not produce a report.
	ErrScannerFailed = errors.New("vulnerability scanner failed")
)
