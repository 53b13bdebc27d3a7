package lockresolver

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fugue-ai/rhema-coordinator/pkg/coordinationerr"
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

// WriteFile serializes lf as YAML to path.
func WriteFile(path string, lf *models.LockFile) error {
	data, err := yaml.Marshal(lf)
	if err != nil {
		return coordinationerr.Newf(component, "WriteFile", coordinationerr.KindInternal, path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return coordinationerr.Newf(component, "WriteFile", coordinationerr.KindUnavailable, path, err)
	}
	return nil
}

// ReadFile loads a YAML lock file from path without verifying its checksum;
// callers that care about integrity follow up with Verify.
func ReadFile(path string) (*models.LockFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, coordinationerr.Newf(component, "ReadFile", coordinationerr.KindNotFound, path, err)
	}
	var lf models.LockFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, coordinationerr.Newf(component, "ReadFile", coordinationerr.KindInvalidArgument, path, err)
	}
	return &lf, nil
}

var errChecksumMismatch = errors.New("checksum does not match canonical serialization")

// Verify recomputes lf's checksum over its canonical form and fails with
// IntegrityFailure on mismatch.
func Verify(lf *models.LockFile) error {
	if lf.Checksum == "" {
		return coordinationerr.Newf(component, "Verify", coordinationerr.KindIntegrityFailure, "", errors.New("lock file carries no checksum"))
	}
	if Checksum(lf) != lf.Checksum {
		return coordinationerr.Newf(component, "Verify", coordinationerr.KindIntegrityFailure, "", errChecksumMismatch)
	}
	return nil
}
