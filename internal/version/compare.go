package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
)

// CheckVersionCompatibility reports whether a snapshot written by snapshotVersion
// can be restored by a binary at binaryVersion.
//
// Rules:
//   - "main" on either side skips the check (development build)
//   - major and minor must match exactly
//   - patch may differ
//
// Every failure carries ErrCodeVersionMismatch.
func CheckVersionCompatibility(binaryVersion, snapshotVersion string) error {
	binaryVersion = strings.TrimPrefix(binaryVersion, "v")
	snapshotVersion = strings.TrimPrefix(snapshotVersion, "v")

	if binaryVersion == "main" || snapshotVersion == "main" {
		return nil
	}

	binary, err := semver.NewVersion(binaryVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeVersionMismatch, err, "invalid binary version '%s'", binaryVersion)
	}

	snapshot, err := semver.NewVersion(snapshotVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeVersionMismatch, err, "invalid snapshot version '%s'", snapshotVersion)
	}

	if binary.Major() != snapshot.Major() {
		return errors.Newf(errors.ErrCodeVersionMismatch,
			"major version mismatch: binary is %d.x.x but snapshot was written by %d.x.x",
			binary.Major(), snapshot.Major())
	}

	if binary.Minor() != snapshot.Minor() {
		return errors.Newf(errors.ErrCodeVersionMismatch,
			"minor version mismatch: binary is %d.%d.x but snapshot was written by %d.%d.x",
			binary.Major(), binary.Minor(), snapshot.Major(), snapshot.Minor())
	}

	return nil
}
