package system

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fedoraOsRelease = `NAME="Fedora Linux"
VERSION="40 (Workstation Edition)"
ID=fedora
VERSION_ID=40
PLATFORM_ID="platform:f40"
`

const debianOsRelease = `PRETTY_NAME="Debian GNU/Linux 12 (bookworm)"
NAME="Debian GNU/Linux"
VERSION_ID="12"
ID=debian
`

const rockyOsRelease = `NAME="Rocky Linux"
VERSION="9.3 (Blue Onyx)"
ID="rocky"
ID_LIKE="rhel centos fedora"
VERSION_ID="9.3"
`

func writeOsRelease(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "os-release")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadOsReleaseIDs(t *testing.T) {
	id, idLike := readOsReleaseIDs(writeOsRelease(t, fedoraOsRelease))
	assert.Equal(t, "fedora", id)
	assert.Empty(t, idLike)

	id, idLike = readOsReleaseIDs(writeOsRelease(t, rockyOsRelease))
	assert.Equal(t, "rocky", id)
	assert.Equal(t, "rhel centos fedora", idLike)
}

func TestIsFedoraFamily(t *testing.T) {
	assert.True(t, isFedoraFamily("fedora", ""))
	assert.True(t, isFedoraFamily("rocky", "rhel centos fedora"))
	assert.False(t, isFedoraFamily("debian", ""))
	assert.False(t, isFedoraFamily("", ""))
}

func TestReadOsReleaseNameVersion(t *testing.T) {
	name, ver := readOsReleaseNameVersion(writeOsRelease(t, fedoraOsRelease))
	assert.Equal(t, "Fedora Linux", name)
	assert.Equal(t, "40", ver)

	name, ver = readOsReleaseNameVersion(writeOsRelease(t, debianOsRelease))
	assert.Equal(t, "Debian GNU/Linux", name)
	assert.Equal(t, "12", ver)
}

func TestReadOsReleaseMissingFile(t *testing.T) {
	id, idLike := readOsReleaseIDs(filepath.Join(t.TempDir(), "missing"))
	assert.Empty(t, id)
	assert.Empty(t, idLike)
}
